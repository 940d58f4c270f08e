package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// maxTxnRetries bounds how often a lost CAS is retried before the conflict
// surfaces to the caller.
const maxTxnRetries = 25

// ErrTxnAborted is returned by a transaction function to stop retrying
// without treating the outcome as a failure to persist.
var ErrTxnAborted = errors.New("store: transaction aborted")

// Txn runs fn inside an optimistic read-modify-write over one path.
// The current value is decoded into T (zero value if the path is missing),
// fn mutates it, and the result is written back with a CAS against the
// revision that was read. On a lost race the whole read-modify-write
// re-runs, so fn must re-check its preconditions on every attempt.
func Txn[T any](ctx context.Context, kv KV, path string, fn func(value *T, exists bool) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := kv.Get(ctx, path)
		exists := true
		if err != nil {
			if !errors.Is(err, ErrPathMissing) {
				return err
			}
			exists = false
		}

		var value T
		if exists {
			if err := json.Unmarshal(entry.Value, &value); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
		}

		if err := fn(&value, exists); err != nil {
			return err
		}

		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}

		if exists {
			_, err = kv.Update(ctx, path, data, entry.Revision)
		} else {
			_, err = kv.Create(ctx, path, data)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRevisionMismatch) || errors.Is(err, ErrPathExists) {
			continue
		}
		return err
	}
	return ErrRevisionMismatch
}
