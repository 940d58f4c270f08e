package store

import (
	"context"
	"errors"
)

// KV is the hierarchical tree store the synchronization core is built on.
// Paths are dot-separated (`sessions.duel.<id>.status`). Writes carry
// revisions for optimistic concurrency; Watch delivers changes under a path
// pattern in write order for any single path.
type KV interface {
	// Get returns the entry at path, or ErrPathMissing.
	Get(ctx context.Context, path string) (Entry, error)
	// Create writes a new path, failing with ErrPathExists if it is taken.
	Create(ctx context.Context, path string, value []byte) (uint64, error)
	// Update is a compare-and-swap against the given revision, failing with
	// ErrRevisionMismatch if another writer got there first.
	Update(ctx context.Context, path string, value []byte, revision uint64) (uint64, error)
	// Put writes unconditionally. Used for derived projections only; any
	// contended path goes through Update.
	Put(ctx context.Context, path string, value []byte) (uint64, error)
	// Delete removes a path. Deleting a missing path is a no-op.
	Delete(ctx context.Context, path string) error
	// Keys lists every live path in the bucket.
	Keys(ctx context.Context) ([]string, error)
	// Watch subscribes to changes matching pattern. Patterns use `*` for one
	// segment and a trailing `>` for the whole subtree.
	Watch(ctx context.Context, pattern string) (Watcher, error)
}

// Entry is one stored value with its revision.
type Entry struct {
	Path     string
	Value    []byte
	Revision uint64
}

// Event is one observed change.
type Event struct {
	Path     string
	Value    []byte
	Revision uint64
	Deleted  bool
}

// Watcher delivers change events until stopped.
type Watcher interface {
	// Events is closed when the watcher stops.
	Events() <-chan Event
	Stop()
}

var (
	ErrPathMissing      = errors.New("store: path missing")
	ErrPathExists       = errors.New("store: path exists")
	ErrRevisionMismatch = errors.New("store: revision mismatch")
)
