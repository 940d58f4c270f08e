package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds configuration for the JetStream-backed tree store.
type JetStreamConfig struct {
	URL           string
	Bucket        string
	Description   string
	History       uint8
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns defaults suitable for a local NATS server.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		Bucket:        "ARENA_SESSIONS",
		Description:   "card arena session tree",
		History:       1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamKV implements KV on a NATS JetStream key-value bucket. Revisions
// map directly onto KV entry revisions, so Update is a real server-side CAS.
type JetStreamKV struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewJetStreamKV connects to NATS and creates or binds the bucket.
func NewJetStreamKV(ctx context.Context, cfg JetStreamConfig) (*JetStreamKV, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		History:     cfg.History,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create KV bucket: %w", err)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("JetStream tree store ready")
	return &JetStreamKV{nc: nc, kv: kv}, nil
}

// Conn exposes the underlying NATS connection for event publishing.
func (s *JetStreamKV) Conn() *nats.Conn { return s.nc }

// Close shuts down the NATS connection.
func (s *JetStreamKV) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

func (s *JetStreamKV) Get(ctx context.Context, path string) (Entry, error) {
	entry, err := s.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Entry{}, ErrPathMissing
		}
		return Entry{}, fmt.Errorf("kv get %s: %w", path, err)
	}
	return Entry{Path: path, Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (s *JetStreamKV) Create(ctx context.Context, path string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, path, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrPathExists
		}
		return 0, fmt.Errorf("kv create %s: %w", path, err)
	}
	return rev, nil
}

func (s *JetStreamKV) Update(ctx context.Context, path string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, path, value, revision)
	if err != nil {
		if isWrongRevision(err) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", path, err)
	}
	return rev, nil
}

func (s *JetStreamKV) Put(ctx context.Context, path string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(ctx, path, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", path, err)
	}
	return rev, nil
}

func (s *JetStreamKV) Delete(ctx context.Context, path string) error {
	err := s.kv.Delete(ctx, path)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", path, err)
	}
	return nil
}

func (s *JetStreamKV) Keys(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *JetStreamKV) Watch(ctx context.Context, pattern string) (Watcher, error) {
	w, err := s.kv.Watch(ctx, pattern, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}

	jw := &jetStreamWatcher{watcher: w, events: make(chan Event, 64)}
	go jw.pump(ctx)
	return jw, nil
}

type jetStreamWatcher struct {
	watcher jetstream.KeyWatcher
	events  chan Event
}

func (w *jetStreamWatcher) pump(ctx context.Context) {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-w.watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// Marker for the end of the initial replay.
				continue
			}
			ev := Event{
				Path:     entry.Key(),
				Value:    entry.Value(),
				Revision: entry.Revision(),
				Deleted:  entry.Operation() != jetstream.KeyValuePut,
			}
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *jetStreamWatcher) Events() <-chan Event { return w.events }

func (w *jetStreamWatcher) Stop() {
	_ = w.watcher.Stop()
}

// isWrongRevision detects a lost CAS on Update, which surfaces as a
// wrong-last-sequence error from the underlying stream.
func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return errors.Is(err, jetstream.ErrKeyExists)
}
