package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryKV is an in-process KV with the same semantics as the JetStream
// implementation: monotonic revisions, CAS updates, pattern watches. It backs
// tests and single-node development runs.
type MemoryKV struct {
	mu       sync.Mutex
	revision uint64
	entries  map[string]Entry
	watchers map[*memoryWatcher]struct{}
}

// NewMemoryKV creates an empty in-memory tree store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries:  make(map[string]Entry),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

func (m *MemoryKV) Get(ctx context.Context, path string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[path]
	if !ok {
		return Entry{}, ErrPathMissing
	}
	return entry, nil
}

func (m *MemoryKV) Create(ctx context.Context, path string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[path]; ok {
		return 0, ErrPathExists
	}
	return m.write(path, value), nil
}

func (m *MemoryKV) Update(ctx context.Context, path string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[path]
	if !ok || entry.Revision != revision {
		return 0, ErrRevisionMismatch
	}
	return m.write(path, value), nil
}

func (m *MemoryKV) Put(ctx context.Context, path string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(path, value), nil
}

func (m *MemoryKV) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[path]; !ok {
		return nil
	}
	delete(m.entries, path)
	m.revision++
	m.notify(Event{Path: path, Revision: m.revision, Deleted: true})
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for path := range m.entries {
		keys = append(keys, path)
	}
	return keys, nil
}

func (m *MemoryKV) Watch(ctx context.Context, pattern string) (Watcher, error) {
	w := &memoryWatcher{
		store:   m,
		pattern: pattern,
		events:  make(chan Event, 64),
	}
	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.mu.Unlock()
	return w, nil
}

// write stores the entry and fans the change out. Caller holds the lock.
func (m *MemoryKV) write(path string, value []byte) uint64 {
	m.revision++
	entry := Entry{Path: path, Value: append([]byte(nil), value...), Revision: m.revision}
	m.entries[path] = entry
	m.notify(Event{Path: path, Value: entry.Value, Revision: entry.Revision})
	return entry.Revision
}

func (m *MemoryKV) notify(ev Event) {
	for w := range m.watchers {
		if !matchPattern(w.pattern, ev.Path) {
			continue
		}
		select {
		case w.events <- ev:
		default:
			// Slow watcher; drop rather than block writers.
		}
	}
}

type memoryWatcher struct {
	store   *MemoryKV
	pattern string
	events  chan Event
	once    sync.Once
}

func (w *memoryWatcher) Events() <-chan Event { return w.events }

func (w *memoryWatcher) Stop() {
	w.once.Do(func() {
		w.store.mu.Lock()
		delete(w.store.watchers, w)
		w.store.mu.Unlock()
		close(w.events)
	})
}

// matchPattern matches dot-separated paths against NATS-style patterns:
// `*` matches one segment, a trailing `>` matches the rest of the subtree.
func matchPattern(pattern, path string) bool {
	pp := strings.Split(pattern, ".")
	sp := strings.Split(path, ".")
	for i, tok := range pp {
		if tok == ">" {
			return len(sp) > i
		}
		if i >= len(sp) {
			return false
		}
		if tok != "*" && tok != sp[i] {
			return false
		}
	}
	return len(pp) == len(sp)
}
