package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"cardarena/internal/events"
	"cardarena/internal/models"
	"cardarena/internal/store"
)

// Archiver moves finished sessions into the bounded history window.
type Archiver interface {
	Archive(ctx context.Context, s *models.Session) error
}

// ManagerConfig holds engine-wide settings.
type ManagerConfig struct {
	// ResolveDelay is the UI pacing delay between a resolved round and the
	// next-round reset or termination check.
	ResolveDelay time.Duration
	// Retention is how long finished sessions stay in the live tree before
	// the janitor removes them.
	Retention time.Duration
	// SweepInterval is how often the janitor scans for expired sessions.
	SweepInterval time.Duration
}

// DefaultManagerConfig returns engine defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ResolveDelay:  3 * time.Second,
		Retention:     24 * time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

// Manager starts an actor per active session and retires it when the session
// finishes or disappears. It also archives finished sessions and prunes them
// from the live tree after the retention window.
type Manager struct {
	sessions  *store.Sessions
	clock     clockwork.Clock
	config    ManagerConfig
	publisher Publisher
	archiver  Archiver

	mu       sync.Mutex
	actors   map[string]*Actor
	archived map[string]bool
}

// NewManager creates the engine manager.
func NewManager(sessions *store.Sessions, clock clockwork.Clock, config ManagerConfig, publisher Publisher, archiver Archiver) *Manager {
	return &Manager{
		sessions:  sessions,
		clock:     clock,
		config:    config,
		publisher: publisher,
		archiver:  archiver,
		actors:    make(map[string]*Actor),
		archived:  make(map[string]bool),
	}
}

// Run watches every session record and supervises actors until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	recordCh := make(chan store.Event, 256)
	kinds := []models.GameKind{models.GameKindDuel, models.GameKindRPS, models.GameKindPoker}

	var wg sync.WaitGroup
	for _, kind := range kinds {
		watcher, err := m.sessions.WatchRecords(ctx, kind)
		if err != nil {
			return err
		}
		defer watcher.Stop()
		wg.Add(1)
		go func(w store.Watcher) {
			defer wg.Done()
			for ev := range w.Events() {
				select {
				case recordCh <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(watcher)
	}

	log.Info().Msg("engine manager started")

	// Sessions that were already active before this process came up produce
	// no record event; adopt them by scanning.
	m.reconcile(ctx)

	sweep := m.clock.NewTicker(m.config.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			wg.Wait()
			log.Info().Msg("engine manager shut down")
			return nil
		case ev := <-recordCh:
			m.handleRecordEvent(ctx, ev)
		case <-sweep.Chan():
			m.reconcile(ctx)
		}
	}
}

func (m *Manager) handleRecordEvent(ctx context.Context, ev store.Event) {
	kind, id, ok := parseRecordPath(ev.Path)
	if !ok {
		return
	}
	if ev.Deleted {
		m.stopActor(id)
		if m.publisher != nil {
			m.publisher.Publish(events.SessionEvent{
				ID:        uuid.New().String(),
				SessionID: id,
				GameKind:  kind,
				Type:      events.EventTypeSessionDeleted,
				Timestamp: m.clock.Now(),
			})
		}
		return
	}

	var s models.Session
	if err := json.Unmarshal(ev.Value, &s); err != nil {
		log.Error().Err(err).Str("path", ev.Path).Msg("undecodable session record")
		return
	}

	switch s.Status {
	case models.SessionStatusActive:
		// A rematch re-activates a finished id; its next finish must archive
		// again.
		m.mu.Lock()
		delete(m.archived, id)
		m.mu.Unlock()
		m.ensureActor(ctx, kind, id)
	case models.SessionStatusFinished:
		m.stopActor(id)
		m.onFinished(ctx, &s)
	}
}

// ensureActor starts an actor for an active session if none is running.
func (m *Manager) ensureActor(ctx context.Context, kind models.GameKind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.actors[id]; running {
		return
	}
	rules, err := RulesFor(kind)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("cannot start actor")
		return
	}
	actor := NewActor(m.sessions, rules, kind, id, m.clock, m.config.ResolveDelay, m.publisher)
	m.actors[id] = actor
	go func() {
		actor.Run(ctx)
		m.mu.Lock()
		delete(m.actors, id)
		m.mu.Unlock()
	}()
}

func (m *Manager) stopActor(id string) {
	m.mu.Lock()
	actor := m.actors[id]
	delete(m.actors, id)
	m.mu.Unlock()
	if actor != nil {
		actor.Stop()
	}
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	actors := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.actors = make(map[string]*Actor)
	m.mu.Unlock()
	for _, a := range actors {
		a.Stop()
	}
}

// onFinished archives a finished session once and announces the outcome.
func (m *Manager) onFinished(ctx context.Context, s *models.Session) {
	m.mu.Lock()
	if m.archived[s.ID] {
		m.mu.Unlock()
		return
	}
	m.archived[s.ID] = true
	m.mu.Unlock()

	if m.archiver != nil {
		if err := m.archiver.Archive(ctx, s); err != nil {
			// History is a collaborator; losing an archive never blocks play.
			log.Error().Err(err).Str("session_id", s.ID).Msg("failed to archive finished session")
		}
	}
	if m.publisher != nil {
		finishedAt := m.clock.Now()
		if s.FinishedAt != nil {
			finishedAt = *s.FinishedAt
		}
		m.publisher.Publish(events.SessionEvent{
			ID:        uuid.New().String(),
			SessionID: s.ID,
			GameKind:  s.GameKind,
			Type:      events.EventTypeSessionFinished,
			Timestamp: m.clock.Now(),
			Data: mustJSON(events.SessionFinishedPayload{
				Winner:     s.Winner,
				FinishedAt: finishedAt,
			}),
		})
	}
}

// reconcile scans every session record, starting actors for active sessions
// that lack one and pruning finished sessions past the retention window. It
// runs at startup and on every sweep tick, because record watch delivery is
// best effort: a dropped activation event otherwise leaves a session with no
// resolver.
func (m *Manager) reconcile(ctx context.Context) {
	keys, err := m.sessions.KV().Keys(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile failed to list keys")
		return
	}
	cutoff := m.clock.Now().Add(-m.config.Retention)
	for _, key := range keys {
		kind, id, ok := parseRecordPath(key)
		if !ok {
			continue
		}
		s, err := m.sessions.Get(ctx, kind, id)
		if err != nil {
			continue
		}
		if s.Status == models.SessionStatusActive {
			m.mu.Lock()
			delete(m.archived, id)
			m.mu.Unlock()
			m.ensureActor(ctx, kind, id)
			continue
		}
		if s.Status != models.SessionStatusFinished || s.FinishedAt == nil || s.FinishedAt.After(cutoff) {
			continue
		}
		if err := m.sessions.Delete(ctx, kind, id); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("failed to delete expired session")
			continue
		}
		m.mu.Lock()
		delete(m.archived, id)
		m.mu.Unlock()
		log.Debug().Str("session_id", id).Msg("expired session pruned")
	}
}

// parseRecordPath extracts (kind, id) from "sessions.{kind}.{id}.record".
func parseRecordPath(path string) (models.GameKind, string, bool) {
	parts := strings.Split(path, ".")
	if len(parts) != 4 || parts[0] != "sessions" || parts[3] != "record" {
		return "", "", false
	}
	kind := models.GameKind(parts[1])
	if !kind.Valid() {
		return "", "", false
	}
	return kind, parts[2], true
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
