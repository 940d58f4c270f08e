// Package syncer keeps a per-client mirror of one session. It subscribes to
// the narrow projection paths rather than the whole record, so a change to
// one field never re-transmits the entire session, and it performs no game
// logic of its own.
package syncer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"cardarena/internal/models"
	"cardarena/internal/store"
)

// Update is one field change delivered to the attached client.
type Update struct {
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Syncer attaches clients to sessions.
type Syncer struct {
	sessions *store.Sessions
}

// New creates a Syncer over the session repository.
func New(sessions *store.Sessions) *Syncer {
	return &Syncer{sessions: sessions}
}

// Attachment is one client's live view of a session. Updates() streams field
// changes until Detach is called; Snapshot() returns the current mirror.
type Attachment struct {
	kind      models.GameKind
	sessionID string
	uid       string
	sessions  *store.Sessions

	cancel  context.CancelFunc
	events  chan store.Event
	updates chan Update
	wg      sync.WaitGroup

	// opponents is touched only by the run goroutine.
	opponents map[string]func()

	mu     sync.RWMutex
	mirror map[string]json.RawMessage

	detachOnce sync.Once
}

// Attach verifies the caller may view the session, primes a mirror from the
// current record and subscribes to every relevant projection path. Callers
// that are neither seated nor joining a waiting session are refused.
func (s *Syncer) Attach(ctx context.Context, kind models.GameKind, sessionID, uid string) (*Attachment, error) {
	sess, err := s.sessions.Get(ctx, kind, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasPlayer(uid) && sess.Status != models.SessionStatusWaiting {
		return nil, models.ErrAccessDenied
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a := &Attachment{
		kind:      kind,
		sessionID: sessionID,
		uid:       uid,
		sessions:  s.sessions,
		cancel:    cancel,
		events:    make(chan store.Event, 64),
		updates:   make(chan Update, 64),
		opponents: make(map[string]func()),
		mirror:    make(map[string]json.RawMessage),
	}
	for field, value := range store.ProjectFields(sess) {
		a.mirror[field] = value
	}

	fields := append(baseFields(), kindFields(kind)...)
	fields = append(fields, ownFields(kind, uid)...)
	for _, field := range fields {
		if err := a.watch(watchCtx, field); err != nil {
			cancel()
			return nil, err
		}
	}
	for _, opp := range sess.PlayerIDs {
		if opp != uid {
			a.watchOpponent(watchCtx, opp)
		}
	}

	a.wg.Add(1)
	go a.run(watchCtx)
	log.Debug().Str("session_id", sessionID).Str("user_id", uid).Msg("client attached")
	return a, nil
}

// Updates streams field changes. The channel closes after Detach.
func (a *Attachment) Updates() <-chan Update { return a.updates }

// Snapshot returns a copy of the current mirror.
func (a *Attachment) Snapshot() map[string]json.RawMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(a.mirror))
	for field, value := range a.mirror {
		out[field] = value
	}
	return out
}

// Detach cancels every subscription and closes the update stream.
func (a *Attachment) Detach() {
	a.detachOnce.Do(func() {
		a.cancel()
		a.wg.Wait()
	})
}

func (a *Attachment) run(ctx context.Context) {
	defer func() {
		close(a.updates)
		a.wg.Done()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			field := a.fieldOf(ev.Path)
			if field == "" {
				continue
			}
			a.apply(field, ev)
			if field == "player_ids" && !ev.Deleted {
				a.repoint(ctx, ev.Value)
			}
		}
	}
}

func (a *Attachment) apply(field string, ev store.Event) {
	a.mu.Lock()
	if ev.Deleted {
		delete(a.mirror, field)
	} else {
		a.mirror[field] = ev.Value
	}
	a.mu.Unlock()

	upd := Update{Field: field, Data: ev.Value, Deleted: ev.Deleted}
	select {
	case a.updates <- upd:
	default:
		// A client that stopped draining gets the current mirror on
		// reconnect; dropping here keeps slow consumers from stalling the
		// pump.
		log.Warn().Str("session_id", a.sessionID).Str("field", field).Msg("dropping update for slow client")
	}
}

// repoint swaps opponent-move subscriptions when the seat list changes. Only
// the stale watchers are replaced; the rest of the listener set is untouched.
func (a *Attachment) repoint(ctx context.Context, value []byte) {
	var ids []string
	if err := json.Unmarshal(value, &ids); err != nil {
		return
	}
	current := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != a.uid {
			current[id] = true
		}
	}
	for opp, stop := range a.opponents {
		if !current[opp] {
			stop()
			delete(a.opponents, opp)
		}
	}
	for opp := range current {
		if _, ok := a.opponents[opp]; !ok {
			a.watchOpponent(ctx, opp)
		}
	}
}

// watch subscribes one projection field and pumps its events into the merged
// channel.
func (a *Attachment) watch(ctx context.Context, field string) error {
	w, err := a.sessions.WatchField(ctx, a.kind, a.sessionID, field)
	if err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				select {
				case a.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func (a *Attachment) watchOpponent(ctx context.Context, opp string) {
	oppCtx, stop := context.WithCancel(ctx)
	for _, field := range opponentFields(a.kind, opp) {
		if err := a.watch(oppCtx, field); err != nil {
			log.Warn().Err(err).Str("session_id", a.sessionID).Str("opponent_id", opp).Msg("opponent watch failed")
		}
	}
	a.opponents[opp] = stop
}

func (a *Attachment) fieldOf(path string) string {
	prefix := store.SessionFieldPath(a.kind, a.sessionID, "")
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimPrefix(path, prefix)
}

func baseFields() []string {
	return []string{"status", "player_ids", "players", "winner"}
}

func kindFields(kind models.GameKind) []string {
	switch kind {
	case models.GameKindDuel:
		return []string{"state.round", "state.scores", "state.counters", "state.result"}
	case models.GameKindRPS:
		return []string{"state.round", "state.phase", "state.scores", "state.result"}
	case models.GameKindPoker:
		return []string{"state.phase", "state.turn", "state.exchange", "state.ranks", "state.winners"}
	}
	return nil
}

func ownFields(kind models.GameKind, uid string) []string {
	switch kind {
	case models.GameKindDuel:
		return []string{"state.moves." + uid, "state.hands." + uid}
	case models.GameKindRPS:
		return []string{"state.moves." + uid}
	case models.GameKindPoker:
		return []string{"state.hands." + uid}
	}
	return nil
}

// opponentFields are the per-seat paths that must follow the opponent's
// identity as seats fill or empty.
func opponentFields(kind models.GameKind, opp string) []string {
	switch kind {
	case models.GameKindDuel:
		return []string{"state.moves." + opp, "state.hands." + opp}
	case models.GameKindRPS:
		return []string{"state.moves." + opp}
	case models.GameKindPoker:
		return []string{"state.hands." + opp}
	}
	return nil
}
