// Package matchmaking seats players into sessions. The session record itself
// is the transaction: claiming a seat and the activation that may follow
// commit in one CAS on the record, so there is no window in which a seat is
// granted that the record does not show. The per-kind pool value is only a
// derived index of open session ids; a stale index entry is detected during
// the scan and dropped, never trusted.
package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"cardarena/internal/engine"
	"cardarena/internal/events"
	"cardarena/internal/models"
	"cardarena/internal/store"
)

// MatchReward is the fixed credit granted for a successful match.
const MatchReward = 10

// RewardGranter is the external reward collaborator. Grant failures never
// roll back a match.
type RewardGranter interface {
	Grant(ctx context.Context, uid string, points int) error
}

// Publisher announces filled sessions.
type Publisher interface {
	Publish(ev events.SessionEvent)
}

// pool is the derived per-kind index of waiting session ids. Seat state lives
// only in session records.
type pool struct {
	Open []string `json:"open"`
}

// Service implements matchmaking over the tree store.
type Service struct {
	sessions *store.Sessions
	rewards  RewardGranter
	pub      Publisher
	clock    clockwork.Clock

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates the matchmaking service.
func NewService(sessions *store.Sessions, rewards RewardGranter, pub Publisher, clock clockwork.Clock, rng *rand.Rand) *Service {
	return &Service{sessions: sessions, rewards: rewards, pub: pub, clock: clock, rng: rng}
}

// FindOrCreateSession seats user into the first open session of the kind
// that has room and does not already contain them, or creates a fresh
// waiting session with user as host. A join that fills the last seat also
// activates the session and initializes its game state inside the same CAS
// on the record. A lost race replays the scan against the fresh index and
// lands in whatever session the winner left open.
func (s *Service) FindOrCreateSession(ctx context.Context, user models.User, kind models.GameKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown game kind %q", kind)
	}
	if user.ID == "" {
		return "", fmt.Errorf("user id required")
	}

	tried := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		openIDs, err := s.openSessions(ctx, kind)
		if err != nil {
			return "", fmt.Errorf("could not start or find a session: %w", err)
		}
		for _, id := range openIDs {
			if tried[id] {
				continue
			}
			tried[id] = true
			res, err := s.tryJoin(ctx, kind, id, user)
			if err != nil {
				return "", fmt.Errorf("could not start or find a session: %w", err)
			}
			if res.stale {
				s.unlist(ctx, kind, id)
			}
			if res.joined {
				s.onSeated(ctx, kind, user, res.session, false, res.activated)
				return id, nil
			}
		}

		sess, err := s.create(ctx, kind, user, tried)
		if err != nil {
			return "", fmt.Errorf("could not start or find a session: %w", err)
		}
		if sess == nil {
			// The index gained an open session while we scanned; rejoin it.
			continue
		}
		s.onSeated(ctx, kind, user, sess, true, false)
		return sess.ID, nil
	}
}

type joinResult struct {
	// joined means user holds a seat in the session.
	joined bool
	// activated means the join filled the last seat.
	activated bool
	// stale means the session is no longer open and its index entry should
	// be dropped.
	stale   bool
	session *models.Session
}

// tryJoin claims a seat in one candidate session via CAS on its record. When
// the claim fills the last seat the same transaction flips the session to
// active and deals the game state, so the seat and the activation can never
// be observed apart.
func (s *Service) tryJoin(ctx context.Context, kind models.GameKind, id string, user models.User) (joinResult, error) {
	var res joinResult
	sess, err := s.sessions.Update(ctx, kind, id, func(sess *models.Session) error {
		// Re-derived every attempt: a retry means the record moved.
		res = joinResult{}
		if sess.Status != models.SessionStatusWaiting || sess.IsFull() {
			res.stale = true
			return store.ErrTxnAborted
		}
		// Zero seats means a forfeit emptied the session and its deletion is
		// in flight.
		if len(sess.PlayerIDs) == 0 {
			res.stale = true
			return store.ErrTxnAborted
		}
		if sess.HasPlayer(user.ID) {
			return store.ErrTxnAborted
		}

		sess.PlayerIDs = append(sess.PlayerIDs, user.ID)
		sess.Players[user.ID] = models.PlayerProfile{DisplayName: user.DisplayName, PhotoURL: user.PhotoURL, Online: true}
		if sess.IsFull() {
			sess.Status = models.SessionStatusActive
			rules, err := engine.RulesFor(kind)
			if err != nil {
				return err
			}
			s.rngMu.Lock()
			rules.Init(sess, s.rng)
			s.rngMu.Unlock()
			res.activated = true
		}
		res.joined = true
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		// The record vanished under its index entry.
		return joinResult{stale: true}, nil
	}
	if err != nil {
		return joinResult{}, err
	}
	res.session = sess
	return res, nil
}

// create starts a fresh waiting session. The record is written first and the
// index updated after, so an indexed id always has a record behind it. The
// index CAS re-checks for open sessions that appeared since the caller's
// scan; finding one rolls the fresh record back and returns nil so the
// caller rescans instead of splitting players across sessions.
func (s *Service) create(ctx context.Context, kind models.GameKind, user models.User, tried map[string]bool) (*models.Session, error) {
	session := &models.Session{
		ID:         uuid.New().String(),
		GameKind:   kind,
		HostID:     user.ID,
		PlayerIDs:  []string{user.ID},
		Players:    map[string]models.PlayerProfile{user.ID: {DisplayName: user.DisplayName, PhotoURL: user.PhotoURL, Online: true}},
		Status:     models.SessionStatusWaiting,
		MaxPlayers: kind.MaxPlayers(),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	err := store.Txn(ctx, s.sessions.KV(), store.PoolPath(kind), func(p *pool, exists bool) error {
		for _, id := range p.Open {
			if !tried[id] {
				return store.ErrTxnAborted
			}
		}
		p.Open = append(p.Open, session.ID)
		return nil
	})
	if err != nil {
		if derr := s.sessions.Delete(ctx, kind, session.ID); derr != nil {
			log.Error().Err(derr).Str("session_id", session.ID).Msg("failed to roll back unindexed session")
		}
		if errors.Is(err, store.ErrTxnAborted) {
			return nil, nil
		}
		if errors.Is(err, store.ErrRevisionMismatch) {
			return nil, models.ErrConflict
		}
		return nil, err
	}
	return session, nil
}

// openSessions reads the derived index.
func (s *Service) openSessions(ctx context.Context, kind models.GameKind) ([]string, error) {
	entry, err := s.sessions.KV().Get(ctx, store.PoolPath(kind))
	if err != nil {
		if errors.Is(err, store.ErrPathMissing) {
			return nil, nil
		}
		return nil, err
	}
	var p pool
	if err := json.Unmarshal(entry.Value, &p); err != nil {
		return nil, fmt.Errorf("decode pool index: %w", err)
	}
	return p.Open, nil
}

// unlist drops one id from the derived index. Best effort; a survivor is
// re-detected as stale on the next scan.
func (s *Service) unlist(ctx context.Context, kind models.GameKind, id string) {
	err := store.Txn(ctx, s.sessions.KV(), store.PoolPath(kind), func(p *pool, exists bool) error {
		if !exists {
			return store.ErrTxnAborted
		}
		for i, v := range p.Open {
			if v == id {
				p.Open = append(p.Open[:i], p.Open[i+1:]...)
				return nil
			}
		}
		return store.ErrTxnAborted
	})
	if err != nil && !errors.Is(err, store.ErrTxnAborted) {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to drop stale pool index entry")
	}
}

// onSeated runs the post-commit side effects of a successful seat: the
// index cleanup for a filled session, the reward grant, the match-found
// announcement and the log line.
func (s *Service) onSeated(ctx context.Context, kind models.GameKind, user models.User, sess *models.Session, created, activated bool) {
	if activated {
		s.unlist(ctx, kind, sess.ID)
		if s.pub != nil {
			s.pub.Publish(events.SessionEvent{
				ID:        uuid.New().String(),
				SessionID: sess.ID,
				GameKind:  kind,
				Type:      events.EventTypeMatchFound,
				Timestamp: s.clock.Now(),
				Data: mustJSON(events.MatchFoundPayload{
					SessionID: sess.ID,
					PlayerIDs: sess.PlayerIDs,
					HostID:    sess.HostID,
				}),
			})
		}
	}

	// Reward is a collaborator call; its failure must not roll back the
	// match.
	if s.rewards != nil {
		if err := s.rewards.Grant(ctx, user.ID, MatchReward); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("match reward grant failed")
		}
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("user_id", user.ID).
		Str("game_kind", string(kind)).
		Bool("created", created).
		Bool("activated", activated).
		Msg("matchmaking seated player")
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
