// Package session exposes the client-facing session operations. Every write
// is a CAS transaction on the session record; each seat only ever writes its
// own move slot, and duplicate or out-of-phase submissions are swallowed as
// no-ops because network retries are expected.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"cardarena/internal/engine"
	"cardarena/internal/models"
	"cardarena/internal/store"
)

// Move is one seat's submission. Exactly the fields for the session's game
// kind are read; the rest are ignored.
type Move struct {
	// Card is the duel card id to play from the caller's hand.
	Card string `json:"card,omitempty"`
	// Throw and Phase are the rps submission; Phase is required for rps and
	// ignored by the other kinds.
	Throw string `json:"throw,omitempty"`
	Phase string `json:"phase,omitempty"`
	// Exchange lists poker card ids to swap; Stand ends the caller's
	// exchanging.
	Exchange []string `json:"exchange,omitempty"`
	Stand    bool     `json:"stand,omitempty"`
}

// Service implements move submission, forfeits and rematches.
type Service struct {
	sessions *store.Sessions
	clock    clockwork.Clock

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates the session service.
func NewService(sessions *store.Sessions, clock clockwork.Clock, rng *rand.Rand) *Service {
	return &Service{sessions: sessions, clock: clock, rng: rng}
}

// SubmitMove writes the caller's own move slot. Invalid moves (slot already
// filled, wrong phase, wrong turn, card not in hand) are silently ignored.
func (s *Service) SubmitMove(ctx context.Context, kind models.GameKind, sessionID, uid string, mv Move) error {
	_, err := s.sessions.Update(ctx, kind, sessionID, func(sess *models.Session) error {
		if !sess.HasPlayer(uid) {
			return models.ErrAccessDenied
		}
		if sess.Status != models.SessionStatusActive {
			return store.ErrTxnAborted
		}
		switch kind {
		case models.GameKindDuel:
			return applyDuelMove(sess, uid, mv)
		case models.GameKindRPS:
			return applyRPSMove(sess, uid, mv)
		case models.GameKindPoker:
			return applyPokerMove(sess, uid, mv)
		}
		return store.ErrTxnAborted
	})
	if err != nil {
		return err
	}
	log.Debug().Str("session_id", sessionID).Str("user_id", uid).Msg("move submitted")
	return nil
}

// Forfeit removes uid from the session. An active session left with fewer
// than two seats finishes in favor of the survivor; a waiting session that
// empties is deleted outright. Calling it again for the same uid is a no-op,
// so retries are safe.
func (s *Service) Forfeit(ctx context.Context, kind models.GameKind, sessionID, uid string) error {
	var deleteSession bool
	_, err := s.sessions.Update(ctx, kind, sessionID, func(sess *models.Session) error {
		deleteSession = false
		if !sess.HasPlayer(uid) {
			// Already forfeited; idempotent.
			return store.ErrTxnAborted
		}
		wasActive := sess.Status == models.SessionStatusActive

		remaining := make([]string, 0, len(sess.PlayerIDs))
		for _, id := range sess.PlayerIDs {
			if id != uid {
				remaining = append(remaining, id)
			}
		}
		sess.PlayerIDs = remaining
		delete(sess.Players, uid)

		// A forfeited poker seat stands permanently so the turn rotation
		// never parks on it.
		if sess.Poker != nil {
			sess.Poker.Stands[uid] = true
			if sess.Poker.CurrentTurn() == uid {
				advancePokerTurn(sess.Poker)
			}
		}

		if wasActive && len(remaining) < 2 {
			winner := models.WinnerDraw
			if len(remaining) == 1 {
				winner = remaining[0]
			}
			sess.Status = models.SessionStatusFinished
			sess.Winner = winner
			now := s.clock.Now()
			sess.FinishedAt = &now
			return nil
		}
		if sess.Status == models.SessionStatusWaiting {
			if len(remaining) == 0 {
				deleteSession = true
				return nil
			}
			// The host seat follows the head of the order.
			sess.HostID = remaining[0]
		}
		return nil
	})
	if err != nil {
		return err
	}
	if deleteSession {
		// The zero-seat record already committed, and matchmaking refuses to
		// seat into an emptied session, so the delete cannot race a join.
		if err := s.sessions.Delete(ctx, kind, sessionID); err != nil {
			return fmt.Errorf("delete abandoned session: %w", err)
		}
		s.unlistOpenSession(ctx, kind, sessionID)
	}
	log.Info().Str("session_id", sessionID).Str("user_id", uid).Msg("player forfeited")
	return nil
}

// ResetForNextRound is the host-only rematch: a finished session gets a
// fresh game state, keeping its id and player set.
func (s *Service) ResetForNextRound(ctx context.Context, kind models.GameKind, sessionID, uid string) error {
	rules, err := engine.RulesFor(kind)
	if err != nil {
		return err
	}
	_, err = s.sessions.Update(ctx, kind, sessionID, func(sess *models.Session) error {
		if !sess.HasPlayer(uid) {
			return models.ErrAccessDenied
		}
		if sess.HostID != uid {
			return models.ErrAccessDenied
		}
		if sess.Status != models.SessionStatusFinished || !sess.IsFull() {
			return store.ErrTxnAborted
		}
		sess.Winner = ""
		sess.FinishedAt = nil
		sess.Duel, sess.RPS, sess.Poker = nil, nil, nil
		s.rngMu.Lock()
		rules.Init(sess, s.rng)
		s.rngMu.Unlock()
		sess.Status = models.SessionStatusActive
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Str("host_id", uid).Msg("rematch started")
	return nil
}

// Get loads the current session record.
func (s *Service) Get(ctx context.Context, kind models.GameKind, sessionID string) (*models.Session, error) {
	return s.sessions.Get(ctx, kind, sessionID)
}

// AvailableMoves lists the moves uid could submit right now.
func (s *Service) AvailableMoves(ctx context.Context, kind models.GameKind, sessionID, uid string) ([]string, error) {
	rules, err := engine.RulesFor(kind)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, kind, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasPlayer(uid) {
		return nil, models.ErrAccessDenied
	}
	return rules.AvailableMoves(sess, uid), nil
}

// unlistOpenSession drops a deleted session's id from the derived
// matchmaking index. Best effort: a stale entry is also detected and dropped
// by the matchmaking scan itself.
func (s *Service) unlistOpenSession(ctx context.Context, kind models.GameKind, sessionID string) {
	type pool struct {
		Open []string `json:"open"`
	}
	err := store.Txn(ctx, s.sessions.KV(), store.PoolPath(kind), func(p *pool, exists bool) error {
		if !exists {
			return store.ErrTxnAborted
		}
		for i, id := range p.Open {
			if id == sessionID {
				p.Open = append(p.Open[:i], p.Open[i+1:]...)
				return nil
			}
		}
		return store.ErrTxnAborted
	})
	if err != nil && !errors.Is(err, store.ErrTxnAborted) {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to drop deleted session from pool index")
	}
}

func applyDuelMove(sess *models.Session, uid string, mv Move) error {
	d := sess.Duel
	if d == nil || mv.Card == "" {
		return store.ErrTxnAborted
	}
	// A filled slot or an already-resolved round makes this a duplicate.
	if d.Moves[uid] != nil || d.RoundWinner != "" {
		return store.ErrTxnAborted
	}
	for _, c := range d.PlayerHands[uid] {
		if c.ID == mv.Card {
			card := c
			d.Moves[uid] = &card
			return nil
		}
	}
	// Card not in hand.
	return store.ErrTxnAborted
}

func applyRPSMove(sess *models.Session, uid string, mv Move) error {
	r := sess.RPS
	throw := models.RPSMove(mv.Throw)
	if r == nil || !throw.Valid() {
		return store.ErrTxnAborted
	}
	seat := r.Moves[uid]
	if seat == nil {
		seat = &models.RPSSeatMoves{}
		r.Moves[uid] = seat
	}
	switch models.RPSPhase(mv.Phase) {
	case models.RPSPhaseInitial:
		if r.Phase != models.RPSPhaseInitial || seat.Initial != nil {
			return store.ErrTxnAborted
		}
		seat.Initial = &throw
	case models.RPSPhaseFinal:
		// A final may only land once the round itself reached the final
		// phase.
		if r.Phase != models.RPSPhaseFinal || seat.Final != nil {
			return store.ErrTxnAborted
		}
		seat.Final = &throw
	default:
		return store.ErrTxnAborted
	}
	return nil
}

func applyPokerMove(sess *models.Session, uid string, mv Move) error {
	p := sess.Poker
	if p == nil || p.Phase != models.PokerPhaseExchanging {
		return store.ErrTxnAborted
	}
	if p.CurrentTurn() != uid || p.Stands[uid] {
		return store.ErrTxnAborted
	}

	if mv.Stand {
		p.Stands[uid] = true
		advancePokerTurn(p)
		return nil
	}
	if len(mv.Exchange) == 0 || p.ExchangeCounts[uid] >= models.PokerMaxExchanges {
		return store.ErrTxnAborted
	}

	hand := p.PlayerHands[uid]
	kept := make([]models.CardRef, 0, len(hand))
	swapped := 0
	for _, c := range hand {
		if containsID(mv.Exchange, c.ID) {
			swapped++
			continue
		}
		kept = append(kept, c)
	}
	if swapped != len(mv.Exchange) || swapped > len(p.Deck) {
		return store.ErrTxnAborted
	}
	kept = append(kept, p.Deck[:swapped]...)
	p.Deck = p.Deck[swapped:]
	p.PlayerHands[uid] = kept
	p.ExchangeCounts[uid]++
	advancePokerTurn(p)
	return nil
}

// advancePokerTurn rotates to the next seat that has not stood.
func advancePokerTurn(p *models.PokerState) {
	for range p.TurnOrder {
		p.AdvanceTurn()
		if !p.Stands[p.CurrentTurn()] {
			return
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
