package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"cardarena/internal/events"
	"cardarena/internal/models"
	"cardarena/internal/store"
)

// Publisher fans engine events out to connected clients.
type Publisher interface {
	Publish(ev events.SessionEvent)
}

// Actor is the single resolver for one active session. It reacts to record
// changes, applies outcomes through CAS transactions on the record, and runs
// the delayed next-round advance on its own clock. Change notifications are
// treated purely as hints: every step re-reads the record and re-checks the
// round's preconditions, so notification order and duplication never matter.
type Actor struct {
	sessions *store.Sessions
	rules    Rules
	kind     models.GameKind
	id       string

	clock     clockwork.Clock
	delay     time.Duration
	publisher Publisher

	wakeCh chan struct{}
	stop   context.CancelFunc
	done   chan struct{}
}

// NewActor creates an actor for one session.
func NewActor(sessions *store.Sessions, rules Rules, kind models.GameKind, id string, clock clockwork.Clock, delay time.Duration, publisher Publisher) *Actor {
	return &Actor{
		sessions:  sessions,
		rules:     rules,
		kind:      kind,
		id:        id,
		clock:     clock,
		delay:     delay,
		publisher: publisher,
		wakeCh:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Wake nudges the actor to re-check the session. Safe from any goroutine;
// coalesces while a step is in flight.
func (a *Actor) Wake() {
	select {
	case a.wakeCh <- struct{}{}:
	default:
	}
}

// Stop cancels the actor and waits for its goroutine to exit, clearing any
// pending advance timer with it.
func (a *Actor) Stop() {
	if a.stop != nil {
		a.stop()
	}
	<-a.done
}

// Run drives the actor until the session finishes, vanishes, or ctx is
// cancelled.
func (a *Actor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.stop = cancel
	defer close(a.done)
	defer cancel()

	watcher, err := a.sessions.KV().Watch(ctx, store.SessionRecordPath(a.kind, a.id))
	if err != nil {
		log.Error().Err(err).Str("session_id", a.id).Msg("actor failed to watch session record")
		return
	}
	defer watcher.Stop()

	log.Info().Str("session_id", a.id).Str("game_kind", string(a.kind)).Msg("engine actor started")

	// Timer for the post-resolve display delay. Parked until a round
	// resolves.
	timer := a.clock.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	// Catch up on anything that happened before the watch attached.
	if done := a.resolveStep(ctx, timer); done {
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("session_id", a.id).Msg("engine actor cancelled")
			return
		case _, ok := <-watcher.Events():
			if !ok {
				return
			}
			if done := a.resolveStep(ctx, timer); done {
				return
			}
		case <-a.wakeCh:
			if done := a.resolveStep(ctx, timer); done {
				return
			}
		case <-timer.Chan():
			if done := a.advanceStep(ctx); done {
				return
			}
		}
	}
}

// resolveStep attempts round resolution and arms the advance timer when a
// round resolved. A round found already resolved, as after adopting a
// session mid-display, re-arms the timer without publishing again. It
// returns true when the actor should exit.
func (a *Actor) resolveStep(ctx context.Context, timer clockwork.Timer) bool {
	var progress Progress
	s, err := a.sessions.Update(ctx, a.kind, a.id, func(s *models.Session) error {
		progress = a.rules.ResolveIfReady(s)
		if progress == ProgressNone || progress == ProgressPending {
			return store.ErrTxnAborted
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Info().Str("session_id", a.id).Msg("session gone, actor exiting")
			return true
		}
		log.Error().Err(err).Str("session_id", a.id).Msg("round resolution failed")
		return false
	}
	if s != nil && s.Status == models.SessionStatusFinished {
		return true
	}
	switch progress {
	case ProgressResolved:
		a.publishResolved(s)
		timer.Reset(a.delay)
	case ProgressPending:
		timer.Reset(a.delay)
	}
	return false
}

// advanceStep runs the delayed post-round step: termination check or
// next-round reset.
func (a *Actor) advanceStep(ctx context.Context) bool {
	var finished bool
	s, err := a.sessions.Update(ctx, a.kind, a.id, func(s *models.Session) error {
		advanced, fin := a.rules.Advance(s, a.clock.Now())
		if !advanced {
			return store.ErrTxnAborted
		}
		finished = fin
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return true
		}
		log.Error().Err(err).Str("session_id", a.id).Msg("round advance failed")
		return false
	}
	if finished {
		log.Info().
			Str("session_id", a.id).
			Str("winner", s.Winner).
			Msg("session finished")
		return true
	}
	// A move may have landed while the result was on display.
	a.Wake()
	return false
}

func (a *Actor) publishResolved(s *models.Session) {
	if a.publisher == nil || s == nil {
		return
	}
	payload := events.RoundResolvedPayload{ResolvedAt: a.clock.Now()}
	switch {
	case s.Duel != nil:
		payload.Round = s.Duel.CurrentRound
		payload.RoundWinner = s.Duel.RoundWinner
		payload.ResultText = s.Duel.RoundResultText
	case s.RPS != nil:
		payload.Round = s.RPS.CurrentRound
		payload.RoundWinner = s.RPS.RoundWinner
		payload.ResultText = s.RPS.RoundResultText
	case s.Poker != nil:
		payload.RoundWinner = models.WinnerDraw
		if len(s.Poker.Winners) == 1 {
			winner := s.Poker.Winners[0]
			payload.RoundWinner = winner
			payload.ResultText = fmt.Sprintf("%s wins with %s", s.Players[winner].DisplayName, DescribeHand(s.Poker.PlayerHands[winner]))
		}
	}
	a.publisher.Publish(events.SessionEvent{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		GameKind:  s.GameKind,
		Type:      events.EventTypeRoundResolved,
		Timestamp: a.clock.Now(),
		Data:      mustJSON(payload),
	})
}
