// Package engine owns round resolution. One actor goroutine runs per active
// session and is the only writer of resolved-round fields; every outcome is
// applied inside a CAS transaction on the session record, so a round can
// resolve at most once no matter how notifications interleave.
package engine

import (
	"fmt"
	"math/rand"
	"time"

	"cardarena/internal/models"
)

// Progress reports what ResolveIfReady did with the session.
type Progress int

const (
	// ProgressNone means preconditions did not hold; nothing was written.
	ProgressNone Progress = iota
	// ProgressChanged means state advanced (e.g. a phase transition) with
	// no delayed follow-up.
	ProgressChanged
	// ProgressResolved means a round outcome was written; Advance must run
	// after the display delay.
	ProgressResolved
	// ProgressPending means a previously resolved round is still awaiting
	// its delayed Advance. Nothing was written; an actor adopting the
	// session must arm its advance timer.
	ProgressPending
)

// Rules is one game kind's state machine. Implementations mutate the session
// they are given; the caller persists it transactionally.
type Rules interface {
	Kind() models.GameKind

	// Init populates the game state once every seat is filled. Seat-indexed
	// structures follow the order of s.PlayerIDs.
	Init(s *models.Session, rng *rand.Rand)

	// ResolveIfReady re-checks the round's preconditions against the current
	// record and, when they hold, writes the resolved outcome. It is called
	// from change notifications arriving in arbitrary relative order and
	// must never trust anything but the session it is handed.
	ResolveIfReady(s *models.Session) Progress

	// Advance runs after the display delay that follows a resolved round:
	// it either terminates the session or resets it for the next round.
	// advanced is false when the session was not in a resolved-round state
	// (nothing was written); finished is true when the session terminated.
	Advance(s *models.Session, now time.Time) (advanced, finished bool)

	// AvailableMoves lists the legal moves for a seat, used by the
	// suggestion fallback.
	AvailableMoves(s *models.Session, uid string) []string
}

// RulesFor returns the rules for a game kind.
func RulesFor(kind models.GameKind) (Rules, error) {
	switch kind {
	case models.GameKindDuel:
		return DuelRules{}, nil
	case models.GameKindRPS:
		return RPSRules{}, nil
	case models.GameKindPoker:
		return PokerRules{}, nil
	}
	return nil, fmt.Errorf("no rules for game kind %q", kind)
}

// finish stamps the terminal state on a session.
func finish(s *models.Session, winner string, now time.Time) {
	s.Status = models.SessionStatusFinished
	s.Winner = winner
	t := now
	s.FinishedAt = &t
}
