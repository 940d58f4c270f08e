package engine

import (
	"math/rand"
	"testing"
	"time"

	"cardarena/internal/models"
)

func newRPSSession(t *testing.T) *models.Session {
	t.Helper()
	s := &models.Session{
		ID:        "rps-1",
		GameKind:  models.GameKindRPS,
		HostID:    "alice",
		PlayerIDs: []string{"alice", "bob"},
		Players: map[string]models.PlayerProfile{
			"alice": {DisplayName: "Alice"},
			"bob":   {DisplayName: "Bob"},
		},
		Status:     models.SessionStatusActive,
		MaxPlayers: 2,
		CreatedAt:  time.Now(),
	}
	RPSRules{}.Init(s, rand.New(rand.NewSource(1)))
	return s
}

func throwRPS(s *models.Session, uid string, phase models.RPSPhase, mv models.RPSMove) {
	seat := s.RPS.Moves[uid]
	if phase == models.RPSPhaseInitial {
		seat.Initial = &mv
	} else {
		seat.Final = &mv
	}
}

func TestRPSInitialPhaseOpensFinal(t *testing.T) {
	s := newRPSSession(t)

	throwRPS(s, "alice", models.RPSPhaseInitial, models.RPSRock)
	if got := (RPSRules{}).ResolveIfReady(s); got != ProgressNone {
		t.Fatalf("ResolveIfReady with one initial = %d, want ProgressNone", got)
	}

	throwRPS(s, "bob", models.RPSPhaseInitial, models.RPSScissors)
	if got := (RPSRules{}).ResolveIfReady(s); got != ProgressChanged {
		t.Fatalf("ResolveIfReady with both initials = %d, want ProgressChanged", got)
	}
	if s.RPS.Phase != models.RPSPhaseFinal {
		t.Errorf("phase = %s, want final", s.RPS.Phase)
	}
	if s.RPS.RoundWinner != "" {
		t.Error("no winner should be decided at the phase transition")
	}
}

func TestRPSResolveFinalRound(t *testing.T) {
	tests := []struct {
		name                   string
		initialA, finalA       models.RPSMove
		initialB, finalB       models.RPSMove
		wantWinner             string
		wantScoreA, wantScoreB int
	}{
		{
			name:     "plain win no changes",
			initialA: models.RPSRock, finalA: models.RPSRock,
			initialB: models.RPSScissors, finalB: models.RPSScissors,
			wantWinner: "alice", wantScoreA: 1,
		},
		{
			name:     "plain draw no changes",
			initialA: models.RPSPaper, finalA: models.RPSPaper,
			initialB: models.RPSPaper, finalB: models.RPSPaper,
			wantWinner: models.WinnerDraw,
		},
		{
			name:     "changed throw that still wins is safe",
			initialA: models.RPSRock, finalA: models.RPSPaper,
			initialB: models.RPSRock, finalB: models.RPSRock,
			wantWinner: "alice", wantScoreA: 1,
		},
		{
			// The switch to paper would draw against paper, but backing out
			// of the initial without beating the opponent loses outright.
			name:     "changed throw into a plain draw is penalized",
			initialA: models.RPSRock, finalA: models.RPSPaper,
			initialB: models.RPSPaper, finalB: models.RPSPaper,
			wantWinner: "bob", wantScoreB: 1,
		},
		{
			name:     "changed throw that loses is penalized",
			initialA: models.RPSRock, finalA: models.RPSScissors,
			initialB: models.RPSRock, finalB: models.RPSRock,
			wantWinner: "bob", wantScoreB: 1,
		},
		{
			name:     "both penalized draws the round",
			initialA: models.RPSRock, finalA: models.RPSPaper,
			initialB: models.RPSScissors, finalB: models.RPSPaper,
			wantWinner: models.WinnerDraw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRPSSession(t)
			throwRPS(s, "alice", models.RPSPhaseInitial, tt.initialA)
			throwRPS(s, "bob", models.RPSPhaseInitial, tt.initialB)
			if got := (RPSRules{}).ResolveIfReady(s); got != ProgressChanged {
				t.Fatalf("initial ResolveIfReady = %d, want ProgressChanged", got)
			}

			throwRPS(s, "alice", models.RPSPhaseFinal, tt.finalA)
			throwRPS(s, "bob", models.RPSPhaseFinal, tt.finalB)
			if got := (RPSRules{}).ResolveIfReady(s); got != ProgressResolved {
				t.Fatalf("final ResolveIfReady = %d, want ProgressResolved", got)
			}

			r := s.RPS
			if r.RoundWinner != tt.wantWinner {
				t.Errorf("RoundWinner = %q, want %q", r.RoundWinner, tt.wantWinner)
			}
			if r.Scores["alice"] != tt.wantScoreA || r.Scores["bob"] != tt.wantScoreB {
				t.Errorf("scores = %d/%d, want %d/%d", r.Scores["alice"], r.Scores["bob"], tt.wantScoreA, tt.wantScoreB)
			}
			if r.Phase != models.RPSPhaseResult {
				t.Errorf("phase = %s, want result", r.Phase)
			}

			// Re-resolution writes nothing; the result phase is reported as
			// awaiting its delayed advance.
			if got := (RPSRules{}).ResolveIfReady(s); got != ProgressPending {
				t.Errorf("re-resolve = %d, want ProgressPending", got)
			}
		})
	}
}

func TestRPSAdvanceResetsRoundAndNeverFinishes(t *testing.T) {
	s := newRPSSession(t)
	throwRPS(s, "alice", models.RPSPhaseInitial, models.RPSRock)
	throwRPS(s, "bob", models.RPSPhaseInitial, models.RPSScissors)
	(RPSRules{}).ResolveIfReady(s)
	throwRPS(s, "alice", models.RPSPhaseFinal, models.RPSRock)
	throwRPS(s, "bob", models.RPSPhaseFinal, models.RPSScissors)
	(RPSRules{}).ResolveIfReady(s)

	advanced, finished := RPSRules{}.Advance(s, time.Now())
	if !advanced || finished {
		t.Fatalf("Advance = (%v, %v), want (true, false)", advanced, finished)
	}
	r := s.RPS
	if r.CurrentRound != 2 || r.Phase != models.RPSPhaseInitial {
		t.Errorf("round=%d phase=%s, want 2/initial", r.CurrentRound, r.Phase)
	}
	if r.Moves["alice"].Initial != nil || r.Moves["bob"].Initial != nil {
		t.Error("throws not cleared")
	}
	if r.Scores["alice"] != 1 {
		t.Errorf("score carried = %d, want 1", r.Scores["alice"])
	}
}

func TestRPSAdvanceOutsideResultPhase(t *testing.T) {
	s := newRPSSession(t)
	advanced, finished := RPSRules{}.Advance(s, time.Now())
	if advanced || finished {
		t.Errorf("Advance = (%v, %v), want (false, false)", advanced, finished)
	}
}
