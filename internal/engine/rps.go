package engine

import (
	"fmt"
	"math/rand"
	"time"

	"cardarena/internal/models"
)

// RPSRules implements the two-phase chicken-rule game. Both seats throw an
// initial move, see each other's throw, then commit a final move. A seat
// that backs out of its initial move and still fails to beat the opponent's
// final loses automatically, ahead of the ordinary comparison. Sessions end
// only by forfeit.
type RPSRules struct{}

func (RPSRules) Kind() models.GameKind { return models.GameKindRPS }

func (RPSRules) Init(s *models.Session, rng *rand.Rand) {
	r := &models.RPSState{
		CurrentRound: 1,
		Scores:       make(map[string]int, len(s.PlayerIDs)),
		Moves:        make(map[string]*models.RPSSeatMoves, len(s.PlayerIDs)),
		Phase:        models.RPSPhaseInitial,
	}
	for _, uid := range s.PlayerIDs {
		r.Scores[uid] = 0
		r.Moves[uid] = &models.RPSSeatMoves{}
	}
	s.RPS = r
}

func (RPSRules) ResolveIfReady(s *models.Session) Progress {
	r := s.RPS
	if r == nil || s.Status != models.SessionStatusActive {
		return ProgressNone
	}

	switch r.Phase {
	case models.RPSPhaseInitial:
		// Both first throws in: open the final phase so each side sees the
		// opponent's initial before committing. No winner yet.
		if !r.AllInitial(s.PlayerIDs) {
			return ProgressNone
		}
		r.Phase = models.RPSPhaseFinal
		return ProgressChanged

	case models.RPSPhaseFinal:
		if !r.AllFinal(s.PlayerIDs) {
			return ProgressNone
		}
		resolveRPSRound(s)
		r.Phase = models.RPSPhaseResult
		return ProgressResolved

	case models.RPSPhaseResult:
		return ProgressPending
	}
	return ProgressNone
}

func (RPSRules) Advance(s *models.Session, now time.Time) (advanced, finished bool) {
	r := s.RPS
	if r == nil || s.Status != models.SessionStatusActive || r.Phase != models.RPSPhaseResult {
		return false, false
	}
	r.CurrentRound++
	r.ResetRound()
	return true, false
}

func (RPSRules) AvailableMoves(s *models.Session, uid string) []string {
	moves := make([]string, 0, len(models.RPSMoves))
	for _, m := range models.RPSMoves {
		moves = append(moves, string(m))
	}
	return moves
}

// resolveRPSRound decides a round once both finals are in. The chicken
// penalty strictly dominates the ordinary comparison: a seat that changed
// its throw and did not beat the opponent's final loses outright, even where
// the plain result would have been a draw.
func resolveRPSRound(s *models.Session) {
	r := s.RPS
	a, b := s.PlayerIDs[0], s.PlayerIDs[1]
	finalA, finalB := *r.Moves[a].Final, *r.Moves[b].Final

	penaltyA := r.Moves[a].Changed() && !finalA.Beats(finalB)
	penaltyB := r.Moves[b].Changed() && !finalB.Beats(finalA)

	switch {
	case penaltyA && penaltyB:
		r.RoundWinner = models.WinnerDraw
		r.RoundResultText = "Both backed out. Draw."
	case penaltyA:
		r.RoundWinner = b
		r.Scores[b]++
		r.RoundResultText = fmt.Sprintf("%s backed out and paid for it. %s wins!", s.Players[a].DisplayName, s.Players[b].DisplayName)
	case penaltyB:
		r.RoundWinner = a
		r.Scores[a]++
		r.RoundResultText = fmt.Sprintf("%s backed out and paid for it. %s wins!", s.Players[b].DisplayName, s.Players[a].DisplayName)
	case finalA == finalB:
		r.RoundWinner = models.WinnerDraw
		r.RoundResultText = fmt.Sprintf("Both threw %s. Draw.", finalA)
	case finalA.Beats(finalB):
		r.RoundWinner = a
		r.Scores[a]++
		r.RoundResultText = fmt.Sprintf("%s beats %s. %s wins!", finalA, finalB, s.Players[a].DisplayName)
	default:
		r.RoundWinner = b
		r.Scores[b]++
		r.RoundResultText = fmt.Sprintf("%s beats %s. %s wins!", finalB, finalA, s.Players[b].DisplayName)
	}
}
