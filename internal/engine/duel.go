package engine

import (
	"fmt"
	"math/rand"
	"time"

	"cardarena/internal/deck"
	"cardarena/internal/models"
)

// DuelRules implements the simultaneous-reveal duel. Higher ordinal wins,
// except that a card exactly one below the opponent's wins instantly
// ("kyuso") and ordinal 1 beats ordinal 13 outright ("only"). The session
// ends when an only win lands, a seat's kyuso count reaches the limit, or
// round 13 resolves.
type DuelRules struct{}

func (DuelRules) Kind() models.GameKind { return models.GameKindDuel }

func (DuelRules) Init(s *models.Session, rng *rand.Rand) {
	d := &models.DuelState{
		CurrentRound: 1,
		PlayerHands:  make(map[string][]models.CardRef, len(s.PlayerIDs)),
		Scores:       make(map[string]int, len(s.PlayerIDs)),
		KyusoCounts:  make(map[string]int, len(s.PlayerIDs)),
		OnlyCounts:   make(map[string]int, len(s.PlayerIDs)),
		Moves:        make(map[string]*models.CardRef, len(s.PlayerIDs)),
	}
	for seat, uid := range s.PlayerIDs {
		d.PlayerHands[uid] = deck.DuelHand(seat, rng)
		d.Scores[uid] = 0
		d.KyusoCounts[uid] = 0
		d.OnlyCounts[uid] = 0
		d.Moves[uid] = nil
	}
	s.Duel = d
}

func (DuelRules) ResolveIfReady(s *models.Session) Progress {
	d := s.Duel
	if d == nil || s.Status != models.SessionStatusActive {
		return ProgressNone
	}
	if d.RoundWinner != "" {
		return ProgressPending
	}
	if !d.BothMoved(s.PlayerIDs) {
		return ProgressNone
	}

	a, b := s.PlayerIDs[0], s.PlayerIDs[1]
	moveA, moveB := *d.Moves[a], *d.Moves[b]

	winner, rule := compareDuel(moveA, moveB, a, b)
	switch rule {
	case duelRuleOnly:
		d.OnlyCounts[winner]++
		d.Scores[winner]++
	case duelRuleKyuso:
		d.KyusoCounts[winner]++
		d.Scores[winner]++
	case duelRuleNumber:
		d.Scores[winner]++
	case duelRuleTie:
		winner = models.WinnerDraw
	}

	d.RoundWinner = winner
	d.RoundResultText, d.RoundResultDetail = duelResultText(s, moveA, moveB, winner, rule)

	d.PruneHand(a, moveA.ID)
	d.PruneHand(b, moveB.ID)
	return ProgressResolved
}

func (DuelRules) Advance(s *models.Session, now time.Time) (advanced, finished bool) {
	d := s.Duel
	if d == nil || s.Status != models.SessionStatusActive || d.RoundWinner == "" {
		return false, false
	}

	// An only win or the kyuso limit terminates immediately, even
	// mid-round-count.
	for _, uid := range s.PlayerIDs {
		if d.OnlyCounts[uid] > 0 {
			finish(s, uid, now)
			return true, true
		}
	}
	for _, uid := range s.PlayerIDs {
		if d.KyusoCounts[uid] >= models.DuelKyusoLimit {
			finish(s, uid, now)
			return true, true
		}
	}
	if d.CurrentRound >= models.DuelFinalRound {
		finish(s, duelScoreWinner(s), now)
		return true, true
	}

	d.CurrentRound++
	d.ResetRound()
	return true, false
}

func (DuelRules) AvailableMoves(s *models.Session, uid string) []string {
	if s.Duel == nil {
		return nil
	}
	hand := s.Duel.PlayerHands[uid]
	moves := make([]string, 0, len(hand))
	for _, c := range hand {
		moves = append(moves, c.ID)
	}
	return moves
}

type duelRule int

const (
	duelRuleTie duelRule = iota
	duelRuleOnly
	duelRuleKyuso
	duelRuleNumber
)

// compareDuel decides a duel round. Rule precedence: only, then kyuso, then
// plain numeric comparison; equal ordinals tie.
func compareDuel(moveA, moveB models.CardRef, a, b string) (winner string, rule duelRule) {
	switch {
	case moveA.Ordinal == 1 && moveB.Ordinal == models.DuelFinalRound:
		return a, duelRuleOnly
	case moveB.Ordinal == 1 && moveA.Ordinal == models.DuelFinalRound:
		return b, duelRuleOnly
	case moveA.Ordinal == moveB.Ordinal-1:
		return a, duelRuleKyuso
	case moveB.Ordinal == moveA.Ordinal-1:
		return b, duelRuleKyuso
	case moveA.Ordinal > moveB.Ordinal:
		return a, duelRuleNumber
	case moveB.Ordinal > moveA.Ordinal:
		return b, duelRuleNumber
	}
	return "", duelRuleTie
}

// duelScoreWinner picks the final-round winner by score, or a draw on tie.
func duelScoreWinner(s *models.Session) string {
	a, b := s.PlayerIDs[0], s.PlayerIDs[1]
	switch {
	case s.Duel.Scores[a] > s.Duel.Scores[b]:
		return a
	case s.Duel.Scores[b] > s.Duel.Scores[a]:
		return b
	}
	return models.WinnerDraw
}

func duelResultText(s *models.Session, moveA, moveB models.CardRef, winner string, rule duelRule) (text, detail string) {
	if winner == models.WinnerDraw {
		return "Draw!", fmt.Sprintf("Both played %s.", moveA.Rank)
	}
	name := s.Players[winner].DisplayName
	switch rule {
	case duelRuleOnly:
		return fmt.Sprintf("%s wins with Only!", name),
			fmt.Sprintf("The ace takes down the king: %s beats %s.", cardOf(winner, s, moveA, moveB).Rank, cardOfOther(winner, s, moveA, moveB).Rank)
	case duelRuleKyuso:
		return fmt.Sprintf("%s wins with Kyuso!", name),
			fmt.Sprintf("A near miss: %s edges out %s.", cardOf(winner, s, moveA, moveB).Rank, cardOfOther(winner, s, moveA, moveB).Rank)
	default:
		return fmt.Sprintf("%s wins the round.", name),
			fmt.Sprintf("%s beats %s.", cardOf(winner, s, moveA, moveB).Rank, cardOfOther(winner, s, moveA, moveB).Rank)
	}
}

func cardOf(uid string, s *models.Session, moveA, moveB models.CardRef) models.CardRef {
	if uid == s.PlayerIDs[0] {
		return moveA
	}
	return moveB
}

func cardOfOther(uid string, s *models.Session, moveA, moveB models.CardRef) models.CardRef {
	if uid == s.PlayerIDs[0] {
		return moveB
	}
	return moveA
}
