package models

// DuelFinalRound is the last round of a duel session.
const DuelFinalRound = 13

// DuelKyusoLimit ends the session in favor of the seat whose kyuso counter
// reaches it.
const DuelKyusoLimit = 3

// DuelState is the duel game state. A round is pending while RoundWinner is
// empty; it resolves exactly once, after which hands are pruned of the played
// cards and the session either finishes or resets moves for the next round.
type DuelState struct {
	CurrentRound int                  `json:"current_round"`
	PlayerHands  map[string][]CardRef `json:"player_hands"`
	Scores       map[string]int       `json:"scores"`
	KyusoCounts  map[string]int       `json:"kyuso_counts"`
	OnlyCounts   map[string]int       `json:"only_counts"`
	Moves        map[string]*CardRef  `json:"moves"`
	// RoundWinner is a player id, WinnerDraw, or empty while pending.
	RoundWinner       string `json:"round_winner,omitempty"`
	RoundResultText   string `json:"round_result_text,omitempty"`
	RoundResultDetail string `json:"round_result_detail,omitempty"`
}

// BothMoved reports whether every seat has submitted this round's move.
func (d *DuelState) BothMoved(playerIDs []string) bool {
	for _, uid := range playerIDs {
		if d.Moves[uid] == nil {
			return false
		}
	}
	return len(playerIDs) > 0
}

// PruneHand removes the played card from uid's hand.
func (d *DuelState) PruneHand(uid string, cardID string) bool {
	hand, ok := removeCard(d.PlayerHands[uid], cardID)
	if ok {
		d.PlayerHands[uid] = hand
	}
	return ok
}

// ResetRound clears per-round fields ahead of the next round.
func (d *DuelState) ResetRound() {
	for uid := range d.Moves {
		d.Moves[uid] = nil
	}
	d.RoundWinner = ""
	d.RoundResultText = ""
	d.RoundResultDetail = ""
}

func (d *DuelState) clone() *DuelState {
	if d == nil {
		return nil
	}
	out := *d
	out.PlayerHands = make(map[string][]CardRef, len(d.PlayerHands))
	for uid, hand := range d.PlayerHands {
		out.PlayerHands[uid] = append([]CardRef(nil), hand...)
	}
	out.Scores = cloneCounts(d.Scores)
	out.KyusoCounts = cloneCounts(d.KyusoCounts)
	out.OnlyCounts = cloneCounts(d.OnlyCounts)
	out.Moves = make(map[string]*CardRef, len(d.Moves))
	for uid, mv := range d.Moves {
		if mv == nil {
			out.Moves[uid] = nil
			continue
		}
		c := *mv
		out.Moves[uid] = &c
	}
	return &out
}

func cloneCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
