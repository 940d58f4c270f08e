package models

// PokerPhase is the simplified draw-poker progression.
type PokerPhase string

const (
	PokerPhaseDealing    PokerPhase = "dealing"
	PokerPhaseExchanging PokerPhase = "exchanging"
	PokerPhaseShowdown   PokerPhase = "showdown"
	PokerPhaseFinished   PokerPhase = "finished"
)

// PokerMaxExchanges caps how many times a seat may swap cards before showdown.
const PokerMaxExchanges = 2

// PokerHandSize is the dealt hand size.
const PokerHandSize = 5

// PokerState is the simplified multi-seat draw poker state. Selected card
// indices are client-local and never synchronized.
type PokerState struct {
	Phase            PokerPhase           `json:"phase"`
	Deck             []CardRef            `json:"deck"`
	PlayerHands      map[string][]CardRef `json:"player_hands"`
	ExchangeCounts   map[string]int       `json:"exchange_counts"`
	Stands           map[string]bool      `json:"stands"`
	PlayerRanks      map[string]string    `json:"player_ranks,omitempty"`
	TurnOrder        []string             `json:"turn_order"`
	CurrentTurnIndex int                  `json:"current_turn_index"`
	Winners          []string             `json:"winners,omitempty"`
}

// CurrentTurn returns the seat whose turn it is, or "" outside the
// exchanging phase.
func (p *PokerState) CurrentTurn() string {
	if p.Phase != PokerPhaseExchanging || len(p.TurnOrder) == 0 {
		return ""
	}
	return p.TurnOrder[p.CurrentTurnIndex%len(p.TurnOrder)]
}

// AdvanceTurn rotates to the next seat.
func (p *PokerState) AdvanceTurn() {
	if len(p.TurnOrder) == 0 {
		return
	}
	p.CurrentTurnIndex = (p.CurrentTurnIndex + 1) % len(p.TurnOrder)
}

func (p *PokerState) clone() *PokerState {
	if p == nil {
		return nil
	}
	out := *p
	out.Deck = append([]CardRef(nil), p.Deck...)
	out.PlayerHands = make(map[string][]CardRef, len(p.PlayerHands))
	for uid, hand := range p.PlayerHands {
		out.PlayerHands[uid] = append([]CardRef(nil), hand...)
	}
	out.ExchangeCounts = cloneCounts(p.ExchangeCounts)
	out.Stands = make(map[string]bool, len(p.Stands))
	for uid, v := range p.Stands {
		out.Stands[uid] = v
	}
	out.PlayerRanks = make(map[string]string, len(p.PlayerRanks))
	for uid, r := range p.PlayerRanks {
		out.PlayerRanks[uid] = r
	}
	out.TurnOrder = append([]string(nil), p.TurnOrder...)
	out.Winners = append([]string(nil), p.Winners...)
	return &out
}
