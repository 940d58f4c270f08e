package models

import "fmt"

// Suit is a card suit. SuitWild may substitute for any one standard suit
// when completing a poker flush.
type Suit string

const (
	SuitSpade   Suit = "spade"
	SuitHeart   Suit = "heart"
	SuitDiamond Suit = "diamond"
	SuitClub    Suit = "club"
	SuitWild    Suit = "wild"
)

// StandardSuits are the four non-wild suits.
var StandardSuits = []Suit{SuitSpade, SuitHeart, SuitDiamond, SuitClub}

// CardRef is the lightweight card reference kept in shared state. Display
// metadata (images, captions) is resolved client-side from the catalog by ID
// and never synchronized.
type CardRef struct {
	ID      string `json:"id"`
	Suit    Suit   `json:"suit"`
	Rank    string `json:"rank"`
	Ordinal int    `json:"ordinal"`
}

// NewCardRef builds a card reference with a deterministic id.
func NewCardRef(suit Suit, ordinal int) CardRef {
	return CardRef{
		ID:      fmt.Sprintf("%s-%d", suit, ordinal),
		Suit:    suit,
		Rank:    rankName(ordinal),
		Ordinal: ordinal,
	}
}

func rankName(ordinal int) string {
	switch ordinal {
	case 1:
		return "A"
	case 11:
		return "J"
	case 12:
		return "Q"
	case 13:
		return "K"
	default:
		return fmt.Sprintf("%d", ordinal)
	}
}

// removeCard drops the first card with the given id from hand, returning
// the pruned hand and whether the card was present.
func removeCard(hand []CardRef, id string) ([]CardRef, bool) {
	for i, c := range hand {
		if c.ID == id {
			return append(hand[:i:i], hand[i+1:]...), true
		}
	}
	return hand, false
}
