// Package deck builds and shuffles the card sets the game kinds deal from.
// Only lightweight card references move through shared state; anything
// display-related lives in the catalog and is resolved client-side by id.
package deck

import (
	"math/rand"

	"cardarena/internal/models"
)

// DuelHand returns the thirteen-card hand for one duel seat. Each seat plays
// a full suit; seat index picks the suit so initialization is deterministic
// given the seat order.
func DuelHand(seat int, rng *rand.Rand) []models.CardRef {
	suit := models.StandardSuits[seat%len(models.StandardSuits)]
	hand := make([]models.CardRef, 0, models.DuelFinalRound)
	for ordinal := 1; ordinal <= models.DuelFinalRound; ordinal++ {
		hand = append(hand, models.NewCardRef(suit, ordinal))
	}
	Shuffle(hand, rng)
	return hand
}

// Poker builds the shuffled poker deck: the four standard suits plus the
// wild suit, thirteen ranks each.
func Poker(rng *rand.Rand) []models.CardRef {
	suits := append(append([]models.Suit(nil), models.StandardSuits...), models.SuitWild)
	cards := make([]models.CardRef, 0, len(suits)*13)
	for _, suit := range suits {
		for ordinal := 1; ordinal <= 13; ordinal++ {
			cards = append(cards, models.NewCardRef(suit, ordinal))
		}
	}
	Shuffle(cards, rng)
	return cards
}

// Shuffle permutes cards in place.
func Shuffle(cards []models.CardRef, rng *rand.Rand) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Draw removes and returns the top n cards. It returns fewer when the deck
// runs short.
func Draw(cards []models.CardRef, n int) (drawn, rest []models.CardRef) {
	if n > len(cards) {
		n = len(cards)
	}
	drawn = append([]models.CardRef(nil), cards[:n]...)
	rest = append([]models.CardRef(nil), cards[n:]...)
	return drawn, rest
}
