package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"cardarena/internal/deck"
	"cardarena/internal/models"
)

// PokerRules implements the simplified multi-seat draw poker. The turn
// rotation is authoritative: only the seat at the current turn index may act,
// each seat exchanges at most twice, and once every seat has stood the
// showdown ranks all hands with a fixed strength ordering.
type PokerRules struct{}

func (PokerRules) Kind() models.GameKind { return models.GameKindPoker }

func (PokerRules) Init(s *models.Session, rng *rand.Rand) {
	p := &models.PokerState{
		Phase:          models.PokerPhaseDealing,
		Deck:           deck.Poker(rng),
		PlayerHands:    make(map[string][]models.CardRef, len(s.PlayerIDs)),
		ExchangeCounts: make(map[string]int, len(s.PlayerIDs)),
		Stands:         make(map[string]bool, len(s.PlayerIDs)),
		TurnOrder:      append([]string(nil), s.PlayerIDs...),
	}
	for _, uid := range s.PlayerIDs {
		p.PlayerHands[uid], p.Deck = deck.Draw(p.Deck, models.PokerHandSize)
		p.ExchangeCounts[uid] = 0
	}
	p.Phase = models.PokerPhaseExchanging
	s.Poker = p
}

func (PokerRules) ResolveIfReady(s *models.Session) Progress {
	p := s.Poker
	if p == nil || s.Status != models.SessionStatusActive {
		return ProgressNone
	}
	if p.Phase == models.PokerPhaseShowdown {
		return ProgressPending
	}
	if p.Phase != models.PokerPhaseExchanging {
		return ProgressNone
	}
	for _, uid := range s.PlayerIDs {
		if !p.Stands[uid] {
			return ProgressNone
		}
	}

	// Everyone stood: showdown.
	p.Phase = models.PokerPhaseShowdown
	p.PlayerRanks = make(map[string]string, len(s.PlayerIDs))

	best := handValue{}
	var winners []string
	for _, uid := range s.PlayerIDs {
		hv := evaluateHand(p.PlayerHands[uid])
		p.PlayerRanks[uid] = hv.Name
		switch cmp := hv.Compare(best); {
		case len(winners) == 0 || cmp > 0:
			best = hv
			winners = []string{uid}
		case cmp == 0:
			winners = append(winners, uid)
		}
	}
	p.Winners = winners
	return ProgressResolved
}

func (PokerRules) Advance(s *models.Session, now time.Time) (advanced, finished bool) {
	p := s.Poker
	if p == nil || s.Status != models.SessionStatusActive || p.Phase != models.PokerPhaseShowdown {
		return false, false
	}
	p.Phase = models.PokerPhaseFinished
	winner := models.WinnerDraw
	if len(p.Winners) == 1 {
		winner = p.Winners[0]
	}
	finish(s, winner, now)
	return true, true
}

func (PokerRules) AvailableMoves(s *models.Session, uid string) []string {
	p := s.Poker
	if p == nil || p.Stands[uid] {
		return nil
	}
	moves := []string{"stand"}
	if p.ExchangeCounts[uid] < models.PokerMaxExchanges {
		for _, c := range p.PlayerHands[uid] {
			moves = append(moves, "exchange:"+c.ID)
		}
	}
	return moves
}

// Hand categories, weakest to strongest.
const (
	handHighCard = iota
	handOnePair
	handTwoPair
	handThreeOfAKind
	handStraight
	handFlush
	handFullHouse
	handFourOfAKind
	handStraightFlush
)

var handNames = map[int]string{
	handHighCard:      "high card",
	handOnePair:       "one pair",
	handTwoPair:       "two pair",
	handThreeOfAKind:  "three of a kind",
	handStraight:      "straight",
	handFlush:         "flush",
	handFullHouse:     "full house",
	handFourOfAKind:   "four of a kind",
	handStraightFlush: "straight flush",
}

type handValue struct {
	Category int
	// Tiebreak ordinals, most significant first. Ace counts high except in
	// the wheel straight.
	Tiebreak []int
	Name     string
}

// Compare orders hand values; positive means hv is stronger.
func (hv handValue) Compare(other handValue) int {
	if hv.Category != other.Category {
		return hv.Category - other.Category
	}
	for i := 0; i < len(hv.Tiebreak) && i < len(other.Tiebreak); i++ {
		if hv.Tiebreak[i] != other.Tiebreak[i] {
			return hv.Tiebreak[i] - other.Tiebreak[i]
		}
	}
	return 0
}

// evaluateHand ranks a five-card hand. The wild suit may stand in for any
// one standard suit when completing a flush; ranks are unaffected by suit.
func evaluateHand(hand []models.CardRef) handValue {
	flush := isFlush(hand)
	straightHigh, straight := straightHigh(hand)
	groups := rankGroups(hand)

	var hv handValue
	switch {
	case flush && straight:
		hv = handValue{Category: handStraightFlush, Tiebreak: []int{straightHigh}}
	case len(groups) > 0 && groups[0].count == 4:
		hv = handValue{Category: handFourOfAKind, Tiebreak: groupTiebreak(groups)}
	case len(groups) > 1 && groups[0].count == 3 && groups[1].count == 2:
		hv = handValue{Category: handFullHouse, Tiebreak: groupTiebreak(groups)}
	case flush:
		hv = handValue{Category: handFlush, Tiebreak: groupTiebreak(groups)}
	case straight:
		hv = handValue{Category: handStraight, Tiebreak: []int{straightHigh}}
	case len(groups) > 0 && groups[0].count == 3:
		hv = handValue{Category: handThreeOfAKind, Tiebreak: groupTiebreak(groups)}
	case len(groups) > 1 && groups[0].count == 2 && groups[1].count == 2:
		hv = handValue{Category: handTwoPair, Tiebreak: groupTiebreak(groups)}
	case len(groups) > 0 && groups[0].count == 2:
		hv = handValue{Category: handOnePair, Tiebreak: groupTiebreak(groups)}
	default:
		hv = handValue{Category: handHighCard, Tiebreak: groupTiebreak(groups)}
	}
	hv.Name = handNames[hv.Category]
	if flush && hasWild(hand) && (hv.Category == handFlush || hv.Category == handStraightFlush) {
		hv.Name = "wild " + hv.Name
	}
	return hv
}

func hasWild(hand []models.CardRef) bool {
	for _, c := range hand {
		if c.Suit == models.SuitWild {
			return true
		}
	}
	return false
}

// isFlush reports whether every card shares one standard suit, counting
// wild-suit cards as that suit. An all-wild hand is a flush of the wild
// suit itself.
func isFlush(hand []models.CardRef) bool {
	var suit models.Suit
	for _, c := range hand {
		if c.Suit == models.SuitWild {
			continue
		}
		if suit == "" {
			suit = c.Suit
			continue
		}
		if c.Suit != suit {
			return false
		}
	}
	return true
}

// straightHigh reports whether the ordinals form a five-card run, returning
// the high card. The ace plays high (10-J-Q-K-A) or low (A-2-3-4-5).
func straightHigh(hand []models.CardRef) (int, bool) {
	seen := make(map[int]bool, len(hand))
	for _, c := range hand {
		if seen[c.Ordinal] {
			return 0, false
		}
		seen[c.Ordinal] = true
	}
	ordinals := make([]int, 0, len(hand))
	for o := range seen {
		ordinals = append(ordinals, aceHigh(o))
	}
	lo, hi := ordinals[0], ordinals[0]
	for _, o := range ordinals[1:] {
		if o < lo {
			lo = o
		}
		if o > hi {
			hi = o
		}
	}
	if hi-lo == len(hand)-1 {
		return hi, true
	}
	// Wheel: A-2-3-4-5 with the ace counted high above.
	if seen[1] && seen[2] && seen[3] && seen[4] && seen[5] {
		return 5, true
	}
	return 0, false
}

// aceHigh maps ordinal 1 to 14 so the ace outranks the king outside the
// wheel.
func aceHigh(ordinal int) int {
	if ordinal == 1 {
		return 14
	}
	return ordinal
}

type rankGroup struct {
	ordinal int
	count   int
}

// rankGroups buckets the hand by rank, ordered by count then ordinal,
// descending.
func rankGroups(hand []models.CardRef) []rankGroup {
	counts := make(map[int]int)
	for _, c := range hand {
		counts[aceHigh(c.Ordinal)]++
	}
	groups := make([]rankGroup, 0, len(counts))
	for ordinal, count := range counts {
		groups = append(groups, rankGroup{ordinal: ordinal, count: count})
	}
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			gi, gj := groups[i], groups[j]
			if gj.count > gi.count || (gj.count == gi.count && gj.ordinal > gi.ordinal) {
				groups[i], groups[j] = groups[j], groups[i]
			}
		}
	}
	return groups
}

func groupTiebreak(groups []rankGroup) []int {
	out := make([]int, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ordinal)
	}
	return out
}

// DescribeHand names a hand for result text.
func DescribeHand(hand []models.CardRef) string {
	ranks := make([]string, 0, len(hand))
	for _, c := range hand {
		ranks = append(ranks, c.Rank)
	}
	return fmt.Sprintf("%s (%s)", evaluateHand(hand).Name, strings.Join(ranks, " "))
}
