package engine

import (
	"math/rand"
	"testing"
	"time"

	"cardarena/internal/models"
)

func cards(suits []models.Suit, ordinals []int) []models.CardRef {
	hand := make([]models.CardRef, len(ordinals))
	for i := range ordinals {
		hand[i] = models.NewCardRef(suits[i], ordinals[i])
	}
	return hand
}

func sameSuit(suit models.Suit, ordinals ...int) []models.CardRef {
	suits := make([]models.Suit, len(ordinals))
	for i := range suits {
		suits[i] = suit
	}
	return cards(suits, ordinals)
}

func mixedSuits(ordinals ...int) []models.CardRef {
	suits := []models.Suit{models.SuitSpade, models.SuitHeart, models.SuitDiamond, models.SuitClub, models.SuitSpade}
	return cards(suits[:len(ordinals)], ordinals)
}

func TestEvaluateHandCategories(t *testing.T) {
	tests := []struct {
		name         string
		hand         []models.CardRef
		wantCategory int
	}{
		{"high card", mixedSuits(2, 5, 7, 9, 13), handHighCard},
		{"one pair", mixedSuits(4, 4, 7, 9, 13), handOnePair},
		{"two pair", mixedSuits(4, 4, 9, 9, 13), handTwoPair},
		{"three of a kind", mixedSuits(6, 6, 6, 9, 13), handThreeOfAKind},
		{"straight", mixedSuits(5, 6, 7, 8, 9), handStraight},
		{"ace high straight", mixedSuits(10, 11, 12, 13, 1), handStraight},
		{"wheel straight", mixedSuits(1, 2, 3, 4, 5), handStraight},
		{"flush", sameSuit(models.SuitHeart, 2, 5, 8, 11, 13), handFlush},
		{"full house", mixedSuits(3, 3, 3, 10, 10), handFullHouse},
		{"four of a kind", mixedSuits(8, 8, 8, 8, 2), handFourOfAKind},
		{"straight flush", sameSuit(models.SuitSpade, 5, 6, 7, 8, 9), handStraightFlush},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hv := evaluateHand(tt.hand)
			if hv.Category != tt.wantCategory {
				t.Errorf("category = %d (%s), want %d", hv.Category, hv.Name, tt.wantCategory)
			}
		})
	}
}

func TestEvaluateHandWildFlush(t *testing.T) {
	// Four hearts plus a wild-suit card still make a flush.
	hand := cards(
		[]models.Suit{models.SuitHeart, models.SuitHeart, models.SuitHeart, models.SuitHeart, models.SuitWild},
		[]int{2, 5, 8, 11, 13},
	)
	hv := evaluateHand(hand)
	if hv.Category != handFlush {
		t.Fatalf("category = %d (%s), want flush", hv.Category, hv.Name)
	}
	if hv.Name != "wild flush" {
		t.Errorf("name = %q, want wild flush", hv.Name)
	}

	// Two distinct standard suits stay broken even with a wild present.
	broken := cards(
		[]models.Suit{models.SuitHeart, models.SuitSpade, models.SuitHeart, models.SuitHeart, models.SuitWild},
		[]int{2, 5, 8, 11, 13},
	)
	if hv := evaluateHand(broken); hv.Category == handFlush {
		t.Error("mixed standard suits should not flush")
	}
}

func TestHandValueCompare(t *testing.T) {
	pairOfKings := evaluateHand(mixedSuits(13, 13, 2, 5, 9))
	pairOfFours := evaluateHand(mixedSuits(4, 4, 2, 5, 9))
	if pairOfKings.Compare(pairOfFours) <= 0 {
		t.Error("pair of kings should beat pair of fours")
	}

	aceHighStraight := evaluateHand(mixedSuits(10, 11, 12, 13, 1))
	wheel := evaluateHand(mixedSuits(1, 2, 3, 4, 5))
	if aceHighStraight.Compare(wheel) <= 0 {
		t.Error("ace high straight should beat the wheel")
	}

	pairOfAces := evaluateHand(mixedSuits(1, 1, 2, 5, 9))
	if pairOfAces.Compare(pairOfKings) <= 0 {
		t.Error("aces play high in pairs")
	}
}

func newPokerSession(t *testing.T) *models.Session {
	t.Helper()
	ids := []string{"alice", "bob", "carol", "dave"}
	players := make(map[string]models.PlayerProfile, len(ids))
	for _, id := range ids {
		players[id] = models.PlayerProfile{DisplayName: id}
	}
	s := &models.Session{
		ID:         "poker-1",
		GameKind:   models.GameKindPoker,
		HostID:     "alice",
		PlayerIDs:  ids,
		Players:    players,
		Status:     models.SessionStatusActive,
		MaxPlayers: 4,
		CreatedAt:  time.Now(),
	}
	PokerRules{}.Init(s, rand.New(rand.NewSource(7)))
	return s
}

func TestPokerInitDealsHands(t *testing.T) {
	s := newPokerSession(t)
	p := s.Poker
	if p.Phase != models.PokerPhaseExchanging {
		t.Fatalf("phase = %s, want exchanging", p.Phase)
	}
	for _, uid := range s.PlayerIDs {
		if len(p.PlayerHands[uid]) != models.PokerHandSize {
			t.Errorf("%s hand size = %d, want %d", uid, len(p.PlayerHands[uid]), models.PokerHandSize)
		}
	}
	if want := 5*13 - 4*models.PokerHandSize; len(p.Deck) != want {
		t.Errorf("deck size = %d, want %d", len(p.Deck), want)
	}
	if p.CurrentTurn() != "alice" {
		t.Errorf("first turn = %q, want alice", p.CurrentTurn())
	}
}

func TestPokerShowdownWaitsForAllStands(t *testing.T) {
	s := newPokerSession(t)
	for _, uid := range s.PlayerIDs[:3] {
		s.Poker.Stands[uid] = true
	}
	if got := (PokerRules{}).ResolveIfReady(s); got != ProgressNone {
		t.Fatalf("ResolveIfReady with a seat still playing = %d, want ProgressNone", got)
	}

	s.Poker.Stands["dave"] = true
	if got := (PokerRules{}).ResolveIfReady(s); got != ProgressResolved {
		t.Fatalf("ResolveIfReady with all stands = %d, want ProgressResolved", got)
	}
	p := s.Poker
	if p.Phase != models.PokerPhaseShowdown {
		t.Errorf("phase = %s, want showdown", p.Phase)
	}
	if len(p.Winners) == 0 {
		t.Error("showdown decided no winners")
	}
	for _, uid := range s.PlayerIDs {
		if p.PlayerRanks[uid] == "" {
			t.Errorf("no rank recorded for %s", uid)
		}
	}
}

func TestPokerShowdownPicksStrongestHand(t *testing.T) {
	s := newPokerSession(t)
	p := s.Poker
	p.PlayerHands["alice"] = mixedSuits(2, 5, 7, 9, 13)
	p.PlayerHands["bob"] = mixedSuits(4, 4, 7, 9, 13)
	p.PlayerHands["carol"] = sameSuit(models.SuitSpade, 5, 6, 7, 8, 9)
	p.PlayerHands["dave"] = mixedSuits(3, 3, 3, 10, 10)
	for _, uid := range s.PlayerIDs {
		p.Stands[uid] = true
	}

	(PokerRules{}).ResolveIfReady(s)
	if len(p.Winners) != 1 || p.Winners[0] != "carol" {
		t.Errorf("winners = %v, want [carol]", p.Winners)
	}

	advanced, finished := PokerRules{}.Advance(s, time.Now())
	if !advanced || !finished {
		t.Fatalf("Advance = (%v, %v), want (true, true)", advanced, finished)
	}
	if s.Status != models.SessionStatusFinished || s.Winner != "carol" {
		t.Errorf("status=%s winner=%s, want finished/carol", s.Status, s.Winner)
	}
	if s.Poker.Phase != models.PokerPhaseFinished {
		t.Errorf("phase = %s, want finished", s.Poker.Phase)
	}
}

func TestPokerShowdownTieIsDraw(t *testing.T) {
	s := newPokerSession(t)
	p := s.Poker
	p.PlayerHands["alice"] = cards(
		[]models.Suit{models.SuitSpade, models.SuitHeart, models.SuitDiamond, models.SuitClub, models.SuitSpade},
		[]int{13, 13, 2, 5, 9},
	)
	p.PlayerHands["bob"] = cards(
		[]models.Suit{models.SuitHeart, models.SuitDiamond, models.SuitClub, models.SuitSpade, models.SuitHeart},
		[]int{13, 13, 2, 5, 9},
	)
	p.PlayerHands["carol"] = mixedSuits(2, 4, 6, 9, 11)
	p.PlayerHands["dave"] = mixedSuits(2, 4, 6, 8, 11)
	for _, uid := range s.PlayerIDs {
		p.Stands[uid] = true
	}

	(PokerRules{}).ResolveIfReady(s)
	if len(p.Winners) != 2 {
		t.Fatalf("winners = %v, want alice and bob", p.Winners)
	}

	advanced, finished := PokerRules{}.Advance(s, time.Now())
	if !advanced || !finished {
		t.Fatalf("Advance = (%v, %v), want (true, true)", advanced, finished)
	}
	if s.Winner != models.WinnerDraw {
		t.Errorf("winner = %q, want draw", s.Winner)
	}
}

func TestPokerAvailableMoves(t *testing.T) {
	s := newPokerSession(t)
	moves := PokerRules{}.AvailableMoves(s, "alice")
	if len(moves) != 1+models.PokerHandSize {
		t.Fatalf("got %d moves, want stand plus %d exchanges", len(moves), models.PokerHandSize)
	}
	if moves[0] != "stand" {
		t.Errorf("first move = %q, want stand", moves[0])
	}

	s.Poker.ExchangeCounts["alice"] = models.PokerMaxExchanges
	if moves := (PokerRules{}).AvailableMoves(s, "alice"); len(moves) != 1 {
		t.Errorf("exhausted exchanges should leave only stand, got %v", moves)
	}

	s.Poker.Stands["alice"] = true
	if moves := (PokerRules{}).AvailableMoves(s, "alice"); moves != nil {
		t.Errorf("stood seat should have no moves, got %v", moves)
	}
}
