package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cardarena/internal/models"
)

func testSession(id string) *models.Session {
	return &models.Session{
		ID:       id,
		GameKind: models.GameKindDuel,
		HostID:   "alice",
		PlayerIDs: []string{
			"alice", "bob",
		},
		Players: map[string]models.PlayerProfile{
			"alice": {DisplayName: "Alice", Online: true},
			"bob":   {DisplayName: "Bob", Online: true},
		},
		Status:     models.SessionStatusActive,
		MaxPlayers: 2,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duel: &models.DuelState{
			CurrentRound: 1,
			Scores:       map[string]int{"alice": 0, "bob": 0},
			KyusoCounts:  map[string]int{},
			OnlyCounts:   map[string]int{},
			Moves:        map[string]*models.CardRef{},
			PlayerHands: map[string][]models.CardRef{
				"alice": {models.NewCardRef("spade", 1)},
				"bob":   {models.NewCardRef("heart", 2)},
			},
		},
	}
}

func TestSessionsCreateGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSessions(NewMemoryKV())

	if err := repo.Create(ctx, testSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.Get(ctx, models.GameKindDuel, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "s1" || got.HostID != "alice" || got.Duel == nil {
		t.Errorf("roundtrip lost data: %+v", got)
	}

	if _, err := repo.Get(ctx, models.GameKindDuel, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	// Kind is part of the path, so the wrong kind is a miss.
	if _, err := repo.Get(ctx, models.GameKindRPS, "s1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get wrong kind = %v, want ErrNotFound", err)
	}
}

func TestSessionsCreateWritesProjections(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	repo := NewSessions(kv)

	if err := repo.Create(ctx, testSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, field := range []string{"status", "player_ids", "players", "winner", "state.round", "state.hands.alice", "state.hands.bob"} {
		if _, err := kv.Get(ctx, SessionFieldPath(models.GameKindDuel, "s1", field)); err != nil {
			t.Errorf("projection %s missing: %v", field, err)
		}
	}
}

func TestSessionsUpdateProjectsOnlyChangedFields(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	repo := NewSessions(kv)
	if err := repo.Create(ctx, testSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	statusWatch, err := repo.WatchField(ctx, models.GameKindDuel, "s1", "status")
	if err != nil {
		t.Fatalf("WatchField status: %v", err)
	}
	defer statusWatch.Stop()
	roundWatch, err := repo.WatchField(ctx, models.GameKindDuel, "s1", "state.round")
	if err != nil {
		t.Fatalf("WatchField round: %v", err)
	}
	defer roundWatch.Stop()

	_, err = repo.Update(ctx, models.GameKindDuel, "s1", func(s *models.Session) error {
		s.Duel.CurrentRound = 2
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	select {
	case ev := <-roundWatch.Events():
		if string(ev.Value) != "2" {
			t.Errorf("round projection = %s, want 2", ev.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("round projection never arrived")
	}
	// Status did not change, so its subscriber stays asleep.
	select {
	case ev := <-statusWatch.Events():
		t.Errorf("unexpected status event: %s", ev.Value)
	default:
	}
}

func TestSessionsUpdateAbortKeepsRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewSessions(NewMemoryKV())
	if err := repo.Create(ctx, testSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	before, err := repo.Update(ctx, models.GameKindDuel, "s1", func(s *models.Session) error {
		s.Winner = "bob"
		return ErrTxnAborted
	})
	if err != nil {
		t.Fatalf("aborted Update: %v", err)
	}
	if before == nil || before.Winner != "" {
		t.Errorf("abort returned mutated pre-image: %+v", before)
	}
	got, _ := repo.Get(ctx, models.GameKindDuel, "s1")
	if got.Winner != "" {
		t.Error("aborted update persisted")
	}
}

func TestSessionsUpdateMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewSessions(NewMemoryKV())
	_, err := repo.Update(ctx, models.GameKindDuel, "nope", func(s *models.Session) error { return nil })
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestSessionsDeleteRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	repo := NewSessions(kv)
	if err := repo.Create(ctx, testSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, testSession("s2")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Delete(ctx, models.GameKindDuel, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	keys, err := kv.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	for _, key := range keys {
		if strings.HasPrefix(key, "sessions.duel.s1.") {
			t.Errorf("key %s survived delete", key)
		}
	}
	// The sibling session is untouched.
	if _, err := repo.Get(ctx, models.GameKindDuel, "s2"); err != nil {
		t.Errorf("sibling session gone: %v", err)
	}
}
