package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"cardarena/internal/events"
	"cardarena/internal/models"
	"cardarena/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.SessionEvent
}

func (p *capturePublisher) Publish(ev events.SessionEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *capturePublisher) byType(t events.EventType) []events.SessionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.SessionEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func handCard(s *models.Session, uid string, ordinal int) *models.CardRef {
	for _, c := range s.Duel.PlayerHands[uid] {
		if c.Ordinal == ordinal {
			card := c
			return &card
		}
	}
	return nil
}

// startActor creates an active duel session in a memory store and runs an
// actor for it on a fake clock.
func startActor(t *testing.T) (*store.Sessions, *Actor, *capturePublisher, *clockwork.FakeClock, *models.Session) {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemoryKV()
	sessions := store.NewSessions(kv)

	s := newDuelSession(t)
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}

	fc := clockwork.NewFakeClock()
	pub := &capturePublisher{}
	actor := NewActor(sessions, DuelRules{}, models.GameKindDuel, s.ID, fc, 3*time.Second, pub)
	go actor.Run(ctx)
	t.Cleanup(actor.Stop)
	return sessions, actor, pub, fc, s
}

// waitFor polls cond, nudging the actor between attempts, until it holds or
// the deadline passes.
func waitFor(t *testing.T, actor *Actor, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		actor.Wake()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestActorResolvesRoundOnce(t *testing.T) {
	ctx := context.Background()
	sessions, actor, pub, _, created := startActor(t)

	_, err := sessions.Update(ctx, models.GameKindDuel, created.ID, func(s *models.Session) error {
		s.Duel.Moves["alice"] = handCard(s, "alice", 5)
		s.Duel.Moves["bob"] = handCard(s, "bob", 6)
		return nil
	})
	if err != nil {
		t.Fatalf("submit moves: %v", err)
	}

	waitFor(t, actor, func() bool {
		s, err := sessions.Get(ctx, models.GameKindDuel, created.ID)
		return err == nil && s.Duel.RoundWinner == "alice"
	})

	waitFor(t, actor, func() bool {
		return len(pub.byType(events.EventTypeRoundResolved)) >= 1
	})
	if got := len(pub.byType(events.EventTypeRoundResolved)); got != 1 {
		t.Errorf("round resolved %d times, want exactly once", got)
	}

	s, _ := sessions.Get(ctx, models.GameKindDuel, created.ID)
	if s.Duel.KyusoCounts["alice"] != 1 {
		t.Errorf("kyuso count = %d, want 1", s.Duel.KyusoCounts["alice"])
	}
}

func TestActorAdvancesAfterDisplayDelay(t *testing.T) {
	ctx := context.Background()
	sessions, actor, _, fc, created := startActor(t)

	_, err := sessions.Update(ctx, models.GameKindDuel, created.ID, func(s *models.Session) error {
		s.Duel.Moves["alice"] = handCard(s, "alice", 9)
		s.Duel.Moves["bob"] = handCard(s, "bob", 4)
		return nil
	})
	if err != nil {
		t.Fatalf("submit moves: %v", err)
	}

	waitFor(t, actor, func() bool {
		s, err := sessions.Get(ctx, models.GameKindDuel, created.ID)
		return err == nil && s.Duel.RoundWinner != ""
	})

	// The advance only runs once the display delay elapses on the actor's
	// clock.
	waitFor(t, actor, func() bool {
		fc.Advance(3 * time.Second)
		s, err := sessions.Get(ctx, models.GameKindDuel, created.ID)
		return err == nil && s.Duel.CurrentRound == 2
	})

	s, _ := sessions.Get(ctx, models.GameKindDuel, created.ID)
	if s.Duel.RoundWinner != "" || s.Duel.Moves["alice"] != nil {
		t.Error("round state not reset after advance")
	}
	if s.Status != models.SessionStatusActive {
		t.Errorf("status = %s, want active", s.Status)
	}
}

func TestActorExitsWhenSessionDeleted(t *testing.T) {
	ctx := context.Background()
	sessions, actor, _, _, created := startActor(t)

	if err := sessions.Delete(ctx, models.GameKindDuel, created.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	actor.Wake()

	done := make(chan struct{})
	go func() {
		actor.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("actor did not exit after session deletion")
	}
}

func TestParseRecordPath(t *testing.T) {
	tests := []struct {
		path     string
		wantKind models.GameKind
		wantID   string
		wantOK   bool
	}{
		{"sessions.duel.abc.record", models.GameKindDuel, "abc", true},
		{"sessions.poker.xyz.record", models.GameKindPoker, "xyz", true},
		{"sessions.duel.abc.status", "", "", false},
		{"sessions.chess.abc.record", "", "", false},
		{"pool.duel", "", "", false},
	}
	for _, tt := range tests {
		kind, id, ok := parseRecordPath(tt.path)
		if kind != tt.wantKind || id != tt.wantID || ok != tt.wantOK {
			t.Errorf("parseRecordPath(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.path, kind, id, ok, tt.wantKind, tt.wantID, tt.wantOK)
		}
	}
}

func TestActorAdoptsResolvedRoundAfterRestart(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	sessions := store.NewSessions(kv)

	// A round that resolved before the process went down: winner written,
	// move slots still holding the played cards.
	s := newDuelSession(t)
	playDuelRound(s, 9, 4)
	if got := (DuelRules{}).ResolveIfReady(s); got != ProgressResolved {
		t.Fatalf("seed resolve = %d, want ProgressResolved", got)
	}
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}

	fc := clockwork.NewFakeClock()
	actor := NewActor(sessions, DuelRules{}, models.GameKindDuel, s.ID, fc, 3*time.Second, &capturePublisher{})
	go actor.Run(ctx)
	t.Cleanup(actor.Stop)

	// No new move will ever arrive for this round; the adopting actor must
	// arm its advance timer from the stored state alone.
	waitFor(t, actor, func() bool {
		fc.Advance(3 * time.Second)
		cur, err := sessions.Get(ctx, models.GameKindDuel, s.ID)
		return err == nil && cur.Duel.CurrentRound == 2
	})

	cur, _ := sessions.Get(ctx, models.GameKindDuel, s.ID)
	if cur.Duel.RoundWinner != "" || cur.Duel.Moves["alice"] != nil {
		t.Error("round state not reset after the adopted advance")
	}
	if cur.Status != models.SessionStatusActive {
		t.Errorf("status = %s, want active", cur.Status)
	}
}
