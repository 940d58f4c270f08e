package store

import (
	"context"
	"errors"
	"testing"
)

type counter struct {
	N int `json:"n"`
}

func TestTxnCreatesMissingPath(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	err := Txn(ctx, kv, "counter", func(c *counter, exists bool) error {
		if exists {
			t.Error("exists true on first write")
		}
		c.N = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Txn: %v", err)
	}
	entry, err := kv.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value) != `{"n":1}` {
		t.Errorf("stored value = %s", entry.Value)
	}
}

func TestTxnRetriesLostRace(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if _, err := kv.Create(ctx, "counter", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	attempts := 0
	err := Txn(ctx, kv, "counter", func(c *counter, exists bool) error {
		attempts++
		if attempts == 1 {
			// Simulate a concurrent writer landing between read and CAS.
			if _, err := kv.Put(ctx, "counter", []byte(`{"n":7}`)); err != nil {
				t.Fatalf("interfering Put: %v", err)
			}
		}
		c.N++
		return nil
	})
	if err != nil {
		t.Fatalf("Txn: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	// The retry re-read the interfering write, so the increment lands on it.
	entry, _ := kv.Get(ctx, "counter")
	if string(entry.Value) != `{"n":8}` {
		t.Errorf("value = %s, want {\"n\":8}", entry.Value)
	}
}

func TestTxnAbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if _, err := kv.Create(ctx, "counter", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := Txn(ctx, kv, "counter", func(c *counter, exists bool) error {
		c.N = 99
		return ErrTxnAborted
	})
	if !errors.Is(err, ErrTxnAborted) {
		t.Fatalf("Txn = %v, want ErrTxnAborted", err)
	}
	entry, _ := kv.Get(ctx, "counter")
	if string(entry.Value) != `{"n":1}` {
		t.Errorf("aborted txn wrote %s", entry.Value)
	}
}

func TestTxnGivesUpAfterRetryLimit(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if _, err := kv.Create(ctx, "counter", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := Txn(ctx, kv, "counter", func(c *counter, exists bool) error {
		// Lose every race.
		if _, err := kv.Put(ctx, "counter", []byte(`{"n":0}`)); err != nil {
			t.Fatalf("interfering Put: %v", err)
		}
		c.N++
		return nil
	})
	if !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("Txn = %v, want ErrRevisionMismatch", err)
	}
}

func TestTxnStopsOnCancelledContext(t *testing.T) {
	kv := NewMemoryKV()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Txn(ctx, kv, "counter", func(c *counter, exists bool) error {
		t.Error("fn ran with cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Txn = %v, want context.Canceled", err)
	}
}
