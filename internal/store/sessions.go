package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cardarena/internal/models"
)

// Tree layout:
//
//	sessions.{gameKind}.{sessionID}.record   - authoritative record, CAS'd
//	sessions.{gameKind}.{sessionID}.{field}  - narrow projections for watchers
//	pool.{gameKind}                          - derived index of open session ids
//
// Every mutation lands on the record first; projections are fanned out after
// the CAS succeeds and only for fields whose value actually changed, so a
// subscriber to one field is not woken by writes to another.

// SessionRecordPath returns the authoritative record path.
func SessionRecordPath(kind models.GameKind, id string) string {
	return fmt.Sprintf("sessions.%s.%s.record", kind, id)
}

// SessionFieldPath returns a narrow projection path.
func SessionFieldPath(kind models.GameKind, id, field string) string {
	return fmt.Sprintf("sessions.%s.%s.%s", kind, id, field)
}

// KindRecordPattern matches every session record of a kind.
func KindRecordPattern(kind models.GameKind) string {
	return fmt.Sprintf("sessions.%s.*.record", kind)
}

// PoolPath returns the open-session index path for a game kind.
func PoolPath(kind models.GameKind) string {
	return "pool." + string(kind)
}

// Sessions is the session repository over the tree store.
type Sessions struct {
	kv KV
}

// NewSessions creates a session repository.
func NewSessions(kv KV) *Sessions {
	return &Sessions{kv: kv}
}

// KV exposes the underlying tree store for watch construction.
func (r *Sessions) KV() KV { return r.kv }

// Get loads a session record.
func (r *Sessions) Get(ctx context.Context, kind models.GameKind, id string) (*models.Session, error) {
	entry, err := r.kv.Get(ctx, SessionRecordPath(kind, id))
	if err != nil {
		if errors.Is(err, ErrPathMissing) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	var s models.Session
	if err := json.Unmarshal(entry.Value, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// Create writes a brand-new session record plus its projections.
func (r *Sessions) Create(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if _, err := r.kv.Create(ctx, SessionRecordPath(s.GameKind, s.ID), data); err != nil {
		return err
	}
	r.projectChanged(ctx, nil, s)
	return nil
}

// Update applies fn to the session record inside a CAS transaction. fn runs
// again from a fresh read whenever the write loses a race, so it must
// re-check its preconditions every attempt. Returning ErrTxnAborted from fn
// leaves the record untouched and is not an error to the caller.
func (r *Sessions) Update(ctx context.Context, kind models.GameKind, id string, fn func(s *models.Session) error) (*models.Session, error) {
	var before, after *models.Session
	err := Txn(ctx, r.kv, SessionRecordPath(kind, id), func(s *models.Session, exists bool) error {
		if !exists {
			return models.ErrNotFound
		}
		before = s.Clone()
		if err := fn(s); err != nil {
			return err
		}
		after = s.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTxnAborted) {
			return before, nil
		}
		if errors.Is(err, ErrRevisionMismatch) {
			return nil, models.ErrConflict
		}
		return nil, err
	}
	r.projectChanged(ctx, before, after)
	return after, nil
}

// Delete removes a session record and everything projected under it.
func (r *Sessions) Delete(ctx context.Context, kind models.GameKind, id string) error {
	prefix := fmt.Sprintf("sessions.%s.%s.", kind, id)
	keys, err := r.kv.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			if err := r.kv.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// WatchField subscribes to one narrow projection path.
func (r *Sessions) WatchField(ctx context.Context, kind models.GameKind, id, field string) (Watcher, error) {
	return r.kv.Watch(ctx, SessionFieldPath(kind, id, field))
}

// WatchRecords subscribes to every session record of a kind.
func (r *Sessions) WatchRecords(ctx context.Context, kind models.GameKind) (Watcher, error) {
	return r.kv.Watch(ctx, KindRecordPattern(kind))
}

// projectChanged writes narrow projection paths whose value differs between
// the pre- and post-images. Projection writes are unconditional: the record
// CAS already serialized the mutation.
func (r *Sessions) projectChanged(ctx context.Context, before, after *models.Session) {
	prev := projections(before)
	for field, value := range projections(after) {
		if bytes.Equal(prev[field], value) {
			continue
		}
		if _, err := r.kv.Put(ctx, SessionFieldPath(after.GameKind, after.ID, field), value); err != nil {
			// Projections are derived state; the record stays authoritative.
			continue
		}
	}
}

// ProjectFields flattens a session into its narrow watchable fields, keyed
// the way the projection paths are. Watch consumers use it to prime a local
// mirror before update-only subscriptions start delivering.
func ProjectFields(s *models.Session) map[string][]byte {
	return projections(s)
}

type duelResultProjection struct {
	RoundWinner string `json:"round_winner"`
	Text        string `json:"text,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type duelCountersProjection struct {
	Kyuso map[string]int `json:"kyuso"`
	Only  map[string]int `json:"only"`
}

type pokerTurnProjection struct {
	Order []string `json:"order"`
	Index int      `json:"index"`
}

// projections flattens a session into its narrow watchable fields.
func projections(s *models.Session) map[string][]byte {
	if s == nil {
		return nil
	}
	out := make(map[string][]byte)
	set := func(field string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		out[field] = data
	}

	set("status", s.Status)
	set("player_ids", s.PlayerIDs)
	set("players", s.Players)
	set("winner", s.Winner)

	switch {
	case s.Duel != nil:
		d := s.Duel
		set("state.round", d.CurrentRound)
		set("state.scores", d.Scores)
		set("state.counters", duelCountersProjection{Kyuso: d.KyusoCounts, Only: d.OnlyCounts})
		set("state.result", duelResultProjection{RoundWinner: d.RoundWinner, Text: d.RoundResultText, Detail: d.RoundResultDetail})
		for uid, mv := range d.Moves {
			set("state.moves."+uid, mv)
		}
		for uid, hand := range d.PlayerHands {
			set("state.hands."+uid, hand)
		}
	case s.RPS != nil:
		r := s.RPS
		set("state.round", r.CurrentRound)
		set("state.phase", r.Phase)
		set("state.scores", r.Scores)
		set("state.result", duelResultProjection{RoundWinner: r.RoundWinner, Text: r.RoundResultText})
		for uid, mv := range r.Moves {
			set("state.moves."+uid, mv)
		}
	case s.Poker != nil:
		p := s.Poker
		set("state.phase", p.Phase)
		set("state.turn", pokerTurnProjection{Order: p.TurnOrder, Index: p.CurrentTurnIndex})
		set("state.exchange", p.ExchangeCounts)
		set("state.ranks", p.PlayerRanks)
		set("state.winners", p.Winners)
		for uid, hand := range p.PlayerHands {
			set("state.hands."+uid, hand)
		}
	}
	return out
}
