package events

import (
	"encoding/json"
	"time"

	"cardarena/internal/models"
)

// SessionEvent is the envelope broadcast to websocket clients for session
// lifecycle moments: a found match, a resolved round, a finished or deleted
// session. Field-level changes travel through the syncer instead.
type SessionEvent struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	GameKind  models.GameKind `json:"game_kind"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType marks what a session event carries.
type EventType string

const (
	EventTypeSessionDeleted  EventType = "SessionDeleted"
	EventTypeMatchFound      EventType = "MatchFound"
	EventTypeRoundResolved   EventType = "RoundResolved"
	EventTypeSessionFinished EventType = "SessionFinished"
)

// MatchFoundPayload announces a filled session to its participants.
type MatchFoundPayload struct {
	SessionID string   `json:"session_id"`
	PlayerIDs []string `json:"player_ids"`
	HostID    string   `json:"host_id"`
}

// RoundResolvedPayload carries a resolved round outcome.
type RoundResolvedPayload struct {
	Round       int       `json:"round"`
	RoundWinner string    `json:"round_winner"`
	ResultText  string    `json:"result_text,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// SessionFinishedPayload carries the terminal session outcome.
type SessionFinishedPayload struct {
	Winner     string    `json:"winner"`
	Reason     string    `json:"reason,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
