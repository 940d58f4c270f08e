package models

import (
	"time"
)

// GameKind defines which game a session plays.
type GameKind string

const (
	GameKindDuel  GameKind = "duel"
	GameKindRPS   GameKind = "rps"
	GameKindPoker GameKind = "poker"
)

// Valid reports whether k names a known game kind.
func (k GameKind) Valid() bool {
	switch k {
	case GameKindDuel, GameKindRPS, GameKindPoker:
		return true
	}
	return false
}

// MaxPlayers returns the seat count for the kind.
func (k GameKind) MaxPlayers() int {
	if k == GameKindPoker {
		return 4
	}
	return 2
}

// SessionStatus defines the lifecycle state of a session.
// Transitions are one-way: waiting -> active -> finished.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
)

// WinnerDraw is the sentinel winner value for a drawn session.
const WinnerDraw = "draw"

// PlayerProfile is the public profile slice shared inside a session.
type PlayerProfile struct {
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Online      bool   `json:"online"`
}

// User identifies a player joining matchmaking.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Session is the shared session record. Exactly one of the game state
// pointers is non-nil once the session is active, keyed by GameKind.
type Session struct {
	ID         string                   `json:"id"`
	GameKind   GameKind                 `json:"game_kind"`
	HostID     string                   `json:"host_id"`
	PlayerIDs  []string                 `json:"player_ids"`
	Players    map[string]PlayerProfile `json:"players"`
	Status     SessionStatus            `json:"status"`
	MaxPlayers int                      `json:"max_players"`
	CreatedAt  time.Time                `json:"created_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
	// Winner is a player id, WinnerDraw, or empty while undecided.
	Winner string `json:"winner,omitempty"`

	Duel  *DuelState  `json:"duel,omitempty"`
	RPS   *RPSState   `json:"rps,omitempty"`
	Poker *PokerState `json:"poker,omitempty"`
}

// HasPlayer reports whether uid holds a seat.
func (s *Session) HasPlayer(uid string) bool {
	for _, id := range s.PlayerIDs {
		if id == uid {
			return true
		}
	}
	return false
}

// IsFull reports whether every seat is taken.
func (s *Session) IsFull() bool {
	return len(s.PlayerIDs) >= s.MaxPlayers
}

// Clone returns a deep copy, so mirrors can be handed out without
// aliasing the record under mutation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.PlayerIDs = append([]string(nil), s.PlayerIDs...)
	out.Players = make(map[string]PlayerProfile, len(s.Players))
	for id, p := range s.Players {
		out.Players[id] = p
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	out.Duel = s.Duel.clone()
	out.RPS = s.RPS.clone()
	out.Poker = s.Poker.clone()
	return &out
}
