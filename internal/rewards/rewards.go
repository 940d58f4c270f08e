// Package rewards is the boundary to the external reward service. Matches
// grant a fixed credit; the grant is fire-and-forget from matchmaking's
// point of view.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// GrantMessage is the reward request published for the reward service.
type GrantMessage struct {
	UserID    string    `json:"user_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	GrantedAt time.Time `json:"granted_at"`
}

// NATSGranter publishes reward grants onto a NATS subject the reward
// service consumes.
type NATSGranter struct {
	nc      *nats.Conn
	subject string
}

// NewNATSGranter wraps an existing NATS connection.
func NewNATSGranter(nc *nats.Conn, subject string) *NATSGranter {
	if subject == "" {
		subject = "arena.rewards.grant"
	}
	return &NATSGranter{nc: nc, subject: subject}
}

// Grant publishes the credit request.
func (g *NATSGranter) Grant(ctx context.Context, uid string, points int) error {
	msg := GrantMessage{
		UserID:    uid,
		Points:    points,
		Reason:    "match_found",
		GrantedAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode reward grant: %w", err)
	}
	if err := g.nc.Publish(g.subject, data); err != nil {
		return fmt.Errorf("publish reward grant: %w", err)
	}
	log.Debug().Str("user_id", uid).Int("points", points).Msg("reward grant published")
	return nil
}
