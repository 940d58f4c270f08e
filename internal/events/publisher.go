package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher fans session events out to interested consumers.
type Publisher interface {
	Publish(ev SessionEvent)
}

// Fanout publishes to every wrapped publisher.
type Fanout []Publisher

func (f Fanout) Publish(ev SessionEvent) {
	for _, p := range f {
		p.Publish(ev)
	}
}

// NATSPublisher announces session events on core NATS subjects, one subject
// per (kind, session) so consumers can subscribe narrowly.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher under the given subject prefix, e.g.
// "arena.sessions".
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(ev SessionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal session event")
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", p.prefix, ev.GameKind, ev.SessionID)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish session event")
	}
}
