package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cardarena/internal/events"
	"cardarena/internal/models"
	"cardarena/internal/session"
	"cardarena/internal/suggest"
	"cardarena/internal/syncer"
)

// ConnectionManager owns the WebSocket side of the gateway: one connection
// pool per session, a read pump dispatching client commands to the session
// service, and a write pump fed by the connection's syncer attachment.
type ConnectionManager struct {
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	sessions *session.Service
	sync     *syncer.Syncer
	presence PresenceTracker
	suggest  Suggester

	broadcastCh chan events.SessionEvent
}

// PresenceTracker is the presence surface the gateway needs.
type PresenceTracker interface {
	SetOnline(ctx context.Context, uid string, online bool) error
	Refresh(ctx context.Context, uid string) error
	Disconnected(ctx context.Context, uid string)
}

// Suggester is the advisory move-suggestion surface.
type Suggester interface {
	SuggestMove(ctx context.Context, req suggest.Request) (suggest.Suggestion, error)
}

// Connection represents one client's WebSocket attached to one session.
type Connection struct {
	ID        string
	UserID    string
	Kind      models.GameKind
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	attachment *syncer.Attachment

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// clientCommand is one inbound message from a client.
type clientCommand struct {
	Type       string        `json:"type"`
	Move       *session.Move `json:"move,omitempty"`
	Difficulty string        `json:"difficulty,omitempty"`
}

// serverMessage is one outbound message to a client.
type serverMessage struct {
	Type      string                     `json:"type"`
	Field     string                     `json:"field,omitempty"`
	Data      json.RawMessage            `json:"data,omitempty"`
	Deleted   bool                       `json:"deleted,omitempty"`
	Snapshot  map[string]json.RawMessage `json:"snapshot,omitempty"`
	Move      string                     `json:"move,omitempty"`
	Rationale string                     `json:"rationale,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// NewConnectionManager creates the WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, sessions *session.Service, sync *syncer.Syncer, presence PresenceTracker, suggest Suggester) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		sessions:    sessions,
		sync:        sync,
		presence:    presence,
		suggest:     suggest,
		broadcastCh: make(chan events.SessionEvent, 1000),
	}
}

// Start begins processing broadcast events until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case ev := <-cm.broadcastCh:
			cm.handleBroadcast(ev)
		}
	}
}

// Publish enqueues an engine event for broadcast to the session's
// connections. It never blocks the caller.
func (cm *ConnectionManager) Publish(ev events.SessionEvent) {
	select {
	case cm.broadcastCh <- ev:
	default:
		log.Warn().Str("session_id", ev.SessionID).Msg("broadcast channel full, dropping event")
	}
}

func (cm *ConnectionManager) handleBroadcast(ev events.SessionEvent) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[ev.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	msg, err := json.Marshal(serverMessage{Type: "event", Data: data})
	if err != nil {
		return
	}
	for _, conn := range targets {
		select {
		case conn.Send <- msg:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, dropping event")
		}
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Str("session_id", ev.SessionID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// UpgradeConnection attaches the caller to the session and upgrades the HTTP
// connection to a WebSocket. The attachment happens first so an unauthorized
// caller is refused before any socket exists.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, kind models.GameKind, sessionID string) error {
	attachment, err := cm.sync.Attach(r.Context(), kind, sessionID, userID)
	if err != nil {
		return err
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		attachment.Detach()
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Kind:        kind,
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		attachment:  attachment,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)
	if err := cm.presence.SetOnline(context.Background(), userID, true); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user online")
	}

	connection.queue(serverMessage{Type: "snapshot", Snapshot: attachment.Snapshot()})

	go connection.writePump()
	go connection.readPump()
	go connection.forwardUpdates()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	sessionCounts := make(map[string]int)
	for sessionID, connections := range cm.sessionConnections {
		count := len(connections)
		totalConnections += count
		sessionCounts[sessionID] = count
	}

	return map[string]interface{}{
		"total_connections":   totalConnections,
		"active_sessions":     len(cm.sessionConnections),
		"session_connections": sessionCounts,
	}
}

// queue marshals and enqueues one outbound message, dropping it if the send
// buffer is full.
func (c *Connection) queue(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal server message")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("connection send buffer full, dropping message")
	}
}

// forwardUpdates streams the syncer mirror's field changes to the client.
func (c *Connection) forwardUpdates() {
	for upd := range c.attachment.Updates() {
		c.queue(serverMessage{Type: "update", Field: upd.Field, Data: upd.Data, Deleted: upd.Deleted})
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.attachment.Detach()
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		// Presence drops when the socket does; an explicit forfeit is the
		// only thing that ends the match.
		c.Manager.presence.Disconnected(context.Background(), c.UserID)
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		if err := c.Manager.presence.Refresh(context.Background(), c.UserID); err != nil {
			log.Warn().Err(err).Str("user_id", c.UserID).Msg("failed to refresh presence")
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage dispatches one client command to the session service.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.queue(serverMessage{Type: "error", Error: "malformed command"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cmd.Type {
	case "move":
		if cmd.Move == nil {
			c.queue(serverMessage{Type: "error", Error: "move command requires a move"})
			return
		}
		if err := c.Manager.sessions.SubmitMove(ctx, c.Kind, c.SessionID, c.UserID, *cmd.Move); err != nil {
			c.queue(serverMessage{Type: "error", Error: err.Error()})
		}
	case "forfeit":
		if err := c.Manager.sessions.Forfeit(ctx, c.Kind, c.SessionID, c.UserID); err != nil {
			c.queue(serverMessage{Type: "error", Error: err.Error()})
		}
	case "rematch":
		if err := c.Manager.sessions.ResetForNextRound(ctx, c.Kind, c.SessionID, c.UserID); err != nil {
			c.queue(serverMessage{Type: "error", Error: err.Error()})
		}
	case "suggest":
		c.handleSuggest(ctx, cmd.Difficulty)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			RawJSON("message", message).
			Msg("received unknown client command")
	}
}

func (c *Connection) handleSuggest(ctx context.Context, difficulty string) {
	available, err := c.Manager.sessions.AvailableMoves(ctx, c.Kind, c.SessionID, c.UserID)
	if err != nil || len(available) == 0 {
		c.queue(serverMessage{Type: "error", Error: "no moves available"})
		return
	}
	sess, err := c.Manager.sessions.Get(ctx, c.Kind, c.SessionID)
	if err != nil {
		c.queue(serverMessage{Type: "error", Error: err.Error()})
		return
	}
	summary, err := json.Marshal(sess)
	if err != nil {
		c.queue(serverMessage{Type: "error", Error: "failed to summarize session"})
		return
	}
	sug, err := c.Manager.suggest.SuggestMove(ctx, suggest.Request{
		GameKind:   c.Kind,
		Difficulty: difficulty,
		Summary:    summary,
		Available:  available,
	})
	if err != nil {
		c.queue(serverMessage{Type: "error", Error: err.Error()})
		return
	}
	c.queue(serverMessage{Type: "suggestion", Move: sug.Move, Rationale: sug.Rationale})
}
