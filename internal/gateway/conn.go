package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/auth"
)

// Conn wraps one live WebSocket session. The read pump serializes all
// actions from a single client; the write pump owns the socket for
// writes so broadcasts from any goroutine go through the send channel.
type Conn struct {
	ID     string
	Claims *auth.Claims

	ws          *websocket.Conn
	send        chan []byte
	coordinator *Coordinator

	closeOnce sync.Once
	done      chan struct{}

	// dashboard subscription, at most one per connection
	subMu     sync.Mutex
	subCancel context.CancelFunc
}

func newConn(id string, claims *auth.Claims, ws *websocket.Conn, c *Coordinator) *Conn {
	return &Conn{
		ID:          id,
		Claims:      claims,
		ws:          ws,
		send:        make(chan []byte, c.cfg.SendBuffer),
		coordinator: c,
		done:        make(chan struct{}),
	}
}

// Send queues an event for delivery. A slow consumer loses messages
// rather than blocking the broadcaster.
func (c *Conn) Send(event OutboundEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal outbound event")
		return
	}
	c.sendRaw(payload)
}

func (c *Conn) sendRaw(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		log.Warn().
			Str("conn", c.ID).
			Str("user", c.Claims.UserID.String()).
			Msg("Send buffer full, dropping message")
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// cancelSubscription stops the dashboard push loop if one is running.
func (c *Conn) cancelSubscription() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subCancel != nil {
		c.subCancel()
		c.subCancel = nil
	}
}

func (c *Conn) setSubscription(cancel context.CancelFunc) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subCancel != nil {
		c.subCancel()
	}
	c.subCancel = cancel
}

// readPump reads client actions until the socket dies, then triggers the
// unconditional disconnect cascade.
func (c *Conn) readPump() {
	defer func() {
		c.coordinator.handleDisconnect(c)
		c.close()
	}()

	c.ws.SetReadLimit(c.coordinator.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.coordinator.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.coordinator.cfg.PongTimeout))
		c.coordinator.registry.Touch(c.ID)
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", c.ID).Msg("WebSocket read error")
			}
			return
		}

		c.coordinator.handleAction(c, payload)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.coordinator.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.coordinator.cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.coordinator.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
