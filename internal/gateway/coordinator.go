// Package gateway implements the organization-scoped real-time
// collaboration core: tenant rooms with presence, advisory entity locks,
// dashboard metrics delivery and notification fan-out over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/talent-forge/collab-server/internal/analytics"
	"github.com/talent-forge/collab-server/internal/config"
	"github.com/talent-forge/collab-server/internal/models"
	"github.com/talent-forge/collab-server/internal/notify"
	"github.com/talent-forge/collab-server/internal/validation"
)

// tenantSubject is the per-tenant broadcast topic. Every gateway process
// subscribes to the wildcard and fans messages out to its local members,
// which keeps room membership data decoupled from the transport.
const (
	tenantSubjectPrefix   = "collab.tenant."
	tenantSubjectSuffix   = ".events"
	tenantSubjectWildcard = tenantSubjectPrefix + "*" + tenantSubjectSuffix
)

// Coordinator owns the room registry, lock manager, metrics cache and
// rate limiter, routes inbound client actions to them and turns their
// outputs into outbound broadcasts.
type Coordinator struct {
	cfg       *config.GatewayConfig
	registry  *Registry
	locks     *LockManager
	metrics   *analytics.Service
	notifier  *notify.Dispatcher
	validator *validation.Validator

	// nc is optional; without NATS broadcasts stay in-process.
	nc  *nats.Conn
	sub *nats.Subscription

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewCoordinator creates the gateway coordinator
func NewCoordinator(cfg *config.GatewayConfig, metrics *analytics.Service, notifier *notify.Dispatcher, nc *nats.Conn) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		registry:  NewRegistry(cfg.PresenceStaleAfter),
		locks:     NewLockManager(),
		metrics:   metrics,
		notifier:  notifier,
		validator: validation.NewValidator(),
		nc:        nc,
		conns:     make(map[string]*Conn),
	}
}

// Registry exposes the room registry for introspection handlers.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Start subscribes to the tenant broadcast topics when NATS is
// configured. Without NATS the coordinator runs standalone.
func (c *Coordinator) Start() error {
	if c.nc == nil {
		log.Info().Msg("NATS not configured, gateway broadcasts stay in-process")
		return nil
	}

	sub, err := c.nc.Subscribe(tenantSubjectWildcard, c.handleTenantMessage)
	if err != nil {
		return fmt.Errorf("subscribe tenant events: %w", err)
	}
	c.sub = sub

	log.Info().Str("subject", tenantSubjectWildcard).Msg("Gateway subscribed to tenant broadcast topics")
	return nil
}

// Stop unsubscribes and closes every live connection.
func (c *Coordinator) Stop() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}

	c.mu.Lock()
	conns := make([]*Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}

func (c *Coordinator) handleTenantMessage(msg *nats.Msg) {
	id := strings.TrimSuffix(strings.TrimPrefix(msg.Subject, tenantSubjectPrefix), tenantSubjectSuffix)
	tenantID, err := uuid.Parse(id)
	if err != nil {
		log.Warn().Str("subject", msg.Subject).Msg("Ignoring broadcast with malformed tenant id")
		return
	}

	c.deliverLocal(tenantID, msg.Data)
}

// Broadcast publishes an event to every current viewer of the tenant.
func (c *Coordinator) Broadcast(tenantID uuid.UUID, event OutboundEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal broadcast")
		return
	}

	if c.nc != nil {
		subject := tenantSubjectPrefix + tenantID.String() + tenantSubjectSuffix
		err := c.nc.Publish(subject, payload)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("subject", subject).Msg("NATS publish failed, delivering locally")
	}

	c.deliverLocal(tenantID, payload)
}

// BroadcastNotification fans a notification record out to the tenant
// room. Called by the dispatcher's HTTP surface and the comment flow.
func (c *Coordinator) BroadcastNotification(n *models.Notification) {
	c.Broadcast(n.TenantID, OutboundEvent{Type: EventNotification, Data: n})
}

// BroadcastMetrics pushes a fresh snapshot to the tenant room.
func (c *Coordinator) BroadcastMetrics(snapshot *models.MetricsSnapshot) {
	c.Broadcast(snapshot.TenantID, OutboundEvent{Type: EventMetricsUpdated, Data: snapshot})
}

func (c *Coordinator) deliverLocal(tenantID uuid.UUID, payload []byte) {
	for _, connID := range c.registry.MemberConnIDs(tenantID) {
		c.mu.RLock()
		conn, ok := c.conns[connID]
		c.mu.RUnlock()
		if ok {
			conn.sendRaw(payload)
		}
	}
}

func (c *Coordinator) register(conn *Conn) {
	c.mu.Lock()
	c.conns[conn.ID] = conn
	c.mu.Unlock()

	log.Debug().
		Str("conn", conn.ID).
		Str("user", conn.Claims.UserID.String()).
		Str("tenant", conn.Claims.TenantID.String()).
		Msg("Connection registered")
}

// handleDisconnect runs the ordered cleanup cascade: release locks,
// broadcast their availability, remove presence, broadcast departure.
// Unconditional, even for connections that never joined a room.
func (c *Coordinator) handleDisconnect(conn *Conn) {
	conn.cancelSubscription()

	released := c.locks.ReleaseAllFor(conn.ID)

	tenantID, presence, joined := c.registry.Disconnect(conn.ID)

	c.mu.Lock()
	delete(c.conns, conn.ID)
	c.mu.Unlock()

	for _, rel := range released {
		c.Broadcast(rel.TenantID, OutboundEvent{
			Type: EventLockReleased,
			Data: LockEvent{EntityID: rel.EntityID, UserID: conn.Claims.UserID},
		})
	}

	if joined {
		c.Broadcast(tenantID, OutboundEvent{
			Type: EventUserLeft,
			Data: UserLeftEvent{ConnID: conn.ID, UserID: presence.UserID},
		})
	}

	log.Debug().
		Str("conn", conn.ID).
		Int("locksReleased", len(released)).
		Msg("Connection cleaned up")
}

// handleAction dispatches one inbound client action. Malformed payloads
// are rejected here and never reach the components.
func (c *Coordinator) handleAction(conn *Conn, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{Message: "malformed message"}})
		return
	}

	switch env.Type {
	case ActionJoinRoom:
		c.handleJoinRoom(conn, env.Data)
	case ActionLeaveRoom:
		c.handleLeaveRoom(conn)
	case ActionPageChange:
		c.handlePageChange(conn, env.Data)
	case ActionCursorMove:
		c.handleCursorMove(conn, env.Data)
	case ActionLockAcquire:
		c.handleLockAcquire(conn, env.Data)
	case ActionLockRelease:
		c.handleLockRelease(conn, env.Data)
	case ActionCommentAdd:
		c.handleCommentAdd(conn, env.Data)
	case ActionDashboardSubscribe:
		c.handleDashboardSubscribe(conn, env.Data)
	case ActionDashboardUnsubscribe:
		conn.cancelSubscription()
	default:
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
			Action:  env.Type,
			Message: "unknown action",
		}})
	}
}

func (c *Coordinator) decode(conn *Conn, action string, raw json.RawMessage, dst interface{}) bool {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
				Action:  action,
				Message: "invalid payload",
			}})
			return false
		}
	}

	if err := c.validator.Validate(dst); err != nil {
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
			Action:  action,
			Message: err.Error(),
		}})
		return false
	}

	return true
}

func (c *Coordinator) handleJoinRoom(conn *Conn, raw json.RawMessage) {
	var payload JoinRoomPayload
	if !c.decode(conn, ActionJoinRoom, raw, &payload) {
		return
	}

	claims := conn.Claims
	self, members := c.registry.Join(conn.ID, claims.TenantID, claims.UserID, claims.DisplayName, claims.AvatarURL, payload.Page)

	conn.Send(OutboundEvent{Type: EventPresenceState, Data: PresenceStateEvent{
		Self:    self,
		Members: members,
	}})

	var joined Presence
	for _, m := range members {
		if m.ConnID == conn.ID {
			joined = m
			break
		}
	}

	c.Broadcast(claims.TenantID, OutboundEvent{Type: EventUserJoined, Data: UserJoinedEvent{
		Member:  joined,
		Members: members,
	}})

	log.Info().
		Str("tenant", claims.TenantID.String()).
		Str("user", claims.UserID.String()).
		Int("members", len(members)).
		Msg("User joined room")
}

// handleLeaveRoom mirrors the disconnect cascade without closing the
// socket: the registry never cascades into the lock manager on its own,
// so the coordinator always runs both.
func (c *Coordinator) handleLeaveRoom(conn *Conn) {
	conn.cancelSubscription()

	released := c.locks.ReleaseAllFor(conn.ID)

	tenantID, ok := c.registry.Tenant(conn.ID)
	if !ok {
		return
	}
	c.registry.Leave(conn.ID, tenantID)

	for _, rel := range released {
		c.Broadcast(rel.TenantID, OutboundEvent{
			Type: EventLockReleased,
			Data: LockEvent{EntityID: rel.EntityID, UserID: conn.Claims.UserID},
		})
	}

	c.Broadcast(tenantID, OutboundEvent{
		Type: EventUserLeft,
		Data: UserLeftEvent{ConnID: conn.ID, UserID: conn.Claims.UserID},
	})
}

func (c *Coordinator) handlePageChange(conn *Conn, raw json.RawMessage) {
	var payload PageChangePayload
	if !c.decode(conn, ActionPageChange, raw, &payload) {
		return
	}

	tenantID, presence, ok := c.registry.UpdatePage(conn.ID, payload.Page)
	if !ok {
		return
	}

	c.Broadcast(tenantID, OutboundEvent{Type: EventCursorUpdated, Data: CursorUpdatedEvent{
		ConnID: conn.ID,
		UserID: conn.Claims.UserID,
		X:      presence.CursorX,
		Y:      presence.CursorY,
		Page:   payload.Page,
	}})
}

func (c *Coordinator) handleCursorMove(conn *Conn, raw json.RawMessage) {
	var payload CursorMovePayload
	if !c.decode(conn, ActionCursorMove, raw, &payload) {
		return
	}

	tenantID, ok := c.registry.UpdatePresence(conn.ID, payload.Page, payload.X, payload.Y)
	if !ok {
		return
	}

	c.Broadcast(tenantID, OutboundEvent{Type: EventCursorUpdated, Data: CursorUpdatedEvent{
		ConnID: conn.ID,
		UserID: conn.Claims.UserID,
		X:      payload.X,
		Y:      payload.Y,
		Page:   payload.Page,
	}})
}

func (c *Coordinator) handleLockAcquire(conn *Conn, raw json.RawMessage) {
	var payload LockPayload
	if !c.decode(conn, ActionLockAcquire, raw, &payload) {
		return
	}

	tenantID, ok := c.registry.Tenant(conn.ID)
	if !ok {
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
			Action:  ActionLockAcquire,
			Message: "join a room first",
		}})
		return
	}

	result := c.locks.Acquire(tenantID, payload.EntityID, conn.ID, conn.Claims.UserID, conn.Claims.DisplayName)
	if !result.Acquired {
		// Contention goes to the requester only; no automatic retry.
		conn.Send(OutboundEvent{Type: EventLockDenied, Data: LockEvent{
			EntityID:   payload.EntityID,
			UserID:     result.HolderID,
			HolderName: result.HolderName,
		}})
		return
	}

	c.Broadcast(tenantID, OutboundEvent{Type: EventLockAcquired, Data: LockEvent{
		EntityID:   payload.EntityID,
		UserID:     conn.Claims.UserID,
		HolderName: conn.Claims.DisplayName,
	}})
}

func (c *Coordinator) handleLockRelease(conn *Conn, raw json.RawMessage) {
	var payload LockPayload
	if !c.decode(conn, ActionLockRelease, raw, &payload) {
		return
	}

	tenantID, ok := c.registry.Tenant(conn.ID)
	if !ok {
		return
	}

	if err := c.locks.Release(tenantID, payload.EntityID, conn.ID); err != nil {
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
			Action:  ActionLockRelease,
			Message: err.Error(),
		}})
		return
	}

	c.Broadcast(tenantID, OutboundEvent{Type: EventLockReleased, Data: LockEvent{
		EntityID: payload.EntityID,
		UserID:   conn.Claims.UserID,
	}})
}

func (c *Coordinator) handleCommentAdd(conn *Conn, raw json.RawMessage) {
	var payload CommentAddPayload
	if !c.decode(conn, ActionCommentAdd, raw, &payload) {
		return
	}

	tenantID, ok := c.registry.Tenant(conn.ID)
	if !ok {
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
			Action:  ActionCommentAdd,
			Message: "join a room first",
		}})
		return
	}

	now := time.Now()

	c.Broadcast(tenantID, OutboundEvent{Type: EventCommentAdded, Data: CommentAddedEvent{
		EntityType:  payload.EntityType,
		EntityID:    payload.EntityID,
		Content:     payload.Content,
		UserID:      conn.Claims.UserID,
		DisplayName: conn.Claims.DisplayName,
		CreatedAt:   now,
	}})

	// Persisting is detached from the client's lifetime: if the
	// connection drops mid-write the write still completes.
	n := c.notifier.Create(context.Background(), notify.CreateInput{
		TenantID: tenantID,
		Category: models.NotificationCategoryComment,
		Severity: models.NotificationSeverityInfo,
		Title:    fmt.Sprintf("%s commented", conn.Claims.DisplayName),
		Message:  payload.Content,
		Details: models.Variables{
			"entityType": payload.EntityType,
			"entityId":   payload.EntityID,
		},
	})
	c.BroadcastNotification(n)
}

// handleDashboardSubscribe starts a per-connection push loop that
// re-reads the metrics cache and forwards snapshots the client has not
// seen yet. The requested interval is clamped to a server-side floor.
func (c *Coordinator) handleDashboardSubscribe(conn *Conn, raw json.RawMessage) {
	var payload DashboardSubscribePayload
	if !c.decode(conn, ActionDashboardSubscribe, raw, &payload) {
		return
	}

	tenantID, ok := c.registry.Tenant(conn.ID)
	if !ok {
		conn.Send(OutboundEvent{Type: EventError, Data: ErrorEvent{
			Action:  ActionDashboardSubscribe,
			Message: "join a room first",
		}})
		return
	}

	interval := time.Duration(payload.RefreshIntervalMs) * time.Millisecond
	if interval < c.cfg.MinRefreshInterval {
		interval = c.cfg.MinRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn.setSubscription(cancel)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastComputed time.Time

		push := func() {
			snapshot, err := c.metrics.GetMetrics(ctx, tenantID, false)
			if err != nil {
				log.Warn().Err(err).Str("tenant", tenantID.String()).Msg("Dashboard refresh failed")
				return
			}
			if snapshot.ComputedAt.Equal(lastComputed) {
				return
			}
			lastComputed = snapshot.ComputedAt
			conn.Send(OutboundEvent{Type: EventMetricsUpdated, Data: snapshot})
		}

		push()
		for {
			select {
			case <-ticker.C:
				push()
			case <-ctx.Done():
				return
			case <-conn.done:
				return
			}
		}
	}()
}
