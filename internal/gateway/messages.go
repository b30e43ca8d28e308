package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client action types
const (
	ActionJoinRoom             = "join-room"
	ActionLeaveRoom            = "leave-room"
	ActionPageChange           = "page-change"
	ActionCursorMove           = "cursor-move"
	ActionLockAcquire          = "lock-acquire"
	ActionLockRelease          = "lock-release"
	ActionCommentAdd           = "comment-add"
	ActionDashboardSubscribe   = "dashboard-subscribe"
	ActionDashboardUnsubscribe = "dashboard-unsubscribe"
)

// Broadcast event types
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventPresenceState  = "presence-state"
	EventCursorUpdated  = "cursor-updated"
	EventLockAcquired   = "lock-acquired"
	EventLockDenied     = "lock-denied"
	EventLockReleased   = "lock-released"
	EventCommentAdded   = "comment-added"
	EventMetricsUpdated = "dashboard-metrics-updated"
	EventNotification   = "notification-created"
	EventError          = "error"
)

// Envelope is the wire format for client actions and server events
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is a server-to-client message before encoding
type OutboundEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// JoinRoomPayload is the join-room action payload. The tenant comes from
// the verified token, not the payload; the payload only carries display
// preferences.
type JoinRoomPayload struct {
	Page string `json:"page"`
}

// PageChangePayload is the page-change action payload
type PageChangePayload struct {
	Page string `json:"page" validate:"required"`
}

// CursorMovePayload is the cursor-move action payload
type CursorMovePayload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page string  `json:"page"`
}

// LockPayload is the lock-acquire / lock-release action payload
type LockPayload struct {
	EntityID string `json:"entityId" validate:"required"`
}

// CommentAddPayload is the comment-add action payload
type CommentAddPayload struct {
	EntityType string `json:"entityType" validate:"required"`
	EntityID   string `json:"entityId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

// DashboardSubscribePayload is the dashboard-subscribe action payload
type DashboardSubscribePayload struct {
	RefreshIntervalMs int `json:"refreshIntervalMs"`
}

// UserJoinedEvent announces a new room member
type UserJoinedEvent struct {
	Member  Presence   `json:"member"`
	Members []Presence `json:"members"`
}

// UserLeftEvent announces a departed room member
type UserLeftEvent struct {
	ConnID string    `json:"connId"`
	UserID uuid.UUID `json:"userId"`
}

// PresenceStateEvent is the join reply carrying the current room state
// and the identity assigned to the joining connection
type PresenceStateEvent struct {
	Self    Identity   `json:"self"`
	Members []Presence `json:"members"`
}

// CursorUpdatedEvent carries another member's cursor position
type CursorUpdatedEvent struct {
	ConnID string    `json:"connId"`
	UserID uuid.UUID `json:"userId"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Page   string    `json:"page"`
}

// LockEvent reports lock state changes and denials
type LockEvent struct {
	EntityID   string    `json:"entityId"`
	UserID     uuid.UUID `json:"userId,omitempty"`
	HolderName string    `json:"holderName,omitempty"`
}

// CommentAddedEvent broadcasts a new comment to the room
type CommentAddedEvent struct {
	EntityType  string    `json:"entityType"`
	EntityID    string    `json:"entityId"`
	Content     string    `json:"content"`
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrorEvent reports a rejected action back to the sender only
type ErrorEvent struct {
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}
