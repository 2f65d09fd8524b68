package types

import (
	"fmt"
	"time"
)

// Transport lifecycle event names. The transport layer emits these on the
// same event channel as domain events so upper layers observe connection
// health without a separate subscription mechanism.
const (
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventConnectError     = "connect_error"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnect        = "reconnect"
	EventReconnectFailed  = "reconnect_failed"
)

// Domain event names exchanged over the connection. These are the wire
// contract shared with the server and must not be renamed.
const (
	EventPresenceRequest = "presence:request"
	EventPresenceUpdate  = "presence:update"
	EventPresenceUser    = "presence:user"
	EventPresenceList    = "presence:list"
	EventRoomJoin        = "room:join"
	EventRoomLeave       = "room:leave"
	EventPostCreated     = "post:created"
	EventReplyCreated    = "reply:created"
)

// ConnectionPhase identifies the lifecycle phase of the managed connection.
type ConnectionPhase int

const (
	PhaseDisconnected ConnectionPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseErrored
)

// String returns the lowercase phase name used in logs and metrics.
func (p ConnectionPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ConnectionState is the observable state of the managed connection.
// Only the connection manager writes it; every other component reads it.
type ConnectionState struct {
	Phase            ConnectionPhase
	ReconnectAttempt uint
	LastError        error
}

// PresenceStatus is a user's live availability status.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEntry records the last known status of a user. Absence of an entry
// is equivalent to offline with unknown last-seen time.
type PresenceEntry struct {
	UserID   int            `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

// Class is one entry of the authoritative class list for the current user.
type Class struct {
	ID   int    `json:"classId"`
	Name string `json:"className"`
}

// PresenceRequestPayload asks the server for the current status of a batch
// of users. Results arrive as presence:user or presence:list events.
type PresenceRequestPayload struct {
	UserIDs []int `json:"user_ids"`
}

// PresenceUpdatePayload carries one user's status change. Used for both
// broadcast updates (presence:update) and unicast answers (presence:user).
type PresenceUpdatePayload struct {
	UserID   int            `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

// RoomJoinPayload subscribes the connection to a class room.
type RoomJoinPayload struct {
	ClassID int `json:"class_id"`
	UserID  int `json:"user_id"`
}

// RoomLeavePayload unsubscribes the connection from a class room.
type RoomLeavePayload struct {
	ClassID int `json:"class_id"`
}

// PostCreatedPayload announces a new post in a class.
type PostCreatedPayload struct {
	ClassID  int    `json:"class_id"`
	SenderID int    `json:"sender_id"`
	ParentID *int   `json:"parent_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message"`
}

// ReplyCreatedPayload announces a new reply in a class.
type ReplyCreatedPayload struct {
	ClassID  int    `json:"class_id"`
	SenderID int    `json:"sender_id"`
	Message  string `json:"message"`
}

// NotificationKind distinguishes the domain events that can surface as
// user-facing notifications.
type NotificationKind string

const (
	KindPost  NotificationKind = "post"
	KindReply NotificationKind = "reply"
)

// NotificationEvent is the normalized domain event handed to the dispatcher.
// It is ephemeral: built per incoming event, discarded after dispatch.
type NotificationEvent struct {
	Kind           NotificationKind
	ClassID        int
	SenderID       int
	ResourceID     int
	ContentPreview string
	Timestamp      time.Time
}

// DedupKey returns the stable key used by the notification surface to
// collapse repeated notifications about the same logical event.
func (e NotificationEvent) DedupKey() string {
	return fmt.Sprintf("%s-%d", e.Kind, e.ClassID)
}

// Notification is the payload delivered to the platform notification surface.
type Notification struct {
	ID       string
	Title    string
	Body     string
	DedupKey string
	Event    NotificationEvent
	OnClick  func()
}
