package interfaces

import (
	"context"
	"encoding/json"

	"classwire/pkg/types"
)

// ConnectionMetadata identifies the user behind a connection. The token is
// opaque to this core; authentication is the transport/server's concern.
type ConnectionMetadata struct {
	UserID int
	Token  string
}

// EventHandler consumes the raw payload of a named event. Handlers must not
// retain the slice past the call.
type EventHandler func(data json.RawMessage)

// Conn is one live bidirectional event connection. Implementations must make
// Send safe for concurrent use and Close idempotent.
type Conn interface {
	// ID returns a per-dial identifier used for log correlation.
	ID() string

	// Send emits a named event with a JSON-encodable payload. Fire-and-forget:
	// delivery is not acknowledged.
	Send(event string, payload interface{}) error

	// On registers a handler for a named event. Multiple handlers per event
	// are invoked in registration order. Transport lifecycle events
	// (types.EventDisconnect etc.) are delivered through the same mechanism.
	On(event string, handler EventHandler)

	// Start begins delivering inbound events. Callers bind their handlers
	// first, then Start, so frames the server pushes right after the
	// handshake are never consumed unseen. Safe to call more than once.
	Start()

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Transport opens connections to the realtime endpoint. Treated as opaque:
// framing, encoding and transport-level auth live behind this boundary.
type Transport interface {
	Open(ctx context.Context, endpoint string, meta ConnectionMetadata) (Conn, error)
}

// EventChannel is the multiplexed view of the managed connection that the
// presence, room and notification components consume. The connection manager
// is its only implementation in production; registrations survive reconnects.
type EventChannel interface {
	On(event string, handler EventHandler)
	Send(event string, payload interface{}) error
	State() types.ConnectionState
	OnStateChange(fn func(types.ConnectionState))
}
