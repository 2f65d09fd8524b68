// Package wiretest provides in-memory doubles for the transport and event
// channel contracts. Emit dispatches handlers synchronously on the caller's
// goroutine, matching the single-threaded event model of the real core.
package wiretest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// SentEvent records one Send call observed by a fake connection or channel.
type SentEvent struct {
	Event   string
	Payload interface{}
}

// Transport is an in-memory interfaces.Transport. Each Open returns a fresh
// Conn unless OpenErr is set.
type Transport struct {
	mu      sync.Mutex
	conns   []*Conn
	OpenErr error
	// OpenHook, when set, runs inside Open before a connection is produced.
	// Tests use it to block or to flip OpenErr between attempts.
	OpenHook func(attempt int)
	opens    int
}

// NewTransport creates an empty fake transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Open implements interfaces.Transport.
func (t *Transport) Open(ctx context.Context, endpoint string, meta interfaces.ConnectionMetadata) (interfaces.Conn, error) {
	t.mu.Lock()
	t.opens++
	attempt := t.opens
	hook := t.OpenHook
	t.mu.Unlock()

	if hook != nil {
		hook(attempt)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	c := NewConn(fmt.Sprintf("fake-%d", attempt))
	c.Meta = meta
	t.conns = append(t.conns, c)
	return c, nil
}

// OpenCount returns how many times Open was called.
func (t *Transport) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// LastConn returns the most recently opened connection, or nil.
func (t *Transport) LastConn() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// Conns returns all opened connections.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Conn, len(t.conns))
	copy(out, t.conns)
	return out
}

// SetOpenErr makes subsequent Open calls fail with err (nil clears it).
func (t *Transport) SetOpenErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OpenErr = err
}

// Conn is an in-memory interfaces.Conn that records sends and lets tests
// inject inbound events.
type Conn struct {
	id   string
	Meta interfaces.ConnectionMetadata

	mu              sync.Mutex
	handlers        map[string][]interfaces.EventHandler
	sent            []SentEvent
	started         bool
	handlersAtStart int
	closed          bool
}

// NewConn creates a fake connection with the given identifier.
func NewConn(id string) *Conn {
	return &Conn{
		id:       id,
		handlers: make(map[string][]interfaces.EventHandler),
	}
}

// ID implements interfaces.Conn.
func (c *Conn) ID() string { return c.id }

// Send implements interfaces.Conn, recording the event for assertions.
func (c *Conn) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("send on closed fake connection")
	}
	c.sent = append(c.sent, SentEvent{Event: event, Payload: payload})
	return nil
}

// On implements interfaces.Conn.
func (c *Conn) On(event string, handler interfaces.EventHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.mu.Unlock()
}

// Start implements interfaces.Conn, recording that the consumer finished
// binding handlers and how many event bindings existed at that moment.
func (c *Conn) Start() {
	c.mu.Lock()
	if !c.started {
		c.started = true
		for _, hs := range c.handlers {
			c.handlersAtStart += len(hs)
		}
	}
	c.mu.Unlock()
}

// Started reports whether Start was called.
func (c *Conn) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// HandlersAtStart returns the number of handler bindings present when Start
// was first called.
func (c *Conn) HandlersAtStart() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlersAtStart
}

// Close implements interfaces.Conn; safe to call repeatedly.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit delivers an inbound event to all registered handlers synchronously.
// The payload is marshalled to JSON the way the real transport would.
func (c *Conn) Emit(event string, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("wiretest: unmarshalable payload for %s: %v", event, err))
		}
		data = encoded
	}

	c.mu.Lock()
	hs := make([]interfaces.EventHandler, len(c.handlers[event]))
	copy(hs, c.handlers[event])
	c.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

// EmitRaw delivers a raw (possibly malformed) payload without marshalling.
func (c *Conn) EmitRaw(event string, data json.RawMessage) {
	c.mu.Lock()
	hs := make([]interfaces.EventHandler, len(c.handlers[event]))
	copy(hs, c.handlers[event])
	c.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

// Sent returns every recorded send.
func (c *Conn) Sent() []SentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentEvent, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentNamed returns recorded sends for one event name.
func (c *Conn) SentNamed(event string) []SentEvent {
	var out []SentEvent
	for _, s := range c.Sent() {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// Channel is an in-memory interfaces.EventChannel for testing the presence,
// room and notification components in isolation from the connection manager.
type Channel struct {
	mu        sync.Mutex
	state     types.ConnectionState
	handlers  map[string][]interfaces.EventHandler
	stateSubs []func(types.ConnectionState)
	sent      []SentEvent
	// SendErr, when set, is returned by every Send.
	SendErr error
}

// NewChannel creates a fake channel in the disconnected state.
func NewChannel() *Channel {
	return &Channel{handlers: make(map[string][]interfaces.EventHandler)}
}

// On implements interfaces.EventChannel.
func (ch *Channel) On(event string, handler interfaces.EventHandler) {
	if handler == nil {
		return
	}
	ch.mu.Lock()
	ch.handlers[event] = append(ch.handlers[event], handler)
	ch.mu.Unlock()
}

// Send implements interfaces.EventChannel, recording the event.
func (ch *Channel) Send(event string, payload interface{}) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.SendErr != nil {
		return ch.SendErr
	}
	ch.sent = append(ch.sent, SentEvent{Event: event, Payload: payload})
	return nil
}

// State implements interfaces.EventChannel.
func (ch *Channel) State() types.ConnectionState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// OnStateChange implements interfaces.EventChannel.
func (ch *Channel) OnStateChange(fn func(types.ConnectionState)) {
	if fn == nil {
		return
	}
	ch.mu.Lock()
	ch.stateSubs = append(ch.stateSubs, fn)
	ch.mu.Unlock()
}

// SetState updates the fake connection state and notifies subscribers.
func (ch *Channel) SetState(state types.ConnectionState) {
	ch.mu.Lock()
	ch.state = state
	subs := make([]func(types.ConnectionState), len(ch.stateSubs))
	copy(subs, ch.stateSubs)
	ch.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// Emit delivers an inbound event to registered handlers synchronously.
func (ch *Channel) Emit(event string, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("wiretest: unmarshalable payload for %s: %v", event, err))
		}
		data = encoded
	}
	ch.EmitRaw(event, data)
}

// EmitRaw delivers a raw payload without marshalling.
func (ch *Channel) EmitRaw(event string, data json.RawMessage) {
	ch.mu.Lock()
	hs := make([]interfaces.EventHandler, len(ch.handlers[event]))
	copy(hs, ch.handlers[event])
	ch.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

// Sent returns every recorded send.
func (ch *Channel) Sent() []SentEvent {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]SentEvent, len(ch.sent))
	copy(out, ch.sent)
	return out
}

// SentNamed returns recorded sends for one event name.
func (ch *Channel) SentNamed(event string) []SentEvent {
	var out []SentEvent
	for _, s := range ch.Sent() {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// Reset clears recorded sends.
func (ch *Channel) Reset() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.sent = nil
}
