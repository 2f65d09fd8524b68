package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"classwire/internal/logging"
	"classwire/internal/metrics"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// Options controls the managed connection lifecycle. The reconnect policy is
// a fixed short delay bounded by MaxAttempts; once the budget is exhausted
// the manager stops retrying and surfaces a terminal Errored state.
type Options struct {
	Endpoint       string
	Token          string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	MaxAttempts    uint
}

// DefaultOptions returns the production reconnect policy.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 10 * time.Second,
		ReconnectDelay: 2 * time.Second,
		MaxAttempts:    5,
	}
}

// Manager owns the single live connection for the active user identity.
// It is the only component that creates or destroys the connection; presence,
// rooms and notifications consume it through the EventChannel view, which
// re-binds their handlers on every new physical connection.
type Manager struct {
	transport interfaces.Transport
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu         sync.RWMutex
	state      types.ConnectionState
	userID     int
	conn       interfaces.Conn
	handlers   map[string][]interfaces.EventHandler
	stateSubs  []func(types.ConnectionState)
	retryTimer *time.Timer
	// gen invalidates in-flight dials and timers from superseded connections.
	gen int
}

var _ interfaces.EventChannel = (*Manager)(nil)

// NewManager creates a connection manager in the disconnected state.
func NewManager(transport interfaces.Transport, opts Options, logger *zap.Logger, m *metrics.Metrics) *Manager {
	def := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = def.ReconnectDelay
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = def.MaxAttempts
	}

	return &Manager{
		transport: transport,
		opts:      opts,
		logger:    logging.OrNop(logger),
		metrics:   m,
		handlers:  make(map[string][]interfaces.EventHandler),
		state:     types.ConnectionState{Phase: types.PhaseDisconnected},
	}
}

// Connect opens a connection for userID. No-op when a connection for the
// same user is already live or in progress. Never blocks: the transition to
// Connecting is immediate, Connected or Errored arrives asynchronously.
func (m *Manager) Connect(userID int) error {
	if userID <= 0 {
		return ErrNoIdentity
	}

	m.mu.Lock()
	if m.userID == userID &&
		(m.state.Phase == types.PhaseConnected || m.state.Phase == types.PhaseConnecting) {
		m.mu.Unlock()
		return nil
	}

	old := m.teardownLocked()
	m.userID = userID
	m.gen++
	gen := m.gen
	m.setStateLocked(types.ConnectionState{Phase: types.PhaseConnecting})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	closeConn(old)
	notify(subs, state)

	m.logger.Info("connecting", zap.Int("user_id", userID))
	go m.dial(gen, userID)
	return nil
}

// Disconnect tears down the active connection and cancels any pending retry.
// The user identity is cleared so a later visibility change or Reconnect
// cannot reopen a connection for a logged-out user. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.userID = 0
	old := m.teardownLocked()
	changed := m.state.Phase != types.PhaseDisconnected
	m.setStateLocked(types.ConnectionState{Phase: types.PhaseDisconnected})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	closeConn(old)
	if changed {
		m.logger.Info("disconnected")
		notify(subs, state)
	}
}

// Reconnect closes the current connection and dials again after the
// configured delay. Resets the automatic retry budget.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	userID := m.userID
	if userID <= 0 {
		m.mu.Unlock()
		return ErrNoIdentity
	}

	m.gen++
	gen := m.gen
	old := m.teardownLocked()
	m.setStateLocked(types.ConnectionState{Phase: types.PhaseConnecting})
	m.retryTimer = time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.dial(gen, userID)
	})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	closeConn(old)
	notify(subs, state)
	m.logger.Info("reconnect requested", zap.Int("user_id", userID))
	return nil
}

// HandleVisibilityChange recovers sessions left idle in a background tab:
// becoming visible while not connected triggers a reconnect. Becoming hidden
// never forces a disconnect.
func (m *Manager) HandleVisibilityChange(visible bool) {
	if !visible {
		return
	}
	if m.State().Phase == types.PhaseConnected {
		return
	}
	if err := m.Reconnect(); err != nil {
		m.logger.Debug("visibility reconnect skipped", zap.Error(err))
	}
}

// On registers a handler for a named event. Registrations persist across
// reconnects: the manager re-binds them on every new physical connection.
func (m *Manager) On(event string, handler interfaces.EventHandler) {
	if handler == nil {
		return
	}
	wrapped := func(data json.RawMessage) {
		m.metrics.IncReceived(event)
		handler(data)
	}

	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], wrapped)
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		conn.On(event, wrapped)
	}
}

// Send emits an event on the live connection. Returns ErrNotConnected when
// there is none; callers treat sends as fire-and-forget.
func (m *Manager) Send(event string, payload interface{}) error {
	m.mu.RLock()
	conn := m.conn
	phase := m.state.Phase
	m.mu.RUnlock()

	if phase != types.PhaseConnected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(event, payload)
}

// State returns the current connection state.
func (m *Manager) State() types.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange subscribes to state transitions. Callbacks run synchronously
// after each transition, outside the manager's lock.
func (m *Manager) OnStateChange(fn func(types.ConnectionState)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.stateSubs = append(m.stateSubs, fn)
	m.mu.Unlock()
}

// Stats returns a snapshot for monitoring and debugging.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connID := ""
	if m.conn != nil {
		connID = m.conn.ID()
	}
	return map[string]interface{}{
		"phase":             m.state.Phase.String(),
		"reconnect_attempt": m.state.ReconnectAttempt,
		"user_id":           m.userID,
		"conn_id":           connID,
	}
}

// dial performs one connection attempt. Runs off the caller's goroutine.
func (m *Manager) dial(gen, userID int) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()

	conn, err := m.transport.Open(ctx, m.opts.Endpoint, interfaces.ConnectionMetadata{
		UserID: userID,
		Token:  m.opts.Token,
	})

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		closeConn(conn)
		return
	}

	if err != nil {
		attempt := m.state.ReconnectAttempt
		m.setStateLocked(types.ConnectionState{
			Phase:            types.PhaseErrored,
			ReconnectAttempt: attempt,
			LastError:        err,
		})
		m.scheduleRetryLocked(gen, userID)
		subs, state := m.subsAndStateLocked()
		m.mu.Unlock()

		m.logger.Warn("connect failed",
			zap.Int("user_id", userID),
			zap.Uint("attempt", attempt),
			zap.Error(err),
		)
		notify(subs, state)
		return
	}

	m.conn = conn
	m.bindLocked(conn, gen)
	m.setStateLocked(types.ConnectionState{Phase: types.PhaseConnected})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	// Handlers are bound; the connection may start draining inbound frames.
	conn.Start()

	m.logger.Info("connected", zap.Int("user_id", userID), zap.String("conn_id", conn.ID()))
	notify(subs, state)
}

// scheduleRetryLocked arms the next automatic attempt, or marks the state
// terminal once the budget is spent. Caller holds m.mu.
func (m *Manager) scheduleRetryLocked(gen, userID int) {
	m.stopRetryLocked()

	if m.state.ReconnectAttempt >= m.opts.MaxAttempts {
		m.state.LastError = fmt.Errorf("%w after %d attempts: %v",
			ErrRetriesExhausted, m.state.ReconnectAttempt, m.state.LastError)
		m.logger.Error("giving up on automatic reconnect",
			zap.Uint("attempts", m.state.ReconnectAttempt))
		return
	}

	next := m.state.ReconnectAttempt + 1
	m.retryTimer = time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.retryFire(gen, userID, next)
	})
}

// retryFire transitions to Connecting for automatic attempt n and dials.
func (m *Manager) retryFire(gen, userID int, attempt uint) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(types.ConnectionState{
		Phase:            types.PhaseConnecting,
		ReconnectAttempt: attempt,
	})
	m.metrics.IncReconnect()
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	m.logger.Info("automatic reconnect", zap.Uint("attempt", attempt))
	notify(subs, state)
	m.dial(gen, userID)
}

// bindLocked attaches all registered handlers plus the transport lifecycle
// handlers to a freshly opened connection. Caller holds m.mu.
func (m *Manager) bindLocked(conn interfaces.Conn, gen int) {
	for event, hs := range m.handlers {
		for _, h := range hs {
			conn.On(event, h)
		}
	}

	conn.On(types.EventDisconnect, func(json.RawMessage) {
		m.onTransportDisconnect(gen)
	})
	conn.On(types.EventConnectError, func(data json.RawMessage) {
		m.onTransportConnectError(gen, data)
	})
	conn.On(types.EventReconnectAttempt, func(data json.RawMessage) {
		m.onTransportReconnectAttempt(gen, data)
	})
	conn.On(types.EventReconnect, func(json.RawMessage) {
		m.onTransportReconnect(gen)
	})
	conn.On(types.EventConnect, func(json.RawMessage) {
		m.onTransportReconnect(gen)
	})
	conn.On(types.EventReconnectFailed, func(json.RawMessage) {
		m.onTransportReconnectFailed(gen)
	})
}

// onTransportDisconnect handles a transport-level drop: the state snaps to
// Disconnected and an automatic retry is armed. If the transport performs
// its own recovery, its reconnect_attempt/reconnect events cancel the timer.
func (m *Manager) onTransportDisconnect(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	userID := m.userID
	m.setStateLocked(types.ConnectionState{Phase: types.PhaseDisconnected})
	m.scheduleRetryLocked(gen, userID)
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	m.logger.Warn("transport disconnected", zap.Int("user_id", userID))
	notify(subs, state)
}

func (m *Manager) onTransportConnectError(gen int, data json.RawMessage) {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &payload)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(types.ConnectionState{
		Phase:            types.PhaseErrored,
		ReconnectAttempt: m.state.ReconnectAttempt,
		LastError:        fmt.Errorf("transport connect error: %s", payload.Message),
	})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	notify(subs, state)
}

func (m *Manager) onTransportReconnectAttempt(gen int, data json.RawMessage) {
	var payload struct {
		Attempt uint `json:"attempt"`
	}
	_ = json.Unmarshal(data, &payload)
	if payload.Attempt == 0 {
		payload.Attempt = 1
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	// The transport is recovering on its own; stand down our retry timer so
	// two connections are never opened for the same user.
	m.stopRetryLocked()
	m.setStateLocked(types.ConnectionState{
		Phase:            types.PhaseConnecting,
		ReconnectAttempt: payload.Attempt,
	})
	m.metrics.IncReconnect()
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	notify(subs, state)
}

// onTransportReconnect handles the transport recovering on its own: the
// state snaps straight back to Connected and the attempt counter clears.
func (m *Manager) onTransportReconnect(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	m.setStateLocked(types.ConnectionState{Phase: types.PhaseConnected})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	m.logger.Info("transport recovered")
	notify(subs, state)
}

func (m *Manager) onTransportReconnectFailed(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	m.setStateLocked(types.ConnectionState{
		Phase:            types.PhaseErrored,
		ReconnectAttempt: m.state.ReconnectAttempt,
		LastError:        ErrRetriesExhausted,
	})
	subs, state := m.subsAndStateLocked()
	m.mu.Unlock()

	m.logger.Error("transport gave up reconnecting")
	notify(subs, state)
}

// teardownLocked detaches the current connection and cancels pending retries,
// returning the connection for the caller to close outside the lock.
func (m *Manager) teardownLocked() interfaces.Conn {
	m.stopRetryLocked()
	old := m.conn
	m.conn = nil
	return old
}

func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) setStateLocked(state types.ConnectionState) {
	m.state = state
	m.metrics.SetPhase(int(state.Phase))
}

func (m *Manager) subsAndStateLocked() ([]func(types.ConnectionState), types.ConnectionState) {
	subs := make([]func(types.ConnectionState), len(m.stateSubs))
	copy(subs, m.stateSubs)
	return subs, m.state
}

func notify(subs []func(types.ConnectionState), state types.ConnectionState) {
	for _, fn := range subs {
		fn(state)
	}
}

func closeConn(conn interfaces.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}
