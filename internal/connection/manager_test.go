package connection

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classwire/internal/wiretest"
	"classwire/pkg/types"
)

func fastOptions() Options {
	return Options{
		Endpoint:       "ws://test",
		ConnectTimeout: 500 * time.Millisecond,
		ReconnectDelay: 10 * time.Millisecond,
		MaxAttempts:    3,
	}
}

// stateRecorder collects every transition for order-sensitive assertions.
type stateRecorder struct {
	mu     sync.Mutex
	phases []types.ConnectionPhase
}

func (r *stateRecorder) record(state types.ConnectionState) {
	r.mu.Lock()
	r.phases = append(r.phases, state.Phase)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []types.ConnectionPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ConnectionPhase, len(r.phases))
	copy(out, r.phases)
	return out
}

func waitForPhase(t *testing.T, m *Manager, phase types.ConnectionPhase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State().Phase == phase
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectReachesConnected(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	assert.Equal(t, 1, tr.OpenCount())
	assert.Equal(t, 1, tr.LastConn().Meta.UserID)
}

func TestHandlersBoundBeforeConnStarts(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)
	m.On("post:created", func(json.RawMessage) {})

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	conn := tr.LastConn()
	require.Eventually(t, conn.Started, time.Second, 5*time.Millisecond)

	// The domain handler plus all six transport lifecycle bindings must be
	// attached before the connection begins draining inbound frames, so a
	// frame pushed right after the handshake is never consumed unseen.
	assert.Equal(t, 7, conn.HandlersAtStart())
}

func TestConnectSameUserTwiceIsNoOp(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	require.NoError(t, m.Connect(1))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, tr.OpenCount())
}

func TestConnectRejectsInvalidIdentity(t *testing.T) {
	m := NewManager(wiretest.NewTransport(), fastOptions(), nil, nil)
	assert.ErrorIs(t, m.Connect(0), ErrNoIdentity)
}

func TestSendRequiresConnected(t *testing.T) {
	m := NewManager(wiretest.NewTransport(), fastOptions(), nil, nil)
	assert.ErrorIs(t, m.Send("presence:update", nil), ErrNotConnected)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)
	conn := tr.LastConn()

	m.Disconnect()
	m.Disconnect()

	assert.Equal(t, types.PhaseDisconnected, m.State().Phase)
	assert.True(t, conn.Closed())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, tr.OpenCount())
}

func TestTransportRecoverySequence(t *testing.T) {
	tr := wiretest.NewTransport()
	// Long retry delay so the transport's own recovery events drive every
	// transition, not the manager's retry timer.
	opts := fastOptions()
	opts.ReconnectDelay = time.Second
	m := NewManager(tr, opts, nil, nil)
	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)
	conn := tr.LastConn()

	conn.Emit(types.EventDisconnect, nil)
	conn.Emit(types.EventReconnectAttempt, map[string]uint{"attempt": 1})
	conn.Emit(types.EventReconnect, nil)

	waitForPhase(t, m, types.PhaseConnected)
	assert.Equal(t, []types.ConnectionPhase{
		types.PhaseConnecting,
		types.PhaseConnected,
		types.PhaseDisconnected,
		types.PhaseConnecting,
		types.PhaseConnected,
	}, rec.snapshot())
	assert.Equal(t, uint(0), m.State().ReconnectAttempt)
}

func TestDropArmsAutomaticRetry(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	tr.LastConn().Emit(types.EventDisconnect, nil)

	require.Eventually(t, func() bool {
		return tr.OpenCount() >= 2 && m.State().Phase == types.PhaseConnected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetriesAreBoundedAndTerminal(t *testing.T) {
	tr := wiretest.NewTransport()
	tr.SetOpenErr(errors.New("server down"))
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))

	require.Eventually(t, func() bool {
		state := m.State()
		return state.Phase == types.PhaseErrored &&
			errors.Is(state.LastError, ErrRetriesExhausted)
	}, 2*time.Second, 5*time.Millisecond)

	// 1 initial dial + MaxAttempts automatic retries, then nothing more.
	opens := tr.OpenCount()
	assert.Equal(t, 4, opens)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, opens, tr.OpenCount())
	assert.Equal(t, uint(3), m.State().ReconnectAttempt)
}

func TestExplicitReconnectResetsRetryBudget(t *testing.T) {
	tr := wiretest.NewTransport()
	tr.SetOpenErr(errors.New("server down"))
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	require.Eventually(t, func() bool {
		return errors.Is(m.State().LastError, ErrRetriesExhausted)
	}, 2*time.Second, 5*time.Millisecond)

	tr.SetOpenErr(nil)
	require.NoError(t, m.Reconnect())
	waitForPhase(t, m, types.PhaseConnected)
	assert.Equal(t, uint(0), m.State().ReconnectAttempt)
}

func TestConnectTimeoutSurfacesErrored(t *testing.T) {
	tr := wiretest.NewTransport()
	tr.OpenHook = func(int) { time.Sleep(100 * time.Millisecond) }
	opts := fastOptions()
	opts.ConnectTimeout = 20 * time.Millisecond
	opts.MaxAttempts = 1
	m := NewManager(tr, opts, nil, nil)

	require.NoError(t, m.Connect(1))

	require.Eventually(t, func() bool {
		state := m.State()
		return state.Phase == types.PhaseErrored && state.LastError != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestVisibilityChangeWhileConnectedDoesNothing(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	m.HandleVisibilityChange(false)
	m.HandleVisibilityChange(true)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, tr.OpenCount())
	assert.Equal(t, types.PhaseConnected, m.State().Phase)
}

func TestVisibilityChangeRecoversTerminalError(t *testing.T) {
	tr := wiretest.NewTransport()
	tr.SetOpenErr(errors.New("server down"))
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	require.Eventually(t, func() bool {
		return errors.Is(m.State().LastError, ErrRetriesExhausted)
	}, 2*time.Second, 5*time.Millisecond)

	tr.SetOpenErr(nil)
	m.HandleVisibilityChange(true)
	waitForPhase(t, m, types.PhaseConnected)
}

func TestVisibilityAfterDisconnectDoesNotReconnect(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	m.Disconnect()

	// The identity is gone with the logout; a late visibility event must not
	// reopen a connection for it.
	m.HandleVisibilityChange(true)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, tr.OpenCount())
	assert.Equal(t, types.PhaseDisconnected, m.State().Phase)
	assert.ErrorIs(t, m.Reconnect(), ErrNoIdentity)
}

func TestHandlersSurviveReconnect(t *testing.T) {
	tr := wiretest.NewTransport()
	m := NewManager(tr, fastOptions(), nil, nil)

	var mu sync.Mutex
	var got []string
	m.On("post:created", func(data json.RawMessage) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})

	require.NoError(t, m.Connect(1))
	waitForPhase(t, m, types.PhaseConnected)

	require.NoError(t, m.Reconnect())
	waitForPhase(t, m, types.PhaseConnected)
	require.Eventually(t, func() bool { return tr.OpenCount() == 2 }, time.Second, 5*time.Millisecond)

	tr.LastConn().Emit("post:created", map[string]int{"class_id": 5})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "class_id")
}
