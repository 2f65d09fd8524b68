package rooms

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"classwire/internal/logging"
	"classwire/internal/metrics"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// Tracker keeps the set of joined rooms equal to the desired set derived
// from the user's class list. The locally held joined set is the source of
// truth for what the connection is subscribed to; join/leave messages are
// fire-and-forget and never awaited.
type Tracker struct {
	ch       interfaces.EventChannel
	identity interfaces.Identity
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	joined  map[int]struct{}
	desired map[int]struct{}
}

// NewTracker wires a tracker to the event channel. On every transition to
// Connected the joined set resets and the full desired set is re-joined, so
// a reconnect re-establishes all prior room subscriptions.
func NewTracker(ch interfaces.EventChannel, identity interfaces.Identity, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	t := &Tracker{
		ch:       ch,
		identity: identity,
		logger:   logging.OrNop(logger),
		metrics:  m,
		joined:   make(map[int]struct{}),
		desired:  make(map[int]struct{}),
	}

	ch.OnStateChange(t.handleStateChange)
	return t
}

// Reconcile diffs the desired room set against the locally joined set and
// emits only the necessary join/leave messages. Joining an already-joined
// room is skipped, so rapid repeated calls with the same set are no-ops.
// When the connection is down the desired set is remembered and applied in
// full on the next transition to Connected.
func (t *Tracker) Reconcile(desiredRoomIDs []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.desired = make(map[int]struct{}, len(desiredRoomIDs))
	for _, id := range desiredRoomIDs {
		if id <= 0 {
			t.logger.Warn("skipping invalid room id", zap.Int("class_id", id))
			continue
		}
		t.desired[id] = struct{}{}
	}

	if t.ch.State().Phase != types.PhaseConnected {
		return
	}

	for id := range t.desired {
		if _, ok := t.joined[id]; !ok {
			t.joinLocked(id)
		}
	}
	for id := range t.joined {
		if _, ok := t.desired[id]; !ok {
			t.leaveLocked(id)
		}
	}
}

// LeaveAll leaves every joined room and clears both sets. Called on
// teardown so subscriptions are never leaked past logout.
func (t *Tracker) LeaveAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.joined {
		t.leaveLocked(id)
	}
	t.joined = make(map[int]struct{})
	t.desired = make(map[int]struct{})
}

// Joined returns the currently joined room IDs in ascending order.
func (t *Tracker) Joined() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]int, 0, len(t.joined))
	for id := range t.joined {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Stats returns a snapshot for monitoring and debugging.
func (t *Tracker) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]interface{}{
		"joined":  len(t.joined),
		"desired": len(t.desired),
	}
}

// handleStateChange re-joins the full desired set on a fresh connection.
func (t *Tracker) handleStateChange(state types.ConnectionState) {
	if state.Phase != types.PhaseConnected {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.joined = make(map[int]struct{})
	for id := range t.desired {
		t.joinLocked(id)
	}
}

// joinLocked emits room:join and marks the room joined. Caller holds t.mu.
func (t *Tracker) joinLocked(classID int) {
	err := t.ch.Send(types.EventRoomJoin, types.RoomJoinPayload{
		ClassID: classID,
		UserID:  t.identity.CurrentUserID(),
	})
	if err != nil {
		t.logger.Debug("join not sent", zap.Int("class_id", classID), zap.Error(err))
		return
	}
	t.joined[classID] = struct{}{}
	t.metrics.IncJoin()
}

// leaveLocked emits room:leave and unmarks the room. Caller holds t.mu.
func (t *Tracker) leaveLocked(classID int) {
	err := t.ch.Send(types.EventRoomLeave, types.RoomLeavePayload{ClassID: classID})
	if err != nil {
		t.logger.Debug("leave not sent", zap.Int("class_id", classID), zap.Error(err))
	}
	delete(t.joined, classID)
	t.metrics.IncLeave()
}
