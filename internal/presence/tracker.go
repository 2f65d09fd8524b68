package presence

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"classwire/internal/logging"
	"classwire/internal/metrics"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// Tracker derives live presence from connection events. Entries are only
// created or updated by events arriving on the connection; absence of an
// entry means offline with unknown last-seen. Entries are superseded by
// newer events, never proactively deleted.
type Tracker struct {
	ch       interfaces.EventChannel
	identity interfaces.Identity
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	entries map[int]types.PresenceEntry
	watched map[int]struct{}
}

// NewTracker wires a tracker to the event channel. On every transition to
// Connected the entry set resets and repopulates: own presence goes out as
// online and the watched set is re-requested as a snapshot.
func NewTracker(ch interfaces.EventChannel, identity interfaces.Identity, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	t := &Tracker{
		ch:       ch,
		identity: identity,
		logger:   logging.OrNop(logger),
		metrics:  m,
		entries:  make(map[int]types.PresenceEntry),
		watched:  make(map[int]struct{}),
	}

	ch.On(types.EventPresenceUpdate, t.handleUpdate)
	ch.On(types.EventPresenceUser, t.handleUpdate)
	ch.On(types.EventPresenceList, t.handleList)
	ch.OnStateChange(t.handleStateChange)

	return t
}

// RequestPresence sends a batched status request for the given users.
// No-op when the connection is not established; the IDs are remembered so a
// later reconnect re-requests them.
func (t *Tracker) RequestPresence(userIDs []int) {
	if len(userIDs) == 0 {
		return
	}

	t.mu.Lock()
	for _, id := range userIDs {
		if id > 0 {
			t.watched[id] = struct{}{}
		}
	}
	t.mu.Unlock()

	if t.ch.State().Phase != types.PhaseConnected {
		return
	}
	t.sendRequest(userIDs)
}

// UpdateOwnPresence emits the current user's status over the connection.
// Fire-and-forget; a failed send is logged and dropped.
func (t *Tracker) UpdateOwnPresence(status types.PresenceStatus) {
	if !types.IsValidStatus(status) {
		return
	}
	userID := t.identity.CurrentUserID()
	if userID <= 0 {
		return
	}

	err := t.ch.Send(types.EventPresenceUpdate, types.PresenceUpdatePayload{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now(),
	})
	if err != nil {
		t.logger.Debug("own presence not sent",
			zap.String("status", string(status)), zap.Error(err))
	}
}

// HandleVisibilityChange toggles own presence with tab visibility: visible
// means online, hidden means away.
func (t *Tracker) HandleVisibilityChange(visible bool) {
	if visible {
		t.UpdateOwnPresence(types.StatusOnline)
	} else {
		t.UpdateOwnPresence(types.StatusAway)
	}
}

// IsOnline reports whether the user's last known status is online. Users
// never seen on the connection are offline.
func (t *Tracker) IsOnline(userID int) bool {
	entry, ok := t.Status(userID)
	return ok && entry.Status == types.StatusOnline
}

// Status returns the last known presence entry for a user. ok=false means no
// event has been received for the user, which callers treat as offline.
func (t *Tracker) Status(userID int) (types.PresenceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[userID]
	if !ok {
		return types.PresenceEntry{UserID: userID, Status: types.StatusOffline}, false
	}
	return entry, true
}

// Stats returns a snapshot for monitoring and debugging.
func (t *Tracker) Stats() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	online := 0
	for _, e := range t.entries {
		if e.Status == types.StatusOnline {
			online++
		}
	}
	return map[string]interface{}{
		"tracked": len(t.entries),
		"online":  online,
		"watched": len(t.watched),
	}
}

func (t *Tracker) handleUpdate(data json.RawMessage) {
	var payload types.PresenceUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.dropEvent(err)
		return
	}
	if err := payload.Validate(); err != nil {
		t.dropEvent(err)
		return
	}
	t.apply(payload)
}

func (t *Tracker) handleList(data json.RawMessage) {
	var payloads []types.PresenceUpdatePayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		t.dropEvent(err)
		return
	}
	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			t.dropEvent(err)
			continue
		}
		t.apply(p)
	}
}

// apply supersedes the entry for the payload's user. Events are applied in
// arrival order; the latest one wins for a given user.
func (t *Tracker) apply(p types.PresenceUpdatePayload) {
	t.mu.Lock()
	t.entries[p.UserID] = types.PresenceEntry{
		UserID:   p.UserID,
		Status:   p.Status,
		LastSeen: p.LastSeen,
	}
	t.mu.Unlock()

	t.metrics.IncPresence()
}

// handleStateChange resets the entry set on a fresh connection and
// repopulates it: own status goes online, watched users are re-requested.
func (t *Tracker) handleStateChange(state types.ConnectionState) {
	if state.Phase != types.PhaseConnected {
		return
	}

	t.mu.Lock()
	t.entries = make(map[int]types.PresenceEntry)
	watched := make([]int, 0, len(t.watched))
	for id := range t.watched {
		watched = append(watched, id)
	}
	t.mu.Unlock()

	t.UpdateOwnPresence(types.StatusOnline)
	if len(watched) > 0 {
		t.sendRequest(watched)
	}
}

func (t *Tracker) sendRequest(userIDs []int) {
	err := t.ch.Send(types.EventPresenceRequest, types.PresenceRequestPayload{UserIDs: userIDs})
	if err != nil {
		t.logger.Debug("presence request not sent", zap.Error(err))
	}
}

func (t *Tracker) dropEvent(err error) {
	t.metrics.IncDropped()
	t.logger.Warn("dropping malformed presence event", zap.Error(err))
}
