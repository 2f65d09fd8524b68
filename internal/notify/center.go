package notify

import (
	"sort"
	"sync"

	"classwire/pkg/types"
)

// Center is an in-process notification surface that collapses notifications
// by dedup key: a second delivery with the same key replaces the first
// instead of stacking next to it. An optional forward callback mirrors each
// delivery to a real platform surface.
type Center struct {
	mu      sync.Mutex
	active  map[string]*types.Notification
	forward func(*types.Notification)
}

// NewCenter returns a center that forwards each accepted notification to fn.
// fn may be nil when the center is used purely as a holding area.
func NewCenter(fn func(*types.Notification)) *Center {
	return &Center{
		active:  make(map[string]*types.Notification),
		forward: fn,
	}
}

// Deliver accepts a notification, replacing any active one with the same
// dedup key. Implements the notification sink contract.
func (c *Center) Deliver(n *types.Notification) {
	if n == nil {
		return
	}

	c.mu.Lock()
	c.active[n.DedupKey] = n
	fn := c.forward
	c.mu.Unlock()

	if fn != nil {
		fn(n)
	}
}

// Dismiss removes the active notification for a dedup key, if any.
func (c *Center) Dismiss(dedupKey string) {
	c.mu.Lock()
	delete(c.active, dedupKey)
	c.mu.Unlock()
}

// DismissAll clears every active notification.
func (c *Center) DismissAll() {
	c.mu.Lock()
	c.active = make(map[string]*types.Notification)
	c.mu.Unlock()
}

// Active returns the active notifications ordered by dedup key.
func (c *Center) Active() []*types.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.active))
	for k := range c.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*types.Notification, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.active[k])
	}
	return out
}

// Count returns the number of active notifications.
func (c *Center) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
