package roster

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"classwire/internal/logging"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// UpdateFunc receives the class IDs of the latest roster whenever it changes
// hands, cache hit and live fetch alike.
type UpdateFunc func(classIDs []int)

// Service keeps the current user's class list fresh: it seeds from the local
// cache, then polls the class source on an interval. The latest roster also
// answers class-name lookups for notifications.
type Service struct {
	source   interfaces.ClassSource
	store    *Store
	interval time.Duration
	onUpdate UpdateFunc
	logger   *zap.Logger

	mu      sync.RWMutex
	current map[int]string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a roster service. store may be nil to disable caching;
// onUpdate may be nil when no consumer needs roster changes pushed.
func NewService(source interfaces.ClassSource, store *Store, interval time.Duration, onUpdate UpdateFunc, logger *zap.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		source:   source,
		store:    store,
		interval: interval,
		onUpdate: onUpdate,
		logger:   logging.OrNop(logger),
		current:  make(map[int]string),
	}
}

// Start seeds the roster from the cache, performs an initial fetch, and
// begins the refresh loop. Call Stop to end the loop.
func (s *Service) Start(ctx context.Context, userID int) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	if s.store != nil {
		if cached, err := s.store.LoadClasses(userID); err != nil {
			s.logger.Warn("roster cache unavailable", zap.Error(err))
		} else if len(cached) > 0 {
			s.apply(cached, false, userID)
			s.logger.Info("roster seeded from cache", zap.Int("classes", len(cached)))
		}
	}

	s.refresh(ctx, userID)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx, userID)
			}
		}
	}()
}

// Stop ends the refresh loop and waits for it to exit. Idempotent.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// Classes returns the latest known class list, ordered by ID.
func (s *Service) Classes() []types.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Class, 0, len(s.current))
	for id, name := range s.current {
		out = append(out, types.Class{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClassIDs returns the latest known class IDs, ordered ascending.
func (s *Service) ClassIDs() []int {
	classes := s.Classes()
	ids := make([]int, len(classes))
	for i, c := range classes {
		ids[i] = c.ID
	}
	return ids
}

// ResolveClass returns the display name of a class from the latest roster.
func (s *Service) ResolveClass(classID int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.current[classID]
	return name, ok
}

// refresh pulls a fresh class list. On failure the previous roster stays in
// effect; a stale list beats an empty one.
func (s *Service) refresh(ctx context.Context, userID int) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	classes, err := s.source.FetchClasses(fetchCtx, userID)
	if err != nil {
		s.logger.Warn("class list fetch failed, keeping previous roster", zap.Error(err))
		return
	}

	s.apply(classes, true, userID)
	s.logger.Debug("roster refreshed", zap.Int("classes", len(classes)))
}

// apply installs a roster, persists it when it came from a live fetch, and
// notifies the update consumer.
func (s *Service) apply(classes []types.Class, persist bool, userID int) {
	next := make(map[int]string, len(classes))
	ids := make([]int, 0, len(classes))
	for _, c := range classes {
		next[c.ID] = c.Name
		ids = append(ids, c.ID)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if persist && s.store != nil {
		if err := s.store.SaveClasses(userID, classes); err != nil {
			s.logger.Warn("failed to persist roster cache", zap.Error(err))
		}
	}

	if s.onUpdate != nil {
		s.onUpdate(ids)
	}
}
