package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"classwire/internal/config"
	"classwire/internal/connection"
	"classwire/internal/logging"
	"classwire/internal/metrics"
	"classwire/internal/notify"
	"classwire/internal/presence"
	"classwire/internal/rooms"
	"classwire/internal/roster"
	"classwire/internal/transport"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// Deps are the caller-owned collaborators the realtime core plugs into.
// Identity and Sink are required; the rest degrade gracefully when nil.
type Deps struct {
	Identity  interfaces.Identity
	Users     interfaces.UserResolver
	View      interfaces.ViewContext
	Sink      interfaces.Sink
	Navigator interfaces.Navigator

	// ClassSource overrides the REST class source, mainly for tests.
	ClassSource interfaces.ClassSource
	// Transport overrides the WebSocket transport, mainly for tests.
	Transport interfaces.Transport
	// Registerer receives the prometheus collectors; nil disables metrics.
	Registerer prometheus.Registerer
}

// Client assembles the realtime core: one managed connection feeding the
// presence tracker, the room membership tracker, and the notification
// dispatcher, with the roster service driving room reconciliation.
type Client struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store      *roster.Store
	roster     *roster.Service
	manager    *connection.Manager
	presence   *presence.Tracker
	rooms      *rooms.Tracker
	dispatcher *notify.Dispatcher
	identity   interfaces.Identity

	started bool
}

// NewClient wires every component but opens nothing. Call Start to connect.
func NewClient(cfg *config.Config, deps Deps, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Identity == nil {
		return nil, fmt.Errorf("identity collaborator is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("notification sink is required")
	}
	logger = logging.OrNop(logger)

	var m *metrics.Metrics
	if deps.Registerer != nil {
		m = metrics.New(deps.Registerer)
	}

	tr := deps.Transport
	if tr == nil {
		tr = transport.NewWebSocket(transport.Options{
			PingInterval: cfg.Transport.PingInterval,
			ReadTimeout:  cfg.Transport.ReadTimeout,
			WriteTimeout: cfg.Transport.WriteTimeout,
			BufferSize:   cfg.Transport.BufferSize,
		}, logger.Named("transport"))
	}

	manager := connection.NewManager(tr, connection.Options{
		Endpoint:       cfg.Connection.Endpoint,
		Token:          cfg.Connection.Token,
		ConnectTimeout: cfg.Connection.ConnectTimeout,
		ReconnectDelay: cfg.Connection.ReconnectDelay,
		MaxAttempts:    uint(cfg.Connection.MaxAttempts),
	}, logger.Named("connection"), m)

	presenceTracker := presence.NewTracker(manager, deps.Identity, logger.Named("presence"), m)
	roomTracker := rooms.NewTracker(manager, deps.Identity, logger.Named("rooms"), m)

	source := deps.ClassSource
	var store *roster.Store
	if source == nil {
		var err error
		source, err = roster.NewHTTPClassSource(cfg.Roster.BaseURL, cfg.Connection.Token, cfg.Connection.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		store, err = roster.OpenStore(cfg.Roster.CachePath)
		if err != nil {
			return nil, err
		}
	}

	rosterSvc := roster.NewService(source, store, cfg.Roster.RefreshInterval,
		roomTracker.Reconcile, logger.Named("roster"))

	dispatcher, err := notify.NewDispatcher(
		manager, deps.Identity, deps.Users, rosterSvc,
		deps.View, deps.Sink, deps.Navigator,
		logger.Named("notify"), m)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	return &Client{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		store:      store,
		roster:     rosterSvc,
		manager:    manager,
		presence:   presenceTracker,
		rooms:      roomTracker,
		dispatcher: dispatcher,
		identity:   deps.Identity,
	}, nil
}

// Start connects for the current user and begins roster refreshes.
func (c *Client) Start(ctx context.Context) error {
	if c.started {
		return nil
	}
	userID := c.identity.CurrentUserID()
	if userID <= 0 {
		return connection.ErrNoIdentity
	}

	if err := c.manager.Connect(userID); err != nil {
		return err
	}
	c.roster.Start(ctx, userID)
	c.started = true

	c.logger.Info("realtime core started", zap.Int("user_id", userID))
	return nil
}

// Stop leaves all rooms, announces offline, and tears everything down.
// Idempotent.
func (c *Client) Stop() {
	if !c.started {
		return
	}
	c.started = false

	c.rooms.LeaveAll()
	c.presence.UpdateOwnPresence(types.StatusOffline)
	c.roster.Stop()
	c.manager.Disconnect()
	if c.store != nil {
		_ = c.store.Close()
	}

	c.logger.Info("realtime core stopped")
}

// HandleVisibilityChange fans a tab visibility change out to the connection
// manager (recovery) and the presence tracker (own status). Ignored once the
// client is stopped so a late visibility event cannot reconnect a logged-out
// user.
func (c *Client) HandleVisibilityChange(visible bool) {
	if !c.started {
		return
	}
	c.manager.HandleVisibilityChange(visible)
	c.presence.HandleVisibilityChange(visible)
}

// Connection returns the managed connection's event channel view.
func (c *Client) Connection() interfaces.EventChannel { return c.manager }

// Presence returns the presence tracker.
func (c *Client) Presence() *presence.Tracker { return c.presence }

// Rooms returns the room membership tracker.
func (c *Client) Rooms() *rooms.Tracker { return c.rooms }

// Roster returns the roster service.
func (c *Client) Roster() *roster.Service { return c.roster }

// State returns the current connection state.
func (c *Client) State() types.ConnectionState { return c.manager.State() }

// Reconnect forces a fresh connection attempt with a reset retry budget.
func (c *Client) Reconnect() error { return c.manager.Reconnect() }

// Stats aggregates component snapshots for monitoring and debugging.
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connection": c.manager.Stats(),
		"presence":   c.presence.Stats(),
		"rooms":      c.rooms.Stats(),
	}
}
