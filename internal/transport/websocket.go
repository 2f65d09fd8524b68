package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"classwire/internal/logging"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// frame is the wire envelope: every message is a named event with an
// optional JSON payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Options tunes the WebSocket transport.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions mirrors the config package defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

// WebSocket implements interfaces.Transport over gorilla/websocket.
type WebSocket struct {
	opts   Options
	logger *zap.Logger
}

// NewWebSocket creates the production transport. A nil logger disables
// transport logging.
func NewWebSocket(opts Options, logger *zap.Logger) *WebSocket {
	if opts.PingInterval <= 0 {
		opts = DefaultOptions()
	}
	return &WebSocket{opts: opts, logger: logging.OrNop(logger)}
}

// Open dials the endpoint carrying the user identity as query metadata and
// returns a live connection. The caller's context bounds the handshake.
func (t *WebSocket) Open(ctx context.Context, endpoint string, meta interfaces.ConnectionMetadata) (interfaces.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %s: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("user_id", strconv.Itoa(meta.UserID))
	if meta.Token != "" {
		q.Set("token", meta.Token)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", u.Host, err)
	}

	c := newConn(ws, t.opts, t.logger)
	c.logger.Debug("connection opened",
		zap.String("conn_id", c.id),
		zap.Int("user_id", meta.UserID),
	)
	return c, nil
}

// Conn wraps one WebSocket connection. Writes are serialized through a single
// writer goroutine; handlers are dispatched from a single reader goroutine so
// event processing preserves arrival order.
type Conn struct {
	id      string
	ws      *websocket.Conn
	opts    Options
	logger  *zap.Logger
	writeCh chan []byte

	mu       sync.RWMutex
	handlers map[string][]interfaces.EventHandler

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, opts Options, logger *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:       uuid.New().String(),
		ws:       ws,
		opts:     opts,
		logger:   logger,
		writeCh:  make(chan []byte, opts.BufferSize),
		handlers: make(map[string][]interfaces.EventHandler),
		ctx:      ctx,
		cancel:   cancel,
	}

	go c.writeLoop()
	go c.pingLoop()

	return c
}

// Start launches the read loop. Reading is deferred until the consumer has
// bound its handlers; frames arriving before Start stay queued in the socket
// instead of being consumed unseen.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

// ID returns the per-dial connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Send encodes the event as a frame and queues it for the writer goroutine.
func (c *Conn) Send(event string, payload interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}

	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return ErrInvalidJSON
		}
		data = encoded
	}

	raw, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- raw:
		return nil
	case <-time.After(c.opts.WriteTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnClosed
	}
}

// On registers a handler for a named event.
func (c *Conn) On(event string, handler interfaces.EventHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.mu.Unlock()
}

// Close tears down the connection exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) emit(event string, data json.RawMessage) {
	c.mu.RLock()
	hs := make([]interfaces.EventHandler, len(c.handlers[event]))
	copy(hs, c.handlers[event])
	c.mu.RUnlock()

	for _, h := range hs {
		h(data)
	}
}

func (c *Conn) readLoop() {
	c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				// Local close; no disconnect event.
			default:
				c.logger.Debug("read failed", zap.String("conn_id", c.id), zap.Error(err))
				c.emit(types.EventDisconnect, nil)
			}
			c.Close()
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			c.logger.Warn("dropping unparseable frame", zap.String("conn_id", c.id))
			continue
		}
		c.emit(f.Event, f.Data)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case raw := <-c.writeCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.logger.Debug("write failed", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
