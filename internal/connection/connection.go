package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/voice-widget/internal/device"
	"github.com/eleven-am/voice-widget/internal/metrics"
	"github.com/eleven-am/voice-widget/internal/protocol"
	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	DefaultBaseURL           = "wss://api.elevenlabs.io/v1/convai/conversation"
	DefaultSignedURLEndpoint = "https://api.elevenlabs.io/v1/convai/conversation/get_signed_url"

	writeWait      = 10 * time.Second
	closeWait      = time.Second
	maxMessageSize = 4 * 1024 * 1024
)

type Config struct {
	AgentID           string
	APIKey            string
	BaseURL           string
	SignedURLEndpoint string
	DeviceClass       device.Class
	ConnectTimeout    time.Duration
	Backoff           shared.BackoffConfig
	Init              protocol.InitOverrides
	HTTPClient        *http.Client
	Dialer            *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.SignedURLEndpoint == "" {
		c.SignedURLEndpoint = DefaultSignedURLEndpoint
	}
	if c.DeviceClass == "" {
		c.DeviceClass = device.ClassDesktop
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = time.Second
	}
	if c.Backoff.MaxAttempts <= 0 {
		c.Backoff.MaxAttempts = c.DeviceClass.MaxReconnectAttempts()
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.ConnectTimeout}
	}
	if c.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = c.ConnectTimeout
		c.Dialer = &d
	}
	return c
}

type Callbacks struct {
	OnStateChange func(State)
	OnEvent       func(protocol.Event)
	OnError       func(error)
}

// Connection owns the duplex socket to the conversation endpoint and is the
// only writer of its State. Callbacks run in order on a private goroutine.
type Connection struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	events  *dispatcher

	mu         sync.Mutex
	state      State
	retries    int
	gen        uint64
	base       context.Context
	ws         *websocket.Conn
	cancel     context.CancelFunc
	retryTimer *time.Timer
	callbacks  Callbacks

	writeMu sync.Mutex
}

func New(cfg Config, m *metrics.Metrics, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Connection{
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "connection"),
		metrics: m,
		events:  newDispatcher(),
		state:   StateDisconnected,
		base:    context.Background(),
	}
}

func (c *Connection) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// MaxRetries is the configured ceiling, or the device class ceiling when
// none was set.
func (c *Connection) MaxRetries() int {
	return c.cfg.Backoff.MaxAttempts
}

// Connect starts an attempt unless one is in flight or the socket is open.
// Once the retry ceiling is hit it fails until Reset is called.
func (c *Connection) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting, StateOpen, StateClosing:
		return nil
	case StateFailedPermanently:
		return shared.ErrFailedPermanently
	}

	c.base = context.WithoutCancel(ctx)
	c.stopRetryTimerLocked()
	c.startAttemptLocked()
	return nil
}

// Reset clears the retry counter, any pending reconnect and the permanent
// failure flag.
func (c *Connection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopRetryTimerLocked()
	c.retries = 0
	if c.state == StateFailedPermanently {
		c.setStateLocked(StateDisconnected)
	}
}

// Close tears the session down without scheduling a retry.
func (c *Connection) Close() {
	c.mu.Lock()
	c.gen++
	c.stopRetryTimerLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	ws := c.ws
	c.ws = nil

	if ws == nil {
		if c.state != StateFailedPermanently {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return
	}

	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	c.writeMu.Unlock()
	ws.Close()

	c.mu.Lock()
	if c.state == StateClosing {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	c.log.Info("connection closed by client")
}

// Shutdown closes the session and stops callback delivery.
func (c *Connection) Shutdown() {
	c.Close()
	c.events.stop()
}

// Send writes v as JSON. Anything sent while the session is not open is
// dropped.
func (c *Connection) Send(v any) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()

	if state != StateOpen || ws == nil {
		c.metrics.SendDropped.Inc()
		c.log.Warn("dropping outbound message, session not open", "state", state)
		return shared.ErrNotOpen
	}
	return c.write(ws, v)
}

func (c *Connection) write(ws *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: write: %v", shared.ErrTransport, err)
	}
	c.metrics.MessagesSent.Inc()
	return nil
}

func (c *Connection) startAttemptLocked() {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	go c.attempt(ctx, gen)
}

func (c *Connection) attempt(ctx context.Context, gen uint64) {
	start := time.Now()
	c.metrics.ConnectAttempts.Inc()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	target, err := c.resolveURL(ctx)
	if err != nil {
		c.fail(gen, "endpoint", err)
		return
	}

	ws, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		cause := "transport"
		if isTimeout(ctx, err) {
			cause = "timeout"
		}
		c.fail(gen, cause, fmt.Errorf("%w: dial: %v", shared.ErrTransport, err))
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.retries = 0
	c.setStateLocked(StateOpen)
	// The initiation record goes out before any Send can reach the socket.
	c.writeMu.Lock()
	c.mu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	err = ws.WriteJSON(protocol.NewInitiation(c.cfg.Init))
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("failed to send initiation", "error", err)
	} else {
		c.metrics.MessagesSent.Inc()
	}

	c.metrics.ConnectLatency.Observe(time.Since(start).Seconds())
	c.log.Info("connection open", "agent_id", c.cfg.AgentID, "took", time.Since(start))

	c.readLoop(ws, gen)
}

// isTimeout reports whether a dial failed on the establishment deadline. The
// dialer's handshake timer can fire just before ctx expires.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Connection) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.closed(ws, gen, err)
			return
		}

		ev, err := protocol.Parse(data)
		if err != nil {
			c.metrics.MalformedMessages.Inc()
			c.log.Warn("ignoring inbound message", "error", err, "size", len(data))
			continue
		}
		c.metrics.MessagesReceived.WithLabelValues(string(ev.Type())).Inc()

		if ping, ok := ev.(protocol.PingEvent); ok {
			if err := c.write(ws, protocol.NewPong(ping.EventID)); err != nil {
				c.log.Warn("pong failed", "event_id", ping.EventID, "error", err)
			}
		}

		c.mu.Lock()
		if gen == c.gen && c.callbacks.OnEvent != nil {
			onEvent := c.callbacks.OnEvent
			c.events.push(func() { onEvent(ev) })
		}
		c.mu.Unlock()
	}
}

// closed handles the end of an open socket. A normal closure code ends the
// session; anything else is a failed attempt.
func (c *Connection) closed(ws *websocket.Conn, gen uint64, err error) {
	ws.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.ws = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.log.Info("connection closed by server")
		c.setStateLocked(StateDisconnected)
		return
	}

	c.log.Warn("connection lost", "error", err)
	c.failLocked("closed", fmt.Errorf("%w: %v", shared.ErrTransport, err))
}

func (c *Connection) fail(gen uint64, cause string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.cancel = nil
	c.log.Warn("connection attempt failed", "cause", cause, "error", err)
	c.failLocked(cause, err)
}

func (c *Connection) failLocked(cause string, err error) {
	c.metrics.ConnectFailures.WithLabelValues(cause).Inc()
	c.retries++

	ceiling := c.MaxRetries()
	if c.retries > ceiling {
		c.metrics.PermanentFailure.Inc()
		c.setStateLocked(StateFailedPermanently)
		c.log.Error("giving up on connection", "attempts", c.retries, "error", err)
		c.emitErrorLocked(fmt.Errorf("%w after %d attempts: %v", shared.ErrRetriesExhausted, c.retries, err))
		return
	}

	c.setStateLocked(StateDisconnected)

	delay := c.cfg.Backoff.Delay(c.retries)
	gen := c.gen
	c.stopRetryTimerLocked()
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(gen) })
	c.log.Info("reconnect scheduled", "attempt", c.retries, "max", ceiling, "delay", delay)
}

func (c *Connection) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateDisconnected {
		return
	}
	c.retryTimer = nil
	c.startAttemptLocked()
}

func (c *Connection) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.ConnectionState.Set(float64(s))
	if cb := c.callbacks.OnStateChange; cb != nil {
		c.events.push(func() { cb(s) })
	}
}

func (c *Connection) emitErrorLocked(err error) {
	if cb := c.callbacks.OnError; cb != nil {
		c.events.push(func() { cb(err) })
	}
}
