package pubsub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Frame is the wire format of every WebSocket message in both directions.
type Frame struct {
	Event   string        `json:"event"`
	Payload types.Payload `json:"payload,omitempty"`
}

// Backoff controls reconnection after the connection drops. Attempt n waits
// BaseDelay * 2^(n-1), capped at MaxDelay.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultBackoff retries five times between one and thirty seconds apart.
var DefaultBackoff = Backoff{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// Delay returns the wait before the given attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// Option configures a Transport.
type Option func(*Transport)

// WithToken sends a bearer token with the WebSocket handshake.
func WithToken(token string) Option {
	return func(t *Transport) {
		if token != "" {
			t.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithBackoff replaces DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(t *Transport) { t.backoff = b }
}

// WithLogger sets the transport logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// Transport is a WebSocket connection that delivers inbound frames to a Hub
// and reconnects on its own. It implements types.Transport.
type Transport struct {
	url     string
	hub     *Hub
	dialer  *websocket.Dialer
	header  http.Header
	backoff Backoff
	log     zerolog.Logger

	connected atomic.Bool
	writeMu   sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a disconnected transport for url.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:     url,
		hub:     NewHub(),
		dialer:  websocket.DefaultDialer,
		header:  make(http.Header),
		backoff: DefaultBackoff,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// On registers fn for event. Lifecycle events are delivered the same way
// as server events.
func (t *Transport) On(event string, fn func(payload types.Payload)) func() {
	return t.hub.On(event, fn)
}

// Connected reports whether the connection is up.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// Connect dials the server and starts reading. A failed first dial is
// returned and not retried. Connecting an already running transport is a
// no-op.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	running := t.cancel != nil
	t.mu.Unlock()
	if running {
		return nil
	}

	conn, err := t.dial(ctx)
	if err != nil {
		t.emit(types.EventConnectionError, types.ConnectionError{Attempt: 0, Error: err.Error()})
		return fmt.Errorf("connecting to %s: %w", t.url, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	t.setConnected(true)
	t.log.Info().Str("url", t.url).Msg("push channel connected")
	go t.run(runCtx, conn, done)
	return nil
}

// Disconnect closes the connection and stops reconnection.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	cancel, conn, done := t.cancel, t.conn, t.done
	t.cancel, t.conn, t.done = nil, nil, nil
	if cancel == nil {
		t.mu.Unlock()
		return nil
	}
	// Cancelled under mu so a reconnect cannot install a conn after this.
	cancel()
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		conn.Close()
	}
	<-done
	t.setConnected(false)
	t.log.Info().Msg("push channel disconnected")
	return nil
}

// Send publishes payload under event. It fails with types.ErrNotConnected
// while the connection is down.
func (t *Transport) Send(ctx context.Context, event string, payload any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || !t.Connected() {
		return types.ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", event, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (t *Transport) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		t.read(conn)
		t.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		t.log.Warn().Msg("push channel lost, reconnecting")
		if conn = t.reconnect(ctx); conn == nil {
			t.release(done)
			return
		}
	}
}

// release forgets the run that owns done so a later Connect dials again.
// It does nothing when Disconnect or another Connect already took over.
func (t *Transport) release(done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != done {
		return
	}
	t.cancel()
	t.cancel, t.conn, t.done = nil, nil, nil
}

func (t *Transport) read(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.log.Debug().Err(err).Msg("read loop ended")
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			t.log.Warn().Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}
		t.hub.Emit(f.Event, f.Payload)
	}
}

// reconnect dials with backoff until it succeeds, retries run out or ctx is
// cancelled. It returns nil when it gives up.
func (t *Transport) reconnect(ctx context.Context) *websocket.Conn {
	for attempt := 1; attempt <= t.backoff.MaxRetries; attempt++ {
		timer := time.NewTimer(t.backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := t.dial(ctx)
		if err != nil {
			t.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			t.emit(types.EventConnectionError, types.ConnectionError{Attempt: attempt, Error: err.Error()})
			continue
		}

		t.mu.Lock()
		if ctx.Err() != nil || t.cancel == nil {
			t.mu.Unlock()
			conn.Close()
			return nil
		}
		t.conn = conn
		t.mu.Unlock()

		t.setConnected(true)
		t.emit(types.EventReconnected, types.Reconnected{Attempt: attempt})
		t.log.Info().Int("attempt", attempt).Msg("push channel reconnected")
		return conn
	}
	t.log.Error().Int("max_retries", t.backoff.MaxRetries).Msg("giving up on push channel")
	return nil
}

func (t *Transport) setConnected(v bool) {
	if t.connected.Swap(v) != v {
		t.emit(types.EventConnectionStatus, types.ConnectionStatus{Connected: v})
	}
}

func (t *Transport) emit(event string, v any) {
	if err := t.hub.EmitValue(event, v); err != nil {
		t.log.Error().Err(err).Str("event", event).Msg("encoding lifecycle event")
	}
}

var _ types.Transport = (*Transport)(nil)
