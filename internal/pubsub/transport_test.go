package pubsub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// wsServer accepts WebSocket connections and records inbound frames.
type wsServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []Frame
	headers  []http.Header
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if json.Unmarshal(data, &f) == nil {
			s.mu.Lock()
			s.received = append(s.received, f)
			s.mu.Unlock()
		}
	}
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsServer) last() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[len(s.conns)-1]
}

func (s *wsServer) push(t *testing.T, event, payload string) {
	t.Helper()
	frame := `{"event":"` + event + `","payload":` + payload + `}`
	require.NoError(t, s.last().WriteMessage(websocket.TextMessage, []byte(frame)))
}

// events collects payloads per event name.
type events struct {
	mu  sync.Mutex
	got map[string][]string
}

func record(tr *Transport, names ...string) *events {
	e := &events{got: make(map[string][]string)}
	for _, name := range names {
		tr.On(name, func(p types.Payload) {
			e.mu.Lock()
			e.got[name] = append(e.got[name], string(p))
			e.mu.Unlock()
		})
	}
	return e
}

func (e *events) of(name string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.got[name]...)
}

func fastBackoff(retries int) Backoff {
	return Backoff{MaxRetries: retries, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}
}

func TestTransportDeliversServerEventsToAllSubscribers(t *testing.T) {
	srv := newWSServer(t)
	tr := New(srv.url(), WithBackoff(fastBackoff(1)))
	ev := record(tr, "teams", types.EventConnectionStatus)
	second := record(tr, "teams")

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect() })
	require.True(t, tr.Connected())
	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.push(t, "teams", `{"type":"create","data":{"id":1}}`)

	require.Eventually(t, func() bool { return len(ev.of("teams")) == 1 && len(second.of("teams")) == 1 },
		time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"create","data":{"id":1}}`, ev.of("teams")[0])
	assert.Equal(t, []string{`{"connected":true}`}, ev.of(types.EventConnectionStatus))
}

func TestTransportSend(t *testing.T) {
	srv := newWSServer(t)
	tr := New(srv.url(), WithToken("s3cret"))

	err := tr.Send(context.Background(), "subscribe", map[string]string{"topic": "teams"})
	assert.ErrorIs(t, err, types.ErrNotConnected)

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect() })
	require.NoError(t, tr.Send(context.Background(), "subscribe", map[string]string{"topic": "teams"}))

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.received) == 1
	}, time.Second, 5*time.Millisecond)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "subscribe", srv.received[0].Event)
	assert.JSONEq(t, `{"topic":"teams"}`, string(srv.received[0].Payload))
	assert.Equal(t, "Bearer s3cret", srv.headers[0].Get("Authorization"))
}

func TestTransportReconnects(t *testing.T) {
	srv := newWSServer(t)
	tr := New(srv.url(), WithBackoff(fastBackoff(3)))
	ev := record(tr, types.EventConnectionStatus, types.EventReconnected)

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect() })
	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.last().Close()

	require.Eventually(t, func() bool { return len(ev.of(types.EventReconnected)) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"attempt":1}`, ev.of(types.EventReconnected)[0])
	assert.Equal(t, []string{`{"connected":true}`, `{"connected":false}`, `{"connected":true}`}, ev.of(types.EventConnectionStatus))
	assert.True(t, tr.Connected())
	assert.Equal(t, 2, srv.connCount())
}

func TestTransportGivesUpAfterMaxRetries(t *testing.T) {
	srv := newWSServer(t)
	tr := New(srv.url(), WithBackoff(fastBackoff(2)))
	ev := record(tr, types.EventConnectionError)

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect() })
	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.Close()
	srv.last().Close()

	require.Eventually(t, func() bool { return len(ev.of(types.EventConnectionError)) == 2 }, 2*time.Second, 5*time.Millisecond)
	errs := ev.of(types.EventConnectionError)
	assert.Contains(t, errs[0], `"attempt":1`)
	assert.Contains(t, errs[1], `"attempt":2`)
	assert.False(t, tr.Connected())
}

func (t *Transport) running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func TestTransportConnectAfterGivingUp(t *testing.T) {
	srv := newWSServer(t)
	tr := New(srv.url(), WithBackoff(fastBackoff(1)))
	ev := record(tr, types.EventConnectionError)

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect() })
	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.Close()
	srv.last().Close()
	require.Eventually(t, func() bool { return len(ev.of(types.EventConnectionError)) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !tr.running() }, time.Second, 5*time.Millisecond)

	next := newWSServer(t)
	tr.url = next.url()
	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, tr.Connected())
	require.Eventually(t, func() bool { return next.connCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTransportDisconnectWhileReconnecting(t *testing.T) {
	// Every connection is dropped right after the handshake, so the
	// transport spends its time redialling.
	var (
		upgrader websocket.Upgrader
		mu       sync.Mutex
		accepted int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepted++
		mu.Unlock()
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	flapping := func() int {
		mu.Lock()
		defer mu.Unlock()
		return accepted
	}

	for i := 0; i < 10; i++ {
		tr := New("ws"+strings.TrimPrefix(srv.URL, "http"),
			WithBackoff(Backoff{MaxRetries: 1000, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
		require.NoError(t, tr.Connect(context.Background()))
		before := flapping()
		require.Eventually(t, func() bool { return flapping() > before+2 }, 2*time.Second, time.Millisecond)

		stopped := make(chan struct{})
		go func() {
			tr.Disconnect()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("Disconnect did not return")
		}
		assert.False(t, tr.Connected())
		assert.False(t, tr.running())
	}
}

func TestTransportConnectFailure(t *testing.T) {
	tr := New("ws://127.0.0.1:1/ws")
	ev := record(tr, types.EventConnectionError)

	err := tr.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, tr.Connected())
	assert.Len(t, ev.of(types.EventConnectionError), 1)
	assert.NoError(t, tr.Disconnect(), "disconnecting a never-connected transport is a no-op")
}

func TestTransportDisconnectEmitsStatus(t *testing.T) {
	srv := newWSServer(t)
	tr := New(srv.url())
	ev := record(tr, types.EventConnectionStatus)

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Disconnect())

	assert.False(t, tr.Connected())
	assert.Equal(t, []string{`{"connected":true}`, `{"connected":false}`}, ev.of(types.EventConnectionStatus))
	assert.ErrorIs(t, tr.Send(context.Background(), "x", nil), types.ErrNotConnected)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 5, want: 16 * time.Second},
		{attempt: 6, want: 30 * time.Second},
		{attempt: 20, want: 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}
