package tablesync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/courtside/internal/pubsub"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

type call struct {
	method string
	path   string
	opts   types.RequestOptions
}

type handlerFunc func(ctx context.Context, method, path string, opts types.RequestOptions) (*types.Response, error)

// fakeClient records calls and answers through handle.
type fakeClient struct {
	mu     sync.Mutex
	calls  []call
	handle handlerFunc
}

func (f *fakeClient) do(ctx context.Context, method, path string, opts types.RequestOptions) (*types.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, path: path, opts: opts})
	h := f.handle
	f.mu.Unlock()
	if h == nil {
		return &types.Response{Status: 200, Data: json.RawMessage(`[]`)}, nil
	}
	return h(ctx, method, path, opts)
}

func (f *fakeClient) Get(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return f.do(ctx, "GET", path, opts)
}

func (f *fakeClient) Post(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return f.do(ctx, "POST", path, opts)
}

func (f *fakeClient) Put(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return f.do(ctx, "PUT", path, opts)
}

func (f *fakeClient) Patch(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return f.do(ctx, "PATCH", path, opts)
}

func (f *fakeClient) Delete(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return f.do(ctx, "DELETE", path, opts)
}

func (f *fakeClient) setHandler(h handlerFunc) {
	f.mu.Lock()
	f.handle = h
	f.mu.Unlock()
}

func (f *fakeClient) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// reply returns a handler that serves body for GET and echo for writes.
func reply(get string, write string) handlerFunc {
	return func(_ context.Context, method, _ string, _ types.RequestOptions) (*types.Response, error) {
		if method == "GET" {
			return &types.Response{Status: 200, Data: json.RawMessage(get)}, nil
		}
		return &types.Response{Status: 200, Data: json.RawMessage(write)}, nil
	}
}

func failing(err error) handlerFunc {
	return func(context.Context, string, string, types.RequestOptions) (*types.Response, error) {
		return nil, err
	}
}

type notice struct {
	level types.NoticeLevel
	msg   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(level types.NoticeLevel, msg string) {
	n.mu.Lock()
	n.notices = append(n.notices, notice{level: level, msg: msg})
	n.mu.Unlock()
}

func (n *recordingNotifier) at(level types.NoticeLevel) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, x := range n.notices {
		if x.level == level {
			out = append(out, x.msg)
		}
	}
	return out
}

type recordingMetrics struct {
	mu        sync.Mutex
	fetches   []string
	mutations []string
	fallbacks int
	pushes    []string
}

func (m *recordingMetrics) ObserveFetch(_, outcome string, _ time.Duration) {
	m.mu.Lock()
	m.fetches = append(m.fetches, outcome)
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveMutation(_, op, outcome string) {
	m.mu.Lock()
	m.mutations = append(m.mutations, op+":"+outcome)
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveCacheFallback(string) {
	m.mu.Lock()
	m.fallbacks++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObservePush(_, kind string) {
	m.mu.Lock()
	m.pushes = append(m.pushes, kind)
	m.mu.Unlock()
}

// fakeTransport delivers events through a pubsub.Hub with a settable
// connection flag.
type fakeTransport struct {
	*pubsub.Hub
	mu        sync.Mutex
	connected bool
}

func newFakeTransport(connected bool) *fakeTransport {
	return &fakeTransport{Hub: pubsub.NewHub(), connected: connected}
}

func (f *fakeTransport) Send(context.Context, string, any) error { return nil }

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) push(t *testing.T, topic, kind, data string) {
	t.Helper()
	f.Emit(topic, types.Payload(`{"type":"`+kind+`","data":`+data+`}`))
}

var errBackendDown = errors.New("dial tcp: connection refused")

func names(records []types.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i], _ = r["name"].(string)
	}
	return out
}

func mustCollection(t *testing.T, client types.RESTClient, opts Options) *Collection {
	t.Helper()
	if opts.Endpoint == "" {
		opts.Endpoint = "/teams"
	}
	if opts.Resource == "" {
		opts.Resource = "teams"
	}
	c, err := New(client, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
