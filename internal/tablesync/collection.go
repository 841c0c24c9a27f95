// Package tablesync keeps a local copy of a remote REST collection in step
// with the server: initial load with cache fallback, CRUD, scheduled refresh
// and push deltas.
package tablesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// DefaultPageSize is used for server-side pagination when Options.PageSize
// is zero.
const DefaultPageSize = 25

// Mutation labels reported to the metrics recorder.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpBulkDelete = "bulk_delete"
	OpBulkUpdate = "bulk_update"
)

var errAlreadyStarted = errors.New("collection already started")

// Options configures a Collection. Endpoint is required; everything else is
// optional.
type Options struct {
	// Resource labels logs, metrics, notifications and export file names.
	Resource string

	// Endpoint is the collection path relative to the REST client base URL.
	Endpoint string

	// CacheKey enables the persistent cache when set together with Storage.
	CacheKey string
	Storage  types.Storage

	// Transport and Topic enable push updates.
	Transport types.Transport
	Topic     string

	// ServerSide delegates pagination to the backend. Mutations refetch
	// instead of patching local data.
	ServerSide bool
	PageSize   int

	// PollSpec is a cron schedule for periodic refresh. Empty disables polling.
	PollSpec string

	Notifier types.Notifier
	Metrics  types.MetricsRecorder
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Snapshot is a point-in-time copy of collection state.
type Snapshot struct {
	Data       []types.Record
	TotalCount int
	Loading    bool
	Err        error
	LastFetch  time.Time

	// Stale is set when a fetch failed and cached data is shown instead.
	Stale bool

	// FromCache is set while Data came from the cache rather than a fetch.
	FromCache bool
}

// Collection mirrors one remote resource. Methods are safe for concurrent
// use; the state lock is never held across network calls.
type Collection struct {
	client types.RESTClient
	opts   Options
	log    zerolog.Logger
	cache  *cache
	now    func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	data         []types.Record
	total        int
	inflight     int
	err          error
	lastFetch    time.Time
	stale        bool
	fromCache    bool
	params       map[string]string
	gen          uint64
	started      bool
	closed       bool
	disconnected bool
	unsubs       []func()
	poller       *cron.Cron
}

// New creates a collection over client. The collection does nothing until
// Start or Fetch is called.
func New(client types.RESTClient, opts Options) (*Collection, error) {
	if client == nil {
		return nil, errors.New("tablesync: nil REST client")
	}
	if opts.Endpoint == "" {
		return nil, errors.New("tablesync: endpoint must not be empty")
	}
	if opts.PollSpec != "" {
		if _, err := cron.ParseStandard(opts.PollSpec); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrPollSpecInvalid, err)
		}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Resource == "" {
		opts.Resource = opts.Endpoint
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log = log.With().Str("resource", opts.Resource).Logger()
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	base, cancel := context.WithCancel(context.Background())
	return &Collection{
		client: client,
		opts:   opts,
		log:    log,
		cache:  newCache(opts.Storage, opts.CacheKey, log),
		now:    now,
		base:   base,
		cancel: cancel,
	}, nil
}

// Start seeds data from the cache, subscribes to push updates, starts the
// poller and performs the initial fetch. The returned error is the fetch
// error; the collection stays usable either way.
func (c *Collection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrCollectionClosed
	}
	if c.started {
		c.mu.Unlock()
		return errAlreadyStarted
	}
	c.started = true
	if entry, ok := c.cache.read(); ok {
		c.data = entry.Data
		c.total = entry.Metadata.Total
		c.fromCache = true
	}
	c.mu.Unlock()

	c.subscribe()
	if err := c.startPoller(); err != nil {
		return err
	}
	return c.Fetch(ctx, nil)
}

func (c *Collection) subscribe() {
	t := c.opts.Transport
	if t == nil {
		return
	}
	var unsubs []func()
	if c.opts.Topic != "" {
		unsubs = append(unsubs, t.On(c.opts.Topic, c.handlePush))
	}
	unsubs = append(unsubs, t.On(types.EventConnectionStatus, c.handleConnectionStatus))

	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubs...)
	c.mu.Unlock()
}

func (c *Collection) startPoller() error {
	if c.opts.PollSpec == "" {
		return nil
	}
	cl := cronLogger{log: c.log}
	p := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := p.AddFunc(c.opts.PollSpec, func() {
		if err := c.Refresh(c.base); err != nil && !errors.Is(err, types.ErrSuperseded) {
			c.log.Debug().Err(err).Msg("scheduled refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("%w: %v", types.ErrPollSpecInvalid, err)
	}
	c.mu.Lock()
	c.poller = p
	c.mu.Unlock()
	p.Start()
	return nil
}

// Close unsubscribes from the transport, stops polling and cancels requests
// the collection started. Later calls return ErrCollectionClosed.
func (c *Collection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubs := c.unsubs
	c.unsubs = nil
	poller := c.poller
	c.poller = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.cancel()
	if poller != nil {
		<-poller.Stop().Done()
	}
	c.wg.Wait()
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Collection) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Data:       types.CloneRecords(c.data),
		TotalCount: c.total,
		Loading:    c.inflight > 0,
		Err:        c.err,
		LastFetch:  c.lastFetch,
		Stale:      c.stale,
		FromCache:  c.fromCache,
	}
}

// Fetch loads the collection with params. On success data is replaced and
// the cache overwritten. On failure the cache, when present, replaces data
// and a single warning is emitted; otherwise an error notification is
// emitted and data is left as it was. A response overtaken by a later fetch
// is dropped and ErrSuperseded returned.
func (c *Collection) Fetch(ctx context.Context, params map[string]string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrCollectionClosed
	}
	c.gen++
	gen := c.gen
	c.inflight++
	c.params = cloneParams(params)
	c.mu.Unlock()

	start := c.now()
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	records, total, err := c.get(ctx, c.query(params))
	elapsed := c.now().Sub(start)

	var (
		entry CacheEntry
		hit   bool
	)
	if err != nil {
		entry, hit = c.cache.read()
	}

	c.mu.Lock()
	c.inflight--
	if gen != c.gen {
		c.mu.Unlock()
		c.opts.Metrics.ObserveFetch(c.opts.Resource, types.OutcomeStale, elapsed)
		c.log.Debug().Uint64("generation", gen).Msg("discarding superseded response")
		return types.ErrSuperseded
	}
	if err == nil {
		c.data = records
		c.total = total
		c.err = nil
		c.stale = false
		c.fromCache = false
		c.lastFetch = c.now()
		cached, at := append([]types.Record(nil), records...), c.lastFetch
		c.mu.Unlock()
		c.cache.write(gen, cached, total, cloneParams(params), at)
		c.opts.Metrics.ObserveFetch(c.opts.Resource, types.OutcomeSuccess, elapsed)
		c.log.Debug().Int("records", len(records)).Int("total", total).Dur("elapsed", elapsed).Msg("fetched")
		return nil
	}
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.err = err
	if hit {
		c.data = entry.Data
		c.total = entry.Metadata.Total
		c.stale = true
		c.fromCache = true
	}
	c.mu.Unlock()

	c.opts.Metrics.ObserveFetch(c.opts.Resource, types.OutcomeError, elapsed)
	c.log.Warn().Err(err).Bool("cache_fallback", hit).Msg("fetch failed")
	if hit {
		c.opts.Metrics.ObserveCacheFallback(c.opts.Resource)
		c.opts.Notifier.Notify(types.NoticeWarning,
			fmt.Sprintf("Could not load %s (%s), showing cached data from %s",
				c.opts.Resource, userMessage(err), entry.Timestamp.Local().Format("2006-01-02 15:04")))
	} else {
		c.opts.Notifier.Notify(types.NoticeError,
			fmt.Sprintf("Failed to load %s: %s", c.opts.Resource, userMessage(err)))
	}
	return err
}

// Refresh fetches again with the parameters of the last fetch.
func (c *Collection) Refresh(ctx context.Context) error {
	c.mu.Lock()
	params := cloneParams(c.params)
	c.mu.Unlock()
	return c.Fetch(ctx, params)
}

// Refetch drops the cache entry, then fetches with params.
func (c *Collection) Refetch(ctx context.Context, params map[string]string) error {
	c.cache.remove()
	return c.Fetch(ctx, params)
}

func (c *Collection) get(ctx context.Context, query map[string]string) ([]types.Record, int, error) {
	resp, err := c.client.Get(ctx, c.opts.Endpoint, types.RequestOptions{Params: query})
	if err != nil {
		return nil, 0, err
	}
	return decodeList(resp.Data)
}

func (c *Collection) query(params map[string]string) map[string]string {
	if !c.opts.ServerSide {
		return cloneParams(params)
	}
	q := map[string]string{
		"page":      "1",
		"page_size": strconv.Itoa(c.opts.PageSize),
	}
	for k, v := range params {
		q[k] = v
	}
	return q
}

// opContext derives a context that is also cancelled by Close.
func (c *Collection) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// spawn runs fn on a goroutine that Close waits for.
func (c *Collection) spawn(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Collection) handleConnectionStatus(payload types.Payload) {
	var st types.ConnectionStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		c.log.Warn().Err(err).Msg("malformed connection status")
		return
	}
	c.mu.Lock()
	resync := st.Connected && c.disconnected
	c.disconnected = !st.Connected
	c.mu.Unlock()

	c.log.Info().Bool("connected", st.Connected).Msg("push channel status")
	if resync {
		// Deltas sent while disconnected are lost.
		c.spawn(func() { _ = c.Refresh(c.base) })
	}
}

// decodeList accepts {"data":[...],"total":N} or a bare array.
func decodeList(raw []byte) ([]types.Record, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, 0, types.ErrUnrecognizedResponse
	}
	switch trimmed[0] {
	case '[':
		var records []types.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", types.ErrUnrecognizedResponse, err)
		}
		return nonNil(records), len(records), nil
	case '{':
		var envelope struct {
			Data  *[]types.Record `json:"data"`
			Total *int            `json:"total"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", types.ErrUnrecognizedResponse, err)
		}
		if envelope.Data == nil {
			return nil, 0, types.ErrUnrecognizedResponse
		}
		records := nonNil(*envelope.Data)
		total := len(records)
		if envelope.Total != nil {
			total = *envelope.Total
		}
		return records, total, nil
	}
	return nil, 0, types.ErrUnrecognizedResponse
}

// decodeRecord reads a single record echoed by the server.
func decodeRecord(raw []byte) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal(bytes.TrimSpace(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnrecognizedResponse, err)
	}
	if rec == nil {
		return nil, types.ErrUnrecognizedResponse
	}
	return rec, nil
}

func nonNil(records []types.Record) []types.Record {
	if records == nil {
		return []types.Record{}
	}
	return records
}

func cloneParams(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func itemPath(endpoint, id string) string {
	return endpoint + "/" + url.PathEscape(id)
}

// userMessage prefers an error's own user-facing text.
func userMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, types.ErrUnrecognizedResponse):
		return "unexpected response from server"
	}
	return err.Error()
}

type nopNotifier struct{}

func (nopNotifier) Notify(types.NoticeLevel, string) {}

type nopMetrics struct{}

func (nopMetrics) ObserveFetch(string, string, time.Duration) {}
func (nopMetrics) ObserveMutation(string, string, string)     {}
func (nopMetrics) ObserveCacheFallback(string)                {}
func (nopMetrics) ObservePush(string, string)                 {}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
