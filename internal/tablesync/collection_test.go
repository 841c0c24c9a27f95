package tablesync

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/courtside/internal/export"
	"github.com/mesh-intelligence/courtside/internal/storage"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

const threeTeams = `[{"id":1,"name":"Cibona","city":"Zagreb"},{"id":2,"name":"Zadar","city":"Zadar"},{"id":3,"name":"Split","city":"Split"}]`

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNames []string
		wantTotal int
		wantErr   bool
	}{
		{name: "bare array", raw: `[{"name":"a"},{"name":"b"}]`, wantNames: []string{"a", "b"}, wantTotal: 2},
		{name: "envelope with total", raw: `{"data":[{"name":"a"}],"total":40}`, wantNames: []string{"a"}, wantTotal: 40},
		{name: "envelope without total", raw: `{"data":[{"name":"a"},{"name":"b"}]}`, wantNames: []string{"a", "b"}, wantTotal: 2},
		{name: "empty array", raw: ` [] `, wantNames: []string{}, wantTotal: 0},
		{name: "object without data", raw: `{"items":[]}`, wantErr: true},
		{name: "scalar", raw: `"nope"`, wantErr: true},
		{name: "empty body", raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, total, err := decodeList([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrUnrecognizedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, names(records))
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{Endpoint: "/teams"})
	assert.Error(t, err)

	_, err = New(&fakeClient{}, Options{})
	assert.Error(t, err)

	_, err = New(&fakeClient{}, Options{Endpoint: "/teams", PollSpec: "every now and then"})
	assert.ErrorIs(t, err, types.ErrPollSpecInvalid)
}

func TestFetchReplacesDataAndWritesCache(t *testing.T) {
	store := storage.NewMemory()
	client := &fakeClient{handle: reply(threeTeams, "")}
	metrics := &recordingMetrics{}
	c := mustCollection(t, client, Options{Storage: store, CacheKey: "teams", Metrics: metrics})

	require.NoError(t, c.Fetch(context.Background(), map[string]string{"search": "z"}))

	snap := c.Snapshot()
	assert.Equal(t, []string{"Cibona", "Zadar", "Split"}, names(snap.Data))
	assert.Equal(t, 3, snap.TotalCount)
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.Stale)
	assert.False(t, snap.LastFetch.IsZero())

	entry, ok := ReadCache(store, "teams")
	require.True(t, ok)
	assert.Equal(t, CacheVersion, entry.Version)
	assert.Equal(t, []string{"Cibona", "Zadar", "Split"}, names(entry.Data))
	assert.Equal(t, 3, entry.Metadata.Total)
	assert.Equal(t, map[string]string{"search": "z"}, entry.Metadata.Params)
	assert.Equal(t, []string{types.OutcomeSuccess}, metrics.fetches)
}

// slowStore holds every SetItem until release is closed.
type slowStore struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) SetItem(key, value string) error {
	s.entered <- struct{}{}
	<-s.release
	return s.Memory.SetItem(key, value)
}

func TestSlowCacheWriteDoesNotBlockSnapshot(t *testing.T) {
	store := &slowStore{Memory: storage.NewMemory(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := mustCollection(t, &fakeClient{handle: reply(threeTeams, "")}, Options{Storage: store, CacheKey: "teams"})

	fetched := make(chan error, 1)
	go func() { fetched <- c.Fetch(context.Background(), nil) }()
	<-store.entered

	snapped := make(chan Snapshot, 1)
	go func() { snapped <- c.Snapshot() }()
	select {
	case snap := <-snapped:
		assert.Equal(t, []string{"Cibona", "Zadar", "Split"}, names(snap.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("Snapshot blocked behind the cache write")
	}

	close(store.release)
	require.NoError(t, <-fetched)
	entry, ok := ReadCache(store, "teams")
	require.True(t, ok)
	assert.Len(t, entry.Data, 3)
}

func TestCacheDropsWritesFromOlderGenerations(t *testing.T) {
	store := storage.NewMemory()
	ch := newCache(store, "teams", zerolog.Nop())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ch.write(2, []types.Record{{"id": float64(2)}}, 1, nil, at)
	ch.write(1, []types.Record{{"id": float64(1)}}, 1, nil, at)

	entry, ok := ReadCache(store, "teams")
	require.True(t, ok)
	assert.Equal(t, "2", entry.Data[0].ID())
}

func TestFetchFailureFallsBackToCacheWithOneWarning(t *testing.T) {
	store := storage.NewMemory()
	client := &fakeClient{handle: reply(threeTeams, "")}
	notifier := &recordingNotifier{}
	metrics := &recordingMetrics{}
	c := mustCollection(t, client, Options{Storage: store, CacheKey: "teams", Notifier: notifier, Metrics: metrics})
	require.NoError(t, c.Fetch(context.Background(), nil))

	client.setHandler(failing(errBackendDown))
	err := c.Fetch(context.Background(), nil)
	require.ErrorIs(t, err, errBackendDown)

	snap := c.Snapshot()
	assert.Equal(t, []string{"Cibona", "Zadar", "Split"}, names(snap.Data))
	assert.Equal(t, 3, snap.TotalCount)
	assert.True(t, snap.Stale)
	assert.True(t, snap.FromCache)
	assert.ErrorIs(t, snap.Err, errBackendDown)

	warnings := notifier.at(types.NoticeWarning)
	require.Len(t, warnings, 1)
	assert.True(t, containsAll(warnings[0], "Could not load teams", "connection refused", "showing cached data from"), warnings[0])
	assert.Empty(t, notifier.at(types.NoticeError))
	assert.Equal(t, 1, metrics.fallbacks)
}

func TestFetchFailureWithoutCacheKeepsData(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, "")}
	notifier := &recordingNotifier{}
	c := mustCollection(t, client, Options{Notifier: notifier})
	require.NoError(t, c.Fetch(context.Background(), nil))

	client.setHandler(failing(errBackendDown))
	require.Error(t, c.Fetch(context.Background(), nil))

	snap := c.Snapshot()
	assert.Len(t, snap.Data, 3)
	assert.False(t, snap.Stale)
	assert.ErrorIs(t, snap.Err, errBackendDown)
	assert.Equal(t, []string{"Failed to load teams: dial tcp: connection refused"}, notifier.at(types.NoticeError))
	assert.Empty(t, notifier.at(types.NoticeWarning))
}

func TestCacheVersionMismatchIsAMiss(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.SetItem("teams", `{"version":0,"data":[{"id":1}],"metadata":{"total":1}}`))
	notifier := &recordingNotifier{}
	c := mustCollection(t, &fakeClient{handle: failing(errBackendDown)}, Options{Storage: store, CacheKey: "teams", Notifier: notifier})

	require.Error(t, c.Start(context.Background()))

	snap := c.Snapshot()
	assert.Empty(t, snap.Data)
	assert.False(t, snap.FromCache)
	assert.Len(t, notifier.at(types.NoticeError), 1)
	assert.Empty(t, notifier.at(types.NoticeWarning))
}

func TestStartSeedsFromCacheWhileLoading(t *testing.T) {
	store := storage.NewMemory()
	seed := `{"version":1,"data":[{"id":9,"name":"Cached"}],"metadata":{"total":1},"timestamp":"2026-01-02T03:04:05Z"}`
	require.NoError(t, store.SetItem("teams", seed))

	release := make(chan struct{})
	client := &fakeClient{handle: func(ctx context.Context, _, _ string, _ types.RequestOptions) (*types.Response, error) {
		<-release
		return &types.Response{Status: 200, Data: json.RawMessage(threeTeams)}, nil
	}}
	c := mustCollection(t, client, Options{Storage: store, CacheKey: "teams"})

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	require.Eventually(t, func() bool { return c.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	snap := c.Snapshot()
	assert.Equal(t, []string{"Cached"}, names(snap.Data))
	assert.True(t, snap.FromCache)

	close(release)
	require.NoError(t, <-done)
	snap = c.Snapshot()
	assert.Len(t, snap.Data, 3)
	assert.False(t, snap.FromCache)
	assert.False(t, snap.Loading)

	assert.Error(t, c.Start(context.Background()), "second start")
}

func TestSupersededResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{handle: func(ctx context.Context, _, _ string, opts types.RequestOptions) (*types.Response, error) {
		if opts.Params["search"] == "slow" {
			<-release
			return &types.Response{Status: 200, Data: json.RawMessage(`[{"name":"old"}]`)}, nil
		}
		return &types.Response{Status: 200, Data: json.RawMessage(`[{"name":"new"}]`)}, nil
	}}
	metrics := &recordingMetrics{}
	c := mustCollection(t, client, Options{Metrics: metrics})

	first := make(chan error, 1)
	go func() { first <- c.Fetch(context.Background(), map[string]string{"search": "slow"}) }()
	require.Eventually(t, func() bool { return len(client.callsTo("GET")) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Fetch(context.Background(), map[string]string{"search": "fast"}))
	close(release)

	assert.ErrorIs(t, <-first, types.ErrSuperseded)
	snap := c.Snapshot()
	assert.Equal(t, []string{"new"}, names(snap.Data))
	assert.False(t, snap.Loading)
	assert.Equal(t, []string{types.OutcomeSuccess, types.OutcomeStale}, metrics.fetches)
}

func TestRefreshReusesLastParams(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, "")}
	c := mustCollection(t, client, Options{})

	require.NoError(t, c.Fetch(context.Background(), map[string]string{"status": "active"}))
	require.NoError(t, c.Refresh(context.Background()))

	gets := client.callsTo("GET")
	require.Len(t, gets, 2)
	assert.Equal(t, map[string]string{"status": "active"}, gets[1].opts.Params)
}

func TestRefetchDropsCacheBeforeFetching(t *testing.T) {
	store := storage.NewMemory()
	var sawCache atomic.Bool
	client := &fakeClient{handle: func(context.Context, string, string, types.RequestOptions) (*types.Response, error) {
		_, err := store.GetItem("teams")
		sawCache.Store(err == nil)
		return &types.Response{Status: 200, Data: json.RawMessage(threeTeams)}, nil
	}}
	c := mustCollection(t, client, Options{Storage: store, CacheKey: "teams"})
	require.NoError(t, c.Fetch(context.Background(), nil))

	require.NoError(t, c.Refetch(context.Background(), nil))
	assert.False(t, sawCache.Load(), "cache must be gone when the request is made")
	_, ok := ReadCache(store, "teams")
	assert.True(t, ok, "cache rewritten after success")
}

func TestCreateAndDeleteKeepTotalInStep(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, `{"id":4,"name":"Cedevita"}`)}
	notifier := &recordingNotifier{}
	metrics := &recordingMetrics{}
	c := mustCollection(t, client, Options{Notifier: notifier, Metrics: metrics})
	require.NoError(t, c.Fetch(context.Background(), nil))

	rec, err := c.CreateItem(context.Background(), types.Record{"name": "Cedevita"})
	require.NoError(t, err)
	assert.Equal(t, "4", rec.ID())

	snap := c.Snapshot()
	assert.Equal(t, []string{"Cibona", "Zadar", "Split", "Cedevita"}, names(snap.Data))
	assert.Equal(t, 4, snap.TotalCount)

	posts := client.callsTo("POST")
	require.Len(t, posts, 1)
	assert.Equal(t, "/teams", posts[0].path)
	assert.Equal(t, types.Record{"name": "Cedevita"}, posts[0].opts.Data)

	require.NoError(t, c.DeleteItem(context.Background(), "2"))
	snap = c.Snapshot()
	assert.Equal(t, []string{"Cibona", "Split", "Cedevita"}, names(snap.Data))
	assert.Equal(t, 3, snap.TotalCount)
	assert.Equal(t, "/teams/2", client.callsTo("DELETE")[0].path)

	assert.Equal(t, []string{"Created Cedevita", "Deleted teams 2"}, notifier.at(types.NoticeSuccess))
	assert.Equal(t, []string{"create:success", "delete:success"}, metrics.mutations)
	assert.Len(t, client.callsTo("GET"), 1, "client-side mode patches locally")
}

func TestCreateWithUnreadableEchoRefetches(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, `"created"`)}
	c := mustCollection(t, client, Options{})
	require.NoError(t, c.Fetch(context.Background(), nil))

	_, err := c.CreateItem(context.Background(), types.Record{"name": "Cedevita"})
	require.NoError(t, err)
	assert.Len(t, client.callsTo("GET"), 2)
}

func TestServerSideMutationsRefetch(t *testing.T) {
	client := &fakeClient{handle: reply(`{"data":[{"id":1,"name":"Cibona"}],"total":40}`, `{"id":41,"name":"Cedevita"}`)}
	c := mustCollection(t, client, Options{ServerSide: true, PageSize: 10})
	require.NoError(t, c.Fetch(context.Background(), map[string]string{"search": "ci"}))

	_, err := c.CreateItem(context.Background(), types.Record{"name": "Cedevita"})
	require.NoError(t, err)

	gets := client.callsTo("GET")
	require.Len(t, gets, 2)
	want := map[string]string{"page": "1", "page_size": "10", "search": "ci"}
	assert.Equal(t, want, gets[0].opts.Params)
	assert.Equal(t, want, gets[1].opts.Params)

	snap := c.Snapshot()
	assert.Equal(t, []string{"Cibona"}, names(snap.Data), "server data wins over the echo")
	assert.Equal(t, 40, snap.TotalCount)
}

func TestMutationFailurePropagates(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, "")}
	notifier := &recordingNotifier{}
	metrics := &recordingMetrics{}
	c := mustCollection(t, client, Options{Notifier: notifier, Metrics: metrics})
	require.NoError(t, c.Fetch(context.Background(), nil))

	client.setHandler(failing(errBackendDown))
	_, err := c.CreateItem(context.Background(), types.Record{"name": "Cedevita"})
	require.ErrorIs(t, err, errBackendDown)

	snap := c.Snapshot()
	assert.Len(t, snap.Data, 3)
	assert.Equal(t, 3, snap.TotalCount)
	assert.ErrorIs(t, snap.Err, errBackendDown)
	assert.False(t, snap.Loading)
	assert.Equal(t, []string{"Failed to create teams: dial tcp: connection refused"}, notifier.at(types.NoticeError))
	assert.Equal(t, []string{"create:error"}, metrics.mutations)
}

func TestUpdateItem(t *testing.T) {
	tests := []struct {
		name     string
		echo     string
		wantName string
		wantCity string
	}{
		{name: "echo merged", echo: `{"id":1,"name":"KK Cibona"}`, wantName: "KK Cibona", wantCity: "Zagreb"},
		{name: "unreadable echo merges patch", echo: `"ok"`, wantName: "Cibona Zagreb", wantCity: "Zagreb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{handle: reply(threeTeams, tt.echo)}
			c := mustCollection(t, client, Options{})
			require.NoError(t, c.Fetch(context.Background(), nil))

			rec, err := c.UpdateItem(context.Background(), "1", types.Record{"name": "Cibona Zagreb"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, rec["name"])

			puts := client.callsTo("PUT")
			require.Len(t, puts, 1)
			assert.Equal(t, "/teams/1", puts[0].path)

			first := c.Snapshot().Data[0]
			assert.Equal(t, tt.wantName, first["name"])
			assert.Equal(t, tt.wantCity, first["city"])
			assert.Equal(t, 3, c.Snapshot().TotalCount)
		})
	}
}

func TestUpdateAndDeleteRejectEmptyID(t *testing.T) {
	client := &fakeClient{}
	c := mustCollection(t, client, Options{})

	_, err := c.UpdateItem(context.Background(), "", types.Record{"name": "x"})
	assert.ErrorIs(t, err, types.ErrInvalidID)
	assert.ErrorIs(t, c.DeleteItem(context.Background(), ""), types.ErrInvalidID)
	assert.ErrorIs(t, c.BulkDelete(context.Background(), []string{"1", ""}), types.ErrInvalidID)
	assert.Empty(t, client.callsTo("PUT"))
	assert.Empty(t, client.callsTo("POST"))
}

func TestBulkDelete(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, `{"deleted":2}`)}
	c := mustCollection(t, client, Options{})
	require.NoError(t, c.Fetch(context.Background(), nil))

	require.NoError(t, c.BulkDelete(context.Background(), nil))
	assert.Empty(t, client.callsTo("POST"), "empty id list is a no-op")

	require.NoError(t, c.BulkDelete(context.Background(), []string{"1", "3"}))

	posts := client.callsTo("POST")
	require.Len(t, posts, 1)
	assert.Equal(t, "/teams/bulk-delete", posts[0].path)
	assert.Equal(t, map[string]any{"ids": []any{float64(1), float64(3)}}, posts[0].opts.Data)

	snap := c.Snapshot()
	assert.Equal(t, []string{"Zadar"}, names(snap.Data))
	assert.Equal(t, 1, snap.TotalCount)
}

func TestBulkUpdateAppliesPatchThenEcho(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, `[{"id":2,"status":"suspended"}]`)}
	c := mustCollection(t, client, Options{})
	require.NoError(t, c.Fetch(context.Background(), nil))

	require.NoError(t, c.BulkUpdate(context.Background(), []string{"1", "2"}, types.Record{"status": "inactive"}))

	posts := client.callsTo("POST")
	require.Len(t, posts, 1)
	assert.Equal(t, "/teams/bulk-update", posts[0].path)
	assert.Equal(t, map[string]any{
		"ids":  []any{float64(1), float64(2)},
		"data": types.Record{"status": "inactive"},
	}, posts[0].opts.Data)

	data := c.Snapshot().Data
	assert.Equal(t, "inactive", data[0]["status"])
	assert.Equal(t, "suspended", data[1]["status"])
	assert.Nil(t, data[2]["status"])
}

func TestPushDeltas(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, "")}
	tr := newFakeTransport(true)
	metrics := &recordingMetrics{}
	c := mustCollection(t, client, Options{Transport: tr, Topic: "teams", Metrics: metrics})
	require.NoError(t, c.Start(context.Background()))

	tr.push(t, "teams", PushCreate, `{"id":4,"name":"Cedevita"}`)
	tr.push(t, "teams", PushCreate, `{"id":4,"name":"Cedevita"}`)
	snap := c.Snapshot()
	assert.Equal(t, []string{"Cibona", "Zadar", "Split", "Cedevita"}, names(snap.Data))
	assert.Equal(t, 4, snap.TotalCount, "repeated create is an upsert")

	tr.push(t, "teams", PushUpdate, `{"id":2,"name":"KK Zadar"}`)
	assert.Equal(t, "KK Zadar", c.Snapshot().Data[1]["name"])
	assert.Equal(t, "Zadar", c.Snapshot().Data[1]["city"])

	tr.push(t, "teams", PushDelete, `3`)
	tr.push(t, "teams", PushDelete, `{"id":1}`)
	snap = c.Snapshot()
	assert.Equal(t, []string{"KK Zadar", "Cedevita"}, names(snap.Data))
	assert.Equal(t, 2, snap.TotalCount)
	assert.False(t, snap.Loading)

	tr.push(t, "teams", "rename", `{}`)
	tr.Emit("teams", types.Payload(`not json`))
	assert.Len(t, c.Snapshot().Data, 2)

	tr.push(t, "teams", PushRefresh, `null`)
	require.Eventually(t, func() bool { return len(client.callsTo("GET")) == 2 }, time.Second, 5*time.Millisecond)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{PushCreate, PushCreate, PushUpdate, PushDelete, PushDelete, PushRefresh}, metrics.pushes)
}

func TestPushIgnoredWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(false)
	c := mustCollection(t, &fakeClient{handle: reply(threeTeams, "")}, Options{Transport: tr, Topic: "teams"})
	require.NoError(t, c.Start(context.Background()))

	tr.push(t, "teams", PushDelete, `1`)
	assert.Len(t, c.Snapshot().Data, 3)

	tr.setConnected(true)
	tr.push(t, "teams", PushDelete, `1`)
	assert.Len(t, c.Snapshot().Data, 2)
}

func TestReconnectTriggersResync(t *testing.T) {
	client := &fakeClient{handle: reply(threeTeams, "")}
	tr := newFakeTransport(true)
	c := mustCollection(t, client, Options{Transport: tr, Topic: "teams"})
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, tr.EmitValue(types.EventConnectionStatus, types.ConnectionStatus{Connected: true}))
	assert.Len(t, client.callsTo("GET"), 1, "no resync without a prior disconnect")

	require.NoError(t, tr.EmitValue(types.EventConnectionStatus, types.ConnectionStatus{Connected: false}))
	require.NoError(t, tr.EmitValue(types.EventConnectionStatus, types.ConnectionStatus{Connected: true}))
	require.Eventually(t, func() bool { return len(client.callsTo("GET")) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCloseUnsubscribesAndRejectsCalls(t *testing.T) {
	tr := newFakeTransport(true)
	c, err := New(&fakeClient{handle: reply(threeTeams, "")}, Options{Endpoint: "/teams", Transport: tr, Topic: "teams"})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, 1, tr.Count("teams"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, 0, tr.Count("teams"))
	assert.Equal(t, 0, tr.Count(types.EventConnectionStatus))
	assert.ErrorIs(t, c.Fetch(context.Background(), nil), types.ErrCollectionClosed)
	_, err = c.CreateItem(context.Background(), types.Record{"name": "x"})
	assert.ErrorIs(t, err, types.ErrCollectionClosed)
	assert.ErrorIs(t, c.Start(context.Background()), types.ErrCollectionClosed)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := mustCollection(t, &fakeClient{handle: reply(threeTeams, "")}, Options{})
	require.NoError(t, c.Fetch(context.Background(), nil))

	snap := c.Snapshot()
	snap.Data[0]["name"] = "mutated"
	assert.Equal(t, "Cibona", c.Snapshot().Data[0]["name"])
}

func TestExportDataRoundTrips(t *testing.T) {
	c := mustCollection(t, &fakeClient{handle: reply(threeTeams, "")}, Options{})
	require.NoError(t, c.Fetch(context.Background(), nil))
	before := c.Snapshot()

	var buf bytes.Buffer
	require.NoError(t, c.ExportData(&buf, nil, export.JSON))

	var got []types.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, before.Data, got)
	assert.Equal(t, before, c.Snapshot(), "export leaves state untouched")
}

func TestExportFileName(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	c := mustCollection(t, &fakeClient{handle: reply(threeTeams, "")}, Options{
		Resource: "players",
		Endpoint: "/players",
		Now:      func() time.Time { return fixed },
	})
	require.NoError(t, c.Fetch(context.Background(), nil))

	dir := t.TempDir()
	path, err := c.ExportFile(dir, nil, export.CSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "players_2026-03-14.csv"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "id,city,name")

	_, err = c.ExportFile(dir, nil, export.Format("xml"))
	assert.ErrorIs(t, err, export.ErrUnknownFormat)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestPollerRefreshes(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the scheduler")
	}
	client := &fakeClient{handle: reply(threeTeams, "")}
	c := mustCollection(t, client, Options{PollSpec: "@every 1s"})
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return len(client.callsTo("GET")) >= 2 }, 3*time.Second, 20*time.Millisecond)
}
