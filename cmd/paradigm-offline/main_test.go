package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/paradigm-offline/internal/config"
	"github.com/Sternrassler/paradigm-offline/internal/testutil"
	"github.com/Sternrassler/paradigm-offline/pkg/attendance"
	"github.com/Sternrassler/paradigm-offline/pkg/syncqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type daemon struct {
	origin  *testutil.Origin
	network *testutil.Network
	app     *app
	server  *httptest.Server
	stop    func()
}

func newDaemon(t *testing.T, opts ...func(*config.Config)) *daemon {
	t.Helper()
	origin := testutil.NewOrigin()
	t.Cleanup(origin.Close)
	return startDaemon(t, origin, opts...)
}

// startDaemon runs a daemon against origin. stop shuts it down early so a
// second daemon can reopen the same files.
func startDaemon(t *testing.T, origin *testutil.Origin, opts ...func(*config.Config)) *daemon {
	t.Helper()

	d := &daemon{origin: origin, network: origin.Network()}

	cfg := config.Config{
		Origin:              origin.URL(),
		ListenAddr:          "127.0.0.1:0",
		Version:             "v1",
		Store:               config.StoreMemory,
		OutboxPath:          filepath.Join(t.TempDir(), "outbox.db"),
		PrecacheConcurrency: 2,
		PrecacheTimeout:     testTimeout,
		InstallAttempts:     1,
		FailureThreshold:    1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	require.NoError(t, cfg.Validate())

	a, err := buildApp(context.Background(), cfg, d.network, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	require.NoError(t, err)
	d.app = a

	d.server = httptest.NewServer(a.routes())
	d.stop = sync.OnceFunc(func() {
		d.server.Close()
		a.Close()
	})
	t.Cleanup(d.stop)
	return d
}

func (d *daemon) deploy(t *testing.T) {
	t.Helper()
	_, err := d.app.worker.Deploy(context.Background())
	require.NoError(t, err)
}

func (d *daemon) do(t *testing.T, method, path string, body string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, d.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	d := newDaemon(t)

	status, body := d.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "unregistered")

	d.deploy(t)

	status, body = d.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestMetricsEndpoint(t *testing.T) {
	d := newDaemon(t)
	d.deploy(t)
	d.do(t, http.MethodGet, "/index.html", "")

	status, body := d.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "paradigm_intercept_requests_total")
	assert.Contains(t, body, "paradigm_lifecycle_installs_total")
}

func TestProxy_ServesOffline(t *testing.T) {
	d := newDaemon(t)
	d.origin.SetResponse("/api/tasks", testutil.NewJSONResponse(`{"tasks":[1,2]}`))
	d.deploy(t)

	status, body := d.do(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"tasks":[1,2]}`, body)
	d.app.worker.Wait()

	d.network.SetOffline(true)

	status, body = d.do(t, http.MethodGet, "/index.html", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "asset:/index.html", body)

	status, body = d.do(t, http.MethodGet, "/api/tasks", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"tasks":[1,2]}`, body)

	status, _ = d.do(t, http.MethodGet, "/api/never-fetched", "")
	assert.Equal(t, http.StatusBadGateway, status)

	status, body = d.do(t, http.MethodGet, "/connectivity", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"offline"`)
}

func TestProxy_FailedDeployKeepsPreviousVersion(t *testing.T) {
	origin := testutil.NewOrigin()
	t.Cleanup(origin.Close)
	boltPath := filepath.Join(t.TempDir(), "cache.db")
	onBolt := func(version string) func(*config.Config) {
		return func(c *config.Config) {
			c.Version = version
			c.Store = config.StoreBolt
			c.BoltPath = boltPath
		}
	}

	v1 := startDaemon(t, origin, onBolt("v1"))
	v1.deploy(t)
	v1.stop()

	origin.SetResponse("/manifest.json", testutil.NewNotFoundResponse())
	v2 := startDaemon(t, origin, onBolt("v2"))
	_, err := v2.app.worker.Deploy(context.Background())
	require.Error(t, err)
	assert.False(t, v2.app.controller.Active())

	v2.network.SetOffline(true)
	status, body := v2.do(t, http.MethodGet, "/index.html", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "asset:/index.html", body)

	status, _ = v2.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

// syncEndpoint records attendance batches posted by the flusher.
type syncEndpoint struct {
	mu      sync.Mutex
	records []attendance.Record
}

func (s *syncEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	var batch struct {
		Records []attendance.Record `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.records = append(s.records, batch.Records...)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *syncEndpoint) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestAttendance_FlushedWhenOnline(t *testing.T) {
	d := newDaemon(t)
	endpoint := &syncEndpoint{}
	d.origin.SetHandler(attendance.SyncPath, endpoint.handle)

	status, body := d.do(t, http.MethodPost, "/attendance", `{"employee_id":"emp-7","kind":"check_in"}`)
	require.Equal(t, http.StatusCreated, status)

	var stored attendance.Record
	require.NoError(t, json.Unmarshal([]byte(body), &stored))
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, 1, endpoint.count())

	pending, err := d.app.outbox.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)

	tags, err := d.app.queue.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestAttendance_DeferredUntilRecovery(t *testing.T) {
	d := newDaemon(t)
	endpoint := &syncEndpoint{}
	d.origin.SetHandler(attendance.SyncPath, endpoint.handle)
	d.deploy(t)

	d.network.SetOffline(true)
	status, _ := d.do(t, http.MethodPost, "/attendance", `{"employee_id":"emp-7","kind":"check_out"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Zero(t, endpoint.count())

	status, body := d.do(t, http.MethodGet, "/sync", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, syncqueue.TagAttendance)

	// Any successful origin request signals recovery
	d.network.SetOffline(false)
	status, _ = d.do(t, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, status)
	d.app.worker.Wait()

	assert.Equal(t, 1, endpoint.count())
	pending, err := d.app.outbox.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestAttendance_RecoveryBeforeOfflineThreshold(t *testing.T) {
	d := newDaemon(t, func(c *config.Config) { c.FailureThreshold = 2 })
	endpoint := &syncEndpoint{}
	d.origin.SetHandler(attendance.SyncPath, endpoint.handle)
	d.deploy(t)

	// A single failed flush leaves the tracker online
	d.network.SetOffline(true)
	status, _ := d.do(t, http.MethodPost, "/attendance", `{"employee_id":"emp-7","kind":"check_in"}`)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, d.app.tracker.State().IsOnline())

	d.network.SetOffline(false)
	for range 3 {
		status, _ = d.do(t, http.MethodGet, "/api/profile", "")
		require.Equal(t, http.StatusOK, status)
	}
	d.app.worker.Wait()

	assert.Equal(t, 1, endpoint.count())
	pending, err := d.app.outbox.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)

	status, body := d.do(t, http.MethodGet, "/sync", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"pending":[]}`, body)
}

func TestAttendance_InvalidRecord(t *testing.T) {
	d := newDaemon(t)

	status, _ := d.do(t, http.MethodPost, "/attendance", `{"employee_id":"emp-7","kind":"lunch"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = d.do(t, http.MethodPost, "/attendance", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSyncEndpoints(t *testing.T) {
	d := newDaemon(t)
	d.network.SetOffline(true)

	status, _ := d.do(t, http.MethodPost, "/sync/"+syncqueue.TagAttendance, "")
	assert.Equal(t, http.StatusAccepted, status)

	status, body := d.do(t, http.MethodGet, "/sync", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"pending":["sync-attendance"]}`, body)

	// Nothing in the outbox: the flush succeeds without touching the network
	status, _ = d.do(t, http.MethodPost, "/sync/"+syncqueue.TagAttendance+"/dispatch", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = d.do(t, http.MethodPost, "/sync/sync-unknown/dispatch", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body = d.do(t, http.MethodGet, "/sync", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"pending":[]}`, body)
}

func TestSyncDispatch_FailureKeepsTagPending(t *testing.T) {
	d := newDaemon(t)
	d.origin.SetResponse(attendance.SyncPath, testutil.NewServerErrorResponse())

	_, err := d.app.outbox.Add(context.Background(), attendance.Record{EmployeeID: "emp-1", Kind: attendance.KindCheckIn})
	require.NoError(t, err)
	require.NoError(t, d.app.worker.RequestSync(context.Background(), syncqueue.TagAttendance))

	status, _ := d.do(t, http.MethodPost, "/sync/"+syncqueue.TagAttendance+"/dispatch", "")
	assert.Equal(t, http.StatusBadGateway, status)

	tags, err := d.app.queue.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{syncqueue.TagAttendance}, tags)
}

func TestPushAndClick(t *testing.T) {
	d := newDaemon(t)

	status, body := d.do(t, http.MethodPost, "/push", `{"title":"Shift changed","data":{"url":"/schedule"}}`)
	require.Equal(t, http.StatusCreated, status)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &created))

	status, body = d.do(t, http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Shift changed")

	status, body = d.do(t, http.MethodPost, "/notifications/"+created.ID+"/click", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"url":"/schedule"}`, body)
	assert.Equal(t, []string{"/schedule"}, d.app.inbox.Navigations())

	status, _ = d.do(t, http.MethodPost, "/notifications/"+created.ID+"/click", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpstreamTransport(t *testing.T) {
	var seenHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHost = r.Host
		w.Write([]byte("from upstream"))
	}))
	defer upstream.Close()

	origin, _ := url.Parse("https://app.paradigm.example")
	upstreamURL, _ := url.Parse(upstream.URL)

	transport := newUpstreamTransport(origin, upstreamURL)
	req, _ := http.NewRequest(http.MethodGet, "https://app.paradigm.example/index.html", nil)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "from upstream", string(body))
	assert.Equal(t, upstreamURL.Host, seenHost)
	assert.Same(t, req, resp.Request)
	assert.Equal(t, "app.paradigm.example", req.URL.Host, "original request is untouched")

	assert.Equal(t, http.DefaultTransport, newUpstreamTransport(origin, origin))
}

func TestPurgeCommand(t *testing.T) {
	t.Setenv("PARADIGM_LOG_LEVEL", "disabled")

	run := func(args ...string) (string, error) {
		cmd := NewRootCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	_, err := run("purge", "static-v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = run("purge", "static-v0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = run("--app-version", "v2", "purge", "static-v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	out, err := run("partitions")
	require.NoError(t, err)
	assert.Contains(t, out, "PARTITION")
}
