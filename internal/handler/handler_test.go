package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"topomap/internal/domain"
	"topomap/internal/errors"
	"topomap/internal/logging"
	"topomap/internal/metrics"
	"topomap/internal/scan"
)

type fakeScanner struct {
	mu      sync.Mutex
	state   scan.State
	mode    scan.Mode
	drains  bool
	report  *scan.CycleReport
	busy    map[string]bool
	traced  []string
	hostErr error
}

func (f *fakeScanner) Start(_ context.Context, mode scan.Mode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != scan.StateIdle {
		return false
	}
	f.state = scan.StateRunning
	f.mode = mode
	return true
}

func (f *fakeScanner) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drains {
		f.state = scan.StateStopping
		return false
	}
	f.state = scan.StateIdle
	return true
}

func (f *fakeScanner) State() scan.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeScanner) Mode() scan.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeScanner) LastReport() (scan.CycleReport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.report == nil {
		return scan.CycleReport{}, false
	}
	return *f.report, true
}

func (f *fakeScanner) ScanHost(_ context.Context, ip string) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traced = append(f.traced, ip)
	if f.hostErr != nil {
		return domain.Node{}, f.hostErr
	}
	hops := 9
	n := domain.NewNode(ip, domain.NodeStatusUp)
	n.HopDistance = &hops
	return *n, nil
}

func (f *fakeScanner) Tracing(ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy[ip]
}

func (f *fakeScanner) tracedIPs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.traced...)
}

type fakeNodes struct {
	nodes []domain.Node
	panic bool
}

func (f *fakeNodes) Snapshot() []domain.Node {
	if f.panic {
		panic("registry corrupted")
	}
	return f.nodes
}

func (f *fakeNodes) Get(ip string) (domain.Node, error) {
	for _, n := range f.nodes {
		if n.IP == ip {
			return n, nil
		}
	}
	return domain.Node{}, errors.New(errors.CodeNotFound, "node not registered").WithTarget(ip)
}

type fakeSummaries struct {
	text string
	at   time.Time
}

func (f fakeSummaries) Summary() string             { return f.text }
func (f fakeSummaries) SummaryUpdatedAt() time.Time { return f.at }

func sampleNodes() []domain.Node {
	one := 1
	gw := domain.NewNode("192.168.1.1", domain.NodeStatusUp)
	gw.NodeType = domain.NodeTypeGateway
	gw.HopDistance = &one
	gw.AddEdge("192.168.1.20")

	host := domain.NewNode("192.168.1.20", domain.NodeStatusUp)
	host.Hostname = "nas.lan"
	host.OS = "Linux 5.X"
	host.AddEdge("192.168.1.1")

	return []domain.Node{*gw, *host}
}

type fixture struct {
	scanner *fakeScanner
	nodes   *fakeNodes
	handler *ScanHandler
	router  http.Handler
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		scanner: &fakeScanner{busy: map[string]bool{}},
		nodes:   &fakeNodes{nodes: sampleNodes()},
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	f.handler = NewScanHandler(f.scanner, f.nodes, fakeSummaries{text: "Two hosts behind one gateway."}, opts...)
	f.router = f.handler.Router()
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStartScan(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/start_scan?mode=single", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "Scanning started", resp["message"])
	assert.Equal(t, "running", resp["state"])
	assert.Equal(t, "single", resp["mode"])

	rec = f.do(http.MethodPost, "/start_scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Scan already in progress", decode[map[string]string](t, rec)["message"])
	assert.Equal(t, scan.ModeSingle, f.scanner.Mode(), "running scan keeps its mode")
}

func TestStartScan_BadMode(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/start_scan?mode=forever", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "VALIDATION", resp.Code)
	assert.Equal(t, scan.StateIdle, f.scanner.State())
}

func TestStopScan(t *testing.T) {
	t.Run("drained", func(t *testing.T) {
		f := newFixture()
		f.do(http.MethodPost, "/start_scan", "")

		rec := f.do(http.MethodPost, "/stop_scan", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[map[string]string](t, rec)
		assert.Equal(t, "Scanning stopped", resp["message"])
		assert.Equal(t, "idle", resp["state"])
	})

	t.Run("still draining", func(t *testing.T) {
		f := newFixture()
		f.scanner.drains = true
		f.do(http.MethodPost, "/start_scan", "")

		rec := f.do(http.MethodPost, "/stop_scan", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[map[string]string](t, rec)
		assert.Contains(t, resp["message"], "still finishing")
		assert.Equal(t, "stopping", resp["state"])
	})

	t.Run("idle", func(t *testing.T) {
		f := newFixture()
		rec := f.do(http.MethodPost, "/stop_scan", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestScanHost(t *testing.T) {
	t.Run("background", func(t *testing.T) {
		f := newFixture()

		rec := f.do(http.MethodPost, "/scan_host", `{"ip": " 49.12.234.183 "}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Started scan of 49.12.234.183", decode[map[string]string](t, rec)["message"])

		f.handler.Wait()
		assert.Equal(t, []string{"49.12.234.183"}, f.scanner.tracedIPs())
	})

	t.Run("already tracing", func(t *testing.T) {
		f := newFixture()
		f.scanner.busy["49.12.234.183"] = true

		rec := f.do(http.MethodPost, "/scan_host", `{"ip": "49.12.234.183"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Scan already in progress for 49.12.234.183", decode[map[string]string](t, rec)["message"])
		f.handler.Wait()
		assert.Empty(t, f.scanner.tracedIPs())
	})

	t.Run("wait returns node", func(t *testing.T) {
		f := newFixture()

		rec := f.do(http.MethodPost, "/scan_host?wait=true", `{"ip": "203.0.113.7"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		node := decode[domain.Node](t, rec)
		assert.Equal(t, "203.0.113.7", node.IP)
		assert.Equal(t, 9, *node.HopDistance)
	})

	t.Run("wait surfaces probe timeout", func(t *testing.T) {
		f := newFixture()
		f.scanner.hostErr = errors.New(errors.CodeTimeout, "probe timed out").WithTarget("203.0.113.7")

		rec := f.do(http.MethodPost, "/scan_host?wait=true", `{"ip": "203.0.113.7"}`)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, "TIMEOUT", decode[ErrorResponse](t, rec).Code)
	})

	for _, body := range []string{`{"ip": "example.com"}`, `{"ip": ""}`, `not json`} {
		t.Run("rejects "+body, func(t *testing.T) {
			f := newFixture()
			rec := f.do(http.MethodPost, "/scan_host", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.scanner.tracedIPs())
		})
	}
}

func TestListNodes(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	nodes := decode[[]domain.Node](t, rec)
	require.Len(t, nodes, 2)
	assert.Equal(t, []string{"192.168.1.20"}, nodes[0].ConnectedTo.Sorted())

	f.nodes.nodes = nil
	rec = f.do(http.MethodGet, "/nodes", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetNode(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/nodes/192.168.1.20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nas.lan", decode[domain.Node](t, rec).Hostname)

	rec = f.do(http.MethodGet, "/nodes/10.9.9.9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, rec).Code)
}

func TestGetGraph(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decode[domain.Graph](t, rec)
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 2)
}

func TestNetworkSummary(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/network-summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"description": "Two hosts behind one gateway."}`, rec.Body.String())

	disabled := NewScanHandler(&fakeScanner{}, &fakeNodes{}, nil, WithLogger(logging.Discard()))
	rec = httptest.NewRecorder()
	disabled.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/network-summary", nil))
	assert.JSONEq(t, `{"description": ""}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/status", "")
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "idle", resp["state"])
	assert.EqualValues(t, 2, resp["nodes"])
	assert.NotContains(t, resp, "last_cycle")

	f.scanner.report = &scan.CycleReport{ID: "c-1", Mode: scan.ModeSingle, Candidates: 4, Enriched: 3}
	f.do(http.MethodPost, "/start_scan?mode=continuous", "")

	rec = f.do(http.MethodGet, "/status", "")
	resp = decode[map[string]any](t, rec)
	assert.Equal(t, "running", resp["state"])
	assert.Equal(t, "continuous", resp["mode"])
	cycle := resp["last_cycle"].(map[string]any)
	assert.Equal(t, "c-1", cycle["id"])
	assert.EqualValues(t, 3, cycle["enriched"])
}

func TestExport(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/export/json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "topomap-json.json")
	assert.Len(t, decode[[]domain.Node](t, rec), 2)

	rec = f.do(http.MethodGet, "/export/YAML", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-yaml", rec.Header().Get("Content-Type"))
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc, "edges")

	rec = f.do(http.MethodGet, "/export/ansible-inventory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateways")

	rec = f.do(http.MethodGet, "/export/csv", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "json")
}

func TestOptionalEndpoints(t *testing.T) {
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": connected\n\n"))
		w.(http.Flusher).Flush()
	})
	m := metrics.New()
	m.SetNodes(2)

	f := newFixture(WithEvents(events), WithMetrics(m))

	rec := f.do(http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rec.Flushed, "flush passes through the logging wrapper")

	rec = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "topomap_registry_nodes 2")

	bare := newFixture()
	assert.Equal(t, http.StatusNotFound, bare.do(http.MethodGet, "/events", "").Code)
	assert.Equal(t, http.StatusNotFound, bare.do(http.MethodGet, "/metrics", "").Code)
}

func TestMiddleware(t *testing.T) {
	t.Run("method not allowed", func(t *testing.T) {
		f := newFixture()
		assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/start_scan", "").Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		f := newFixture()
		req := httptest.NewRequest(http.MethodOptions, "/start_scan", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("cors simple request", func(t *testing.T) {
		f := newFixture()
		req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("panic recovered", func(t *testing.T) {
		f := newFixture()
		f.nodes.panic = true
		assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/nodes", "").Code)
	})
}
