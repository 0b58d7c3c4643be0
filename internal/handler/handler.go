package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"topomap/internal/codec"
	"topomap/internal/domain"
	"topomap/internal/errors"
	"topomap/internal/logging"
	"topomap/internal/metrics"
	"topomap/internal/scan"
)

// maxBodyBytes bounds request bodies; the only body is a single address
const maxBodyBytes = 1 << 16

// Scanner is the orchestrator surface the control endpoints drive
type Scanner interface {
	Start(ctx context.Context, mode scan.Mode) bool
	Stop() bool
	State() scan.State
	Mode() scan.Mode
	LastReport() (scan.CycleReport, bool)
	ScanHost(ctx context.Context, ip string) (domain.Node, error)
	Tracing(ip string) bool
}

// NodeSource exposes the topology registry
type NodeSource interface {
	Snapshot() []domain.Node
	Get(ip string) (domain.Node, error)
}

// SummarySource exposes the last computed network summary
type SummarySource interface {
	Summary() string
	SummaryUpdatedAt() time.Time
}

// ScanHandler serves the scan control and topology endpoints
type ScanHandler struct {
	scanner   Scanner
	nodes     NodeSource
	summaries SummarySource
	events    http.Handler
	metrics   *metrics.Metrics
	logger    *logging.Logger

	// baseCtx parents background host scans
	baseCtx context.Context
	traces  sync.WaitGroup
}

// Option configures a ScanHandler
type Option func(*ScanHandler)

// WithEvents mounts an SSE stream at /events
func WithEvents(events http.Handler) Option {
	return func(h *ScanHandler) {
		h.events = events
	}
}

// WithMetrics mounts the Prometheus endpoint at /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *ScanHandler) {
		h.metrics = m
	}
}

// WithBaseContext sets the context background host scans run under.
// Cancelling it aborts them.
func WithBaseContext(ctx context.Context) Option {
	return func(h *ScanHandler) {
		if ctx != nil {
			h.baseCtx = ctx
		}
	}
}

// WithLogger sets the request and error logger
func WithLogger(l *logging.Logger) Option {
	return func(h *ScanHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewScanHandler creates a handler. summaries may be nil when summaries are
// disabled.
func NewScanHandler(scanner Scanner, nodes NodeSource, summaries SummarySource, opts ...Option) *ScanHandler {
	h := &ScanHandler{
		scanner:   scanner,
		nodes:     nodes,
		summaries: summaries,
		logger:    logging.Default().WithComponent("http"),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MessageResponse is the body of the scan control endpoints
type MessageResponse struct {
	Message string     `json:"message"`
	State   scan.State `json:"state"`
	Mode    scan.Mode  `json:"mode,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ScanHostRequest is the body of POST /scan_host
type ScanHostRequest struct {
	IP string `json:"ip"`
}

// SummaryResponse is the body of GET /network-summary
type SummaryResponse struct {
	Description string `json:"description"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	State            scan.State        `json:"state"`
	Mode             scan.Mode         `json:"mode,omitempty"`
	Nodes            int               `json:"nodes"`
	LastCycle        *scan.CycleReport `json:"last_cycle,omitempty"`
	SummaryUpdatedAt *time.Time        `json:"summary_updated_at,omitempty"`
}

// StartScan begins scanning. It is idempotent: a second call while a scan
// runs reports that one is already in progress.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	mode, err := scan.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, "Invalid scan mode", errors.Wrap(errors.CodeValidation, "bad mode parameter", err))
		return
	}

	msg := "Scan already in progress"
	if h.scanner.Start(r.Context(), mode) {
		msg = "Scanning started"
		h.logger.Info("scan started via API", "mode", mode)
	}

	h.writeJSON(w, MessageResponse{
		Message: msg,
		State:   h.scanner.State(),
		Mode:    h.scanner.Mode(),
	}, http.StatusOK)
}

// StopScan asks the running scan to stop and waits a bounded time for it
func (h *ScanHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	msg := "Scanning stopped"
	if !h.scanner.Stop() {
		msg = "Stop requested, scan still finishing"
	}

	h.writeJSON(w, MessageResponse{
		Message: msg,
		State:   h.scanner.State(),
	}, http.StatusOK)
}

// ScanHost traces one host in the background and merges its path into the
// topology. With ?wait=true the trace runs inline and the node is returned.
func (h *ScanHandler) ScanHost(w http.ResponseWriter, r *http.Request) {
	var req ScanHostRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", errors.Wrap(errors.CodeValidation, "decode body", err))
		return
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(req.IP))
	if err != nil {
		h.writeError(w, "Invalid IP address", errors.Wrap(errors.CodeValidation, "parse ip", err).WithTarget(req.IP))
		return
	}
	ip := addr.String()

	if h.scanner.Tracing(ip) {
		h.writeJSON(w, MessageResponse{
			Message: fmt.Sprintf("Scan already in progress for %s", ip),
			State:   h.scanner.State(),
		}, http.StatusOK)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		node, err := h.scanner.ScanHost(r.Context(), ip)
		if err != nil {
			h.writeError(w, "Host scan failed", err)
			return
		}
		h.writeJSON(w, node, http.StatusOK)
		return
	}

	h.traces.Add(1)
	go func() {
		defer h.traces.Done()
		if _, err := h.scanner.ScanHost(h.baseCtx, ip); err != nil {
			h.logger.ErrorScan("background host scan failed", ip, err)
		}
	}()

	h.writeJSON(w, MessageResponse{
		Message: fmt.Sprintf("Started scan of %s", ip),
		State:   h.scanner.State(),
	}, http.StatusOK)
}

// Wait blocks until background host scans started by ScanHost finish
func (h *ScanHandler) Wait() {
	h.traces.Wait()
}

// ListNodes returns the registry snapshot ordered by IP
func (h *ScanHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.nodes.Snapshot()
	if nodes == nil {
		nodes = []domain.Node{}
	}
	h.writeJSON(w, nodes, http.StatusOK)
}

// GetNode returns a single node by IP
func (h *ScanHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	node, err := h.nodes.Get(ip)
	if err != nil {
		h.writeError(w, "Node not found", err)
		return
	}
	h.writeJSON(w, node, http.StatusOK)
}

// GetGraph returns the snapshot as a vis-network style graph
func (h *ScanHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, domain.DeriveGraph(h.nodes.Snapshot()), http.StatusOK)
}

// NetworkSummary returns the last computed description
func (h *ScanHandler) NetworkSummary(w http.ResponseWriter, r *http.Request) {
	var text string
	if h.summaries != nil {
		text = h.summaries.Summary()
	}
	h.writeJSON(w, SummaryResponse{Description: text}, http.StatusOK)
}

// Status reports the orchestrator state and the last cycle
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State: h.scanner.State(),
		Mode:  h.scanner.Mode(),
		Nodes: len(h.nodes.Snapshot()),
	}
	if report, ok := h.scanner.LastReport(); ok {
		resp.LastCycle = &report
	}
	if h.summaries != nil {
		if at := h.summaries.SummaryUpdatedAt(); !at.IsZero() {
			resp.SummaryUpdatedAt = &at
		}
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// Export writes the snapshot in the format named by the path
func (h *ScanHandler) Export(w http.ResponseWriter, r *http.Request) {
	exporter, err := codec.ExporterFor(mux.Vars(r)["format"])
	if err != nil {
		h.writeError(w, "Unsupported export format", errors.Wrap(errors.CodeValidation, "export", err))
		return
	}

	var buf bytes.Buffer
	if err := exporter.Export(h.nodes.Snapshot(), &buf); err != nil {
		h.writeError(w, "Export failed", err)
		return
	}

	contentType, ext := "application/x-yaml", "yaml"
	if exporter.Format() == "json" {
		contentType, ext = "application/json", "json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=topomap-%s.%s", exporter.Format(), ext))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("export write aborted", "error", err)
	}
}

func (h *ScanHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *ScanHandler) writeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    string(errors.CodeOf(err)),
		Details: err.Error(),
	}); encErr != nil {
		h.logger.Error("failed to encode error response", "error", encErr)
	}
}

// statusFor maps error codes to HTTP statuses
func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodePermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
