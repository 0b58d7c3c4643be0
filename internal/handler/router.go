package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Router builds the route table wrapped in recovery, CORS and request
// logging middleware
func (h *ScanHandler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/start_scan", h.StartScan).Methods(http.MethodPost)
	r.HandleFunc("/stop_scan", h.StopScan).Methods(http.MethodPost)
	r.HandleFunc("/scan_host", h.ScanHost).Methods(http.MethodPost)

	r.HandleFunc("/nodes", h.ListNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{ip}", h.GetNode).Methods(http.MethodGet)
	r.HandleFunc("/graph", h.GetGraph).Methods(http.MethodGet)
	r.HandleFunc("/network-summary", h.NetworkSummary).Methods(http.MethodGet)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/export/{format}", h.Export).Methods(http.MethodGet)

	if h.events != nil {
		r.Handle("/events", h.events).Methods(http.MethodGet)
	}
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}

	// CORS sits outside the router so preflight requests never hit the
	// method matcher
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(h.logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)

	return recovery(cors(r))
}

// logRequests logs one line per completed request
func (h *ScanHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		if r.URL.Path == "/metrics" || r.URL.Path == "/status" {
			level = slog.LevelDebug
		}
		h.logger.Log(r.Context(), level, "HTTP request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", wrapped.statusCode,
			"response_size", wrapped.size,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr)
	})
}

// responseWriter wraps http.ResponseWriter to capture response information
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size
func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Flush keeps the SSE stream working through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
