// Package httpapi serves the mission over HTTP: a JSON API backed by the
// manager and a Server-Sent Events stream of mission events.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/manager"
	"github.com/ankittk/missioncontrol/internal/mission"
)

// defaultMaxRequestBodyBytes is the default limit for request body size (1 MiB).
const defaultMaxRequestBodyBytes = 1 << 20

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets permissive CORS headers for local dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr           string
	Dev            bool         // enable CORS
	APIKey         string       // if set, require X-API-Key header or query api_key
	MetricsHandler http.Handler // if set, served at /metrics
	UseOtelHTTP    bool         // wrap the handler with otelhttp
	MaxBodyBytes   int64        // 0 means 1 MiB
}

// App holds the HTTP server, SSE hub and the manager it serves.
type App struct {
	Server  *http.Server
	Hub     *SSEHub
	Manager *manager.Manager
}

// NewApp registers every route on a new server. hub should be the mission's
// publisher so that mutations reach /events subscribers.
func NewApp(mgr *manager.Manager, hub *SSEHub, opts ServerOptions) *App {
	if hub == nil {
		hub = NewSSEHub()
	}
	app := &App{Hub: hub, Manager: mgr}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}
	mux.HandleFunc("GET /events", hub.Handler())
	app.routes(mux)

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBodyBytes
	}
	var handler http.Handler = mux
	handler = bodyLimitMiddleware(maxBody, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "missioncontrol")
	}
	app.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WriteTimeout stays 0: /events streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}
	return app
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

// writeErr maps domain errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, mission.ErrAgentNotFound), errors.Is(err, mission.ErrTaskNotFound),
		errors.Is(err, gateway.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, gateway.ErrSpawnFailed), errors.Is(err, gateway.ErrNotConnected),
		errors.Is(err, gateway.ErrInvalidResponse):
		code = http.StatusBadGateway
	default:
		slog.Error("request failed", "err", err)
	}
	writeJSONError(w, code, err.Error())
}
