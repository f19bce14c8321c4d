// Package api is the HTTP and WebSocket surface the web front end talks
// to. Routes are thin: they validate, call into the reconciliation
// components, and render JSON. Error policy: user-initiated actions return
// a JSON error; background loads degrade to an empty result and log.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatterly/pkg/directory"
	"chatterly/pkg/ingest"
	"chatterly/pkg/logger"
	"chatterly/pkg/platform"
	"chatterly/pkg/send"
	"chatterly/pkg/session"
	"chatterly/pkg/store"
	"chatterly/pkg/telemetry"
)

// Deps wires the API to the rest of the daemon. BaseCtx scopes work that
// must outlive a single request (sends, live subscriptions).
type Deps struct {
	BaseCtx   context.Context
	Store     *store.Store
	Platform  platform.Platform
	Sessions  *session.Holder
	Send      *send.Pipeline
	Ingest    *ingest.Ingestor
	Directory *directory.Directory
	Notices   *NoticeHub

	// UploadDir serves uploaded objects under /files/ when non-empty.
	UploadDir string

	RateRPS   float64
	RateBurst int
}

type server struct {
	Deps
}

// NewRouter builds the route table.
func NewRouter(deps Deps) http.Handler {
	s := &server{Deps: deps}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/docs/doc.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/session", s.handleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/session", s.handlePutSession).Methods(http.MethodPost)
	v1.HandleFunc("/session", s.handleDeleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/channels", s.handleListChannels).Methods(http.MethodGet)
	v1.HandleFunc("/channels/open", s.handleOpenDirect).Methods(http.MethodPost)
	v1.HandleFunc("/channels/{id}/messages", s.handleOpenChannel).Methods(http.MethodGet)
	v1.HandleFunc("/messages", s.handleSendText).Methods(http.MethodPost)
	v1.HandleFunc("/uploads", s.handleSendFile).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/search", s.handleSearch).Methods(http.MethodGet)
	v1.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)

	if deps.UploadDir != "" {
		fs := http.FileServer(http.Dir(deps.UploadDir))
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", fs)).Methods(http.MethodGet)
	}

	limited := newLimiterMiddleware(deps.Sessions, deps.RateRPS, deps.RateBurst)
	return logRequests(limited(r))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// logRequests emits a concise summary line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("incoming_request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		telemetry.RequestsTotal.WithLabelValues(r.URL.Path, statusClass(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
