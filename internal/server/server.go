// Package server implements the HTTP API surface: REST endpoints over the
// query facade, an SSE event stream off the bus, and a WebSocket bridge to
// mux session terminals.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/query"
)

// SubscriptionStore persists push subscription records.
type SubscriptionStore interface {
	SavePushSubscription(ctx context.Context, sub ports.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Options tunes server behavior. The zero value uses production defaults.
type Options struct {
	// HeartbeatInterval is the SSE keep-alive cadence.
	HeartbeatInterval time.Duration
}

func (o *Options) fill() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	addr       string
	queries    *query.Facade
	muxCtl     ports.MuxController
	subs       SubscriptionStore
	bus        ports.EventBus
	opts       Options
}

// New creates the server and registers all routes.
func New(addr string, queries *query.Facade, muxCtl ports.MuxController, subs SubscriptionStore, eventBus ports.EventBus, opts Options) *Server {
	opts.fill()

	s := &Server{
		addr:    addr,
		queries: queries,
		muxCtl:  muxCtl,
		subs:    subs,
		bus:     eventBus,
		opts:    opts,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/conversation", s.handleConversation).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/join", s.handleJoin).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/inject", s.handleInject).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/mux", s.handleTerminate).Methods(http.MethodDelete)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/analytics/tokens", s.handleTokenAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/analytics/tools", s.handleToolAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/push/subscriptions", s.handlePushSubscribe).Methods(http.MethodPost)
	api.HandleFunc("/push/subscriptions", s.handlePushUnsubscribe).Methods(http.MethodDelete)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/ws/terminal/{name}", s.handleTerminal).Methods(http.MethodGet)

	s.router = r
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: recoverMiddleware(requestLogMiddleware(r)),
		// No ReadTimeout/WriteTimeout: the SSE and WebSocket endpoints are
		// long-lived and manage their own deadlines.
	}

	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. It returns once the listener fails or is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogMiddleware logs completed requests at debug level.
func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// recoverMiddleware converts handler panics into 500 responses.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var muxErr *domain.MuxError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrMuxSessionNotFound):
		writeError(w, http.StatusNotFound, "mux session not found")
	case errors.Is(err, domain.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &muxErr):
		writeError(w, http.StatusBadGateway, muxErr.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
