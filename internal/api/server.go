// Package api exposes the tracker over HTTP.
//
// Routes:
//
//	GET  /healthz   liveness and store reachability
//	GET  /today     today's total with goal progress (rollover applied)
//	GET  /history   past daily totals, newest first (?limit=N)
//	POST /readings  push an odometer value into the manual source
//	GET  /metrics   Prometheus exposition
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/stepd/internal/publish"
	"github.com/roach88/stepd/internal/store"
	"github.com/roach88/stepd/internal/tracker"
)

// Today reads the current day's record.
type Today interface {
	Today(ctx context.Context) tracker.Record
}

// HistoryReader lists past daily totals.
type HistoryReader interface {
	History(ctx context.Context, limit int) ([]store.DailyTotal, error)
}

// Ingester accepts pushed odometer values.
type Ingester interface {
	Push(value int64) error
}

// Pinger checks backing storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handlers. Ingest, Metrics and Health are optional.
type Deps struct {
	Tracker Today
	History HistoryReader
	Ingest  Ingester
	Health  Pinger
	Metrics http.Handler
	Goal    int64
	Body    publish.Body
}

// Server is a chi router behind a stdlib http.Server.
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *http.Server
}

// NewServer builds the router for deps, listening on addr once Run is called.
func NewServer(addr string, deps Deps) *Server {
	h := &handlers{deps: deps, validate: validator.New(validator.WithRequiredStructEnabled())}

	m := chi.NewRouter()
	m.Use(middleware.RequestID)
	m.Use(middleware.Recoverer)
	m.Use(requestLogger)

	m.Get("/healthz", h.healthz)
	m.Get("/today", h.today)
	m.Get("/history", h.history)
	m.Post("/readings", h.postReading)
	if deps.Metrics != nil {
		m.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return &Server{
		addr: addr,
		mux:  m,
		srv: &http.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Addr returns the configured listening address.
func (s *Server) Addr() string { return s.addr }

// Run listens on the configured address and blocks until Shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("http listening", "addr", ln.Addr().String())
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
