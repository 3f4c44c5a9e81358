package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/kernsim/internal/config"
	"github.com/me/kernsim/internal/sim"
	"github.com/me/kernsim/internal/store"
	"github.com/me/kernsim/internal/workload"
	"github.com/me/kernsim/pkg/model"
)

// Version is reported by /health and the CLI.
const Version = "0.1.0"

// DefaultMaxRuns is the number of simulations the server executes at once.
const DefaultMaxRuns = 4

// RunFunc executes one workload. sim.Run is the default.
type RunFunc func(ctx context.Context, cfg config.SimConfig, w *workload.Workload, logger *slog.Logger) (*model.Report, error)

// Server is the kernsim REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	run       RunFunc
	slots     *runSlots
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithRunner replaces the simulation entry point.
func WithRunner(fn RunFunc) Option {
	return func(s *Server) {
		s.run = fn
	}
}

// WithMaxRuns bounds the number of concurrently executing runs.
func WithMaxRuns(n int) Option {
	return func(s *Server) {
		s.slots = newRunSlots(n)
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		run:       sim.Run,
		slots:     newRunSlots(DefaultMaxRuns),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
			})
		})

		r.Get("/policies", s.handleListPolicies)
		r.Get("/workloads", s.handleListWorkloads)
	})
}

// runSlots is a counting semaphore over in-flight simulations.
type runSlots struct {
	ch chan struct{}
}

// newRunSlots returns nil (unlimited) when n <= 0.
func newRunSlots(n int) *runSlots {
	if n <= 0 {
		return nil
	}
	return &runSlots{ch: make(chan struct{}, n)}
}

// tryAcquire takes a slot without waiting.
func (s *runSlots) tryAcquire() bool {
	if s == nil {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *runSlots) release() {
	if s == nil {
		return
	}
	<-s.ch
}

func (s *runSlots) inUse() int {
	if s == nil {
		return 0
	}
	return len(s.ch)
}

// capacity is 0 when unlimited.
func (s *runSlots) capacity() int {
	if s == nil {
		return 0
	}
	return cap(s.ch)
}
