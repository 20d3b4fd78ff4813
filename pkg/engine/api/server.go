package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
)

// EngineController is the interface the API uses to control the engine.
// This is implemented by engine.Server.
type EngineController interface {
	// Status
	IsRunning() bool
	Uptime() int

	// Mocks
	AddMock(def *mock.Definition) error
	RemoveMock(name string, skipReport bool) ([]recorder.Event, error)
	ListMocks() []*mock.Definition
	GetMock(name string) (*mock.Definition, bool)

	// Events
	PeekMocks() map[string][]recorder.Event
	PeekMock(name string) ([]recorder.Event, error)
}

// Server is the admin API server.
type Server struct {
	engine      EngineController
	addr        string
	metrics     *metrics.Metrics
	log         *slog.Logger
	maxBodySize int64
	handler     http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics serves m on GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMaxBodySize bounds the size of mock definitions accepted by POST /mocks.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBodySize = n
	}
}

// NewServer creates an admin API server for engine listening on addr.
func NewServer(engine EngineController, addr string, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		addr:   addr,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.withMiddleware(mux)
	return s
}

// Handler returns the API's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the admin address and serves in the background. The bind
// error, if any, is returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("admin API already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin API listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin API server error", "error", err)
		}
	}()

	s.httpServer, s.listener, s.done = srv, ln, done
	s.log.Info("admin API started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the admin API server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.httpServer, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-done
	s.log.Info("admin API stopped")
	return err
}

// Addr returns the address the server is bound to, or the configured
// address before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health
	mux.HandleFunc("GET /health", s.handleHealth)

	// Mocks
	mux.HandleFunc("GET /mocks", s.handleListMocks)
	mux.HandleFunc("POST /mocks", s.handleAddMock)
	mux.HandleFunc("GET /mocks/{name}", s.handleGetMock)
	mux.HandleFunc("DELETE /mocks/{name}", s.handleRemoveMock)

	// Events
	mux.HandleFunc("GET /events", s.handlePeekMocks)
	mux.HandleFunc("GET /mocks/{name}/events", s.handlePeekMock)

	// Metrics
	mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.log.Debug("admin request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
