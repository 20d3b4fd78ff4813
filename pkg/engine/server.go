package engine

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/script"
)

// Server is the mock server engine. It owns the registry, the listeners
// and the event recorder.
type Server struct {
	cfg        *config.ServerConfiguration
	log        *slog.Logger
	metrics    *metrics.Metrics
	sink       recorder.Sink
	scripts    *script.Engine
	recorder   *recorder.Recorder
	listeners  *ListenerManager
	registry   *Registry
	dispatcher *Dispatcher

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics reports server metrics to m.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithSink forwards every recorded event to sink, e.g. an archive.
func WithSink(sink recorder.Sink) ServerOption {
	return func(s *Server) {
		s.sink = sink
	}
}

// NewServer creates a Server with the given configuration.
// A nil cfg uses config.DefaultServerConfiguration.
func NewServer(cfg *config.ServerConfiguration, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfiguration()
	}

	s := &Server{
		cfg: cfg,
		log: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.scripts = script.NewEngine(
		script.WithTimeout(cfg.EvalTimeout),
		script.WithLogger(s.log.With("component", "script")),
	)

	recOpts := []recorder.Option{
		recorder.WithCapacity(cfg.MaxEventsPerMock),
		recorder.WithUnmatchedCapacity(cfg.MaxUnmatchedEvents),
		recorder.WithLogger(s.log.With("component", "recorder")),
	}
	if s.sink != nil {
		recOpts = append(recOpts, recorder.WithSink(s.sink))
	}
	s.recorder = recorder.New(recOpts...)

	// The dispatcher needs the registry and the registry needs the
	// listeners, whose handler factory needs the dispatcher.
	s.listeners = NewListenerManager(
		func(port int) http.Handler { return s.dispatcher.Handler(port) },
		WithBindHost(cfg.BindHost),
		WithTimeouts(time.Duration(cfg.ReadTimeout)*time.Second, time.Duration(cfg.WriteTimeout)*time.Second),
		WithShutdownTimeout(time.Duration(cfg.ShutdownTimeout)*time.Second),
		WithListenerLogger(s.log.With("component", "listener")),
		WithListenerMetrics(s.metrics),
	)
	s.registry = NewRegistry(s.listeners, s.recorder, s.scripts,
		WithRegistryLogger(s.log.With("component", "registry")),
		WithRegistryMetrics(s.metrics),
	)
	s.dispatcher = NewDispatcher(s.registry, s.scripts, s.recorder,
		WithMaxBodySize(cfg.MaxBodySize),
		WithDispatcherLogger(s.log.With("component", "dispatch")),
		WithDispatcherMetrics(s.metrics),
	)

	return s
}

// Start marks the server running. Listeners are bound lazily as mocks are
// added.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerRunning
	}
	s.running = true
	s.startTime = time.Now()
	s.log.Info("engine started", "bind_host", s.cfg.BindHost, "eval_timeout", s.scripts.Timeout())
	return nil
}

// Stop removes every mock (retiring their logs) and closes all listeners,
// waiting for in-flight requests to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.registry.RemoveAll()
	s.listeners.CloseAll()
	s.running = false
	s.log.Info("engine stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime in seconds.
func (s *Server) Uptime() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return int(time.Since(s.startTime).Seconds())
}

// AddMock registers def. The read lock is held until the port is bound so
// a concurrent Stop cannot miss the new listener.
func (s *Server) AddMock(def *mock.Definition) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return ErrServerNotRunning
	}
	return s.registry.Add(def)
}

// RemoveMock unregisters the named mock. Unless skipReport is set, the
// events recorded so far are returned and remain available to one more peek.
func (s *Server) RemoveMock(name string, skipReport bool) ([]recorder.Event, error) {
	return s.registry.Remove(name, skipReport)
}

// ListMocks returns the registered definitions in registration order.
func (s *Server) ListMocks() []*mock.Definition {
	return s.registry.List()
}

// GetMock returns the named definition.
func (s *Server) GetMock(name string) (*mock.Definition, bool) {
	return s.registry.Get(name)
}

// PeekMocks returns the recorded events of every mock.
func (s *Server) PeekMocks() map[string][]recorder.Event {
	return s.recorder.PeekAll()
}

// PeekMock returns the recorded events of one mock. A mock that was removed
// or already fully reported yields an empty slice; ErrNotFound means the name
// was never registered.
func (s *Server) PeekMock(name string) ([]recorder.Event, error) {
	events, ok := s.recorder.Peek(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return events, nil
}

// LoadMocks registers every mock of coll in order, stopping at the first
// failure. Mocks registered before the failure stay registered.
func (s *Server) LoadMocks(coll *config.MockCollection) (int, error) {
	if coll == nil {
		return 0, nil
	}
	for i, def := range coll.Mocks {
		if err := s.AddMock(def); err != nil {
			return i, fmt.Errorf("mocks[%d]: %w", i, err)
		}
	}
	return len(coll.Mocks), nil
}

// BoundPorts returns the ports with an open listener.
func (s *Server) BoundPorts() []int {
	return s.listeners.BoundPorts()
}

// Registry returns the mock registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Recorder returns the event recorder.
func (s *Server) Recorder() *recorder.Recorder {
	return s.recorder
}

// Metrics returns the server metrics, or nil if none were configured.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Config returns the server configuration.
func (s *Server) Config() *config.ServerConfiguration {
	return s.cfg
}
