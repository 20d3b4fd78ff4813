package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
)

// DefaultShutdownTimeout bounds connection draining after a port is unbound.
const DefaultShutdownTimeout = 5 * time.Second

// HandlerFactory returns the handler serving a newly bound port.
type HandlerFactory func(port int) http.Handler

// ListenerOption configures a ListenerManager.
type ListenerOption func(*ListenerManager)

// WithBindHost sets the interface listeners bind to. Empty binds all interfaces.
func WithBindHost(host string) ListenerOption {
	return func(lm *ListenerManager) {
		lm.host = host
	}
}

// WithTimeouts sets the read and write timeouts of every per-port server.
func WithTimeouts(read, write time.Duration) ListenerOption {
	return func(lm *ListenerManager) {
		lm.readTimeout = read
		lm.writeTimeout = write
	}
}

// WithShutdownTimeout bounds connection draining after unbind.
func WithShutdownTimeout(d time.Duration) ListenerOption {
	return func(lm *ListenerManager) {
		if d > 0 {
			lm.shutdownTimeout = d
		}
	}
}

// WithListenerLogger sets the operational logger.
func WithListenerLogger(log *slog.Logger) ListenerOption {
	return func(lm *ListenerManager) {
		if log != nil {
			lm.log = log
		}
	}
}

// WithListenerMetrics reports the bound listener count to m.
func WithListenerMetrics(m *metrics.Metrics) ListenerOption {
	return func(lm *ListenerManager) {
		lm.metrics = m
	}
}

// ListenerManager owns one socket per port in use. A port moves from
// unbound to bound on its first Acquire and back on its last Release;
// transitions of the same port are serialized.
type ListenerManager struct {
	handlerFor      HandlerFactory
	host            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	log             *slog.Logger
	metrics         *metrics.Metrics

	mu     sync.Mutex
	ports  map[int]*portState
	bound  int
	drains map[chan struct{}]struct{}
}

// portState is never removed from the ports map, so every Acquire and
// Release of a port locks the same value.
type portState struct {
	mu   sync.Mutex
	refs int
	ln   net.Listener
	srv  *http.Server
	done chan struct{}
}

// NewListenerManager creates a ListenerManager serving bound ports with
// the handlers returned by handlerFor.
func NewListenerManager(handlerFor HandlerFactory, opts ...ListenerOption) *ListenerManager {
	lm := &ListenerManager{
		handlerFor:      handlerFor,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             logging.Nop(),
		ports:           make(map[int]*portState),
		drains:          make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

func (lm *ListenerManager) state(port int) *portState {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ps, ok := lm.ports[port]
	if !ok {
		ps = &portState{}
		lm.ports[port] = ps
	}
	return ps
}

// Acquire takes a reference on port, binding it if this is the first
// reference. A failed bind leaves the port unbound and unreferenced.
func (lm *ListenerManager) Acquire(port int) error {
	ps := lm.state(port)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.refs > 0 {
		ps.refs++
		return nil
	}

	addr := net.JoinHostPort(lm.host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrListenerBindFailure, addr, err)
	}

	srv := &http.Server{
		Handler:           lm.handlerFor(port),
		ReadTimeout:       lm.readTimeout,
		ReadHeaderTimeout: lm.readTimeout,
		WriteTimeout:      lm.writeTimeout,
		ErrorLog:          slog.NewLogLogger(lm.log.Handler(), slog.LevelDebug),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			lm.log.Error("mock listener error", "port", port, "error", err)
		}
	}()

	ps.refs = 1
	ps.ln, ps.srv, ps.done = ln, srv, done
	lm.adjustBound(1)
	lm.log.Info("listener bound", "port", port)
	return nil
}

// Release drops a reference on port. When the last reference goes the
// socket is closed before Release returns, so new connections are refused;
// in-flight requests are drained in the background.
func (lm *ListenerManager) Release(port int) {
	ps := lm.state(port)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.refs == 0 {
		return
	}
	ps.refs--
	if ps.refs > 0 {
		return
	}

	lm.unbindLocked(port, ps, false)
}

// unbindLocked closes the socket of ps. With wait it also waits for the
// server to drain. ps.mu must be held.
func (lm *ListenerManager) unbindLocked(port int, ps *portState, wait bool) {
	ln, srv, done := ps.ln, ps.srv, ps.done
	ps.ln, ps.srv, ps.done = nil, nil, nil
	ps.refs = 0

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		lm.log.Warn("failed to close listener", "port", port, "error", err)
	}
	lm.adjustBound(-1)
	lm.log.Info("listener unbound", "port", port)

	drain := func() {
		ctx, cancel := context.WithTimeout(context.Background(), lm.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			lm.log.Warn("listener shutdown did not drain cleanly", "port", port, "error", err)
			_ = srv.Close()
		}
		<-done
	}
	if wait {
		drain()
		return
	}
	fin := make(chan struct{})
	lm.mu.Lock()
	lm.drains[fin] = struct{}{}
	lm.mu.Unlock()
	go func() {
		defer func() {
			lm.mu.Lock()
			delete(lm.drains, fin)
			lm.mu.Unlock()
			close(fin)
		}()
		drain()
	}()
}

// IsBound reports whether port currently has a socket.
func (lm *ListenerManager) IsBound(port int) bool {
	lm.mu.Lock()
	ps, ok := lm.ports[port]
	lm.mu.Unlock()
	if !ok {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.refs > 0
}

// Refs returns the number of references held on port.
func (lm *ListenerManager) Refs(port int) int {
	lm.mu.Lock()
	ps, ok := lm.ports[port]
	lm.mu.Unlock()
	if !ok {
		return 0
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.refs
}

// BoundPorts returns the bound ports in ascending order.
func (lm *ListenerManager) BoundPorts() []int {
	lm.mu.Lock()
	candidates := make(map[int]*portState, len(lm.ports))
	for port, ps := range lm.ports {
		candidates[port] = ps
	}
	lm.mu.Unlock()

	ports := []int{}
	for port, ps := range candidates {
		ps.mu.Lock()
		if ps.refs > 0 {
			ports = append(ports, port)
		}
		ps.mu.Unlock()
	}
	slices.Sort(ports)
	return ports
}

// CloseAll unbinds every port regardless of references and waits for all
// servers to drain, including those unbound earlier by Release.
func (lm *ListenerManager) CloseAll() {
	for _, port := range lm.BoundPorts() {
		ps := lm.state(port)
		ps.mu.Lock()
		if ps.refs > 0 {
			lm.unbindLocked(port, ps, true)
		}
		ps.mu.Unlock()
	}

	lm.mu.Lock()
	pending := make([]chan struct{}, 0, len(lm.drains))
	for fin := range lm.drains {
		pending = append(pending, fin)
	}
	lm.mu.Unlock()
	for _, fin := range pending {
		<-fin
	}
}

func (lm *ListenerManager) adjustBound(delta int) {
	lm.mu.Lock()
	lm.bound += delta
	n := lm.bound
	lm.mu.Unlock()
	lm.metrics.SetBoundListeners(n)
}
