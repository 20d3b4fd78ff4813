package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/script"
)

// Entry is a registered mock together with everything compiled from its
// definition. Entries are immutable.
type Entry struct {
	// Def is the registered definition. It must not be modified.
	Def *mock.Definition

	path      string
	predicate *script.Program
	response  *script.Program
	headers   []mock.Parameter
	log       *recorder.Log
}

// Name returns the mock name.
func (e *Entry) Name() string {
	return e.Def.Name
}

// Log returns the event log requests served by this entry append to.
func (e *Entry) Log() *recorder.Log {
	return e.log
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	entries []*Entry
	byName  map[string]*Entry
	byPort  map[int][]*Entry
}

var emptySnapshot = &Snapshot{
	byName: map[string]*Entry{},
	byPort: map[int][]*Entry{},
}

// Len returns the number of registered mocks.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Get returns the entry registered under name.
func (s *Snapshot) Get(name string) (*Entry, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Candidates returns the mocks registered on port for path that accept
// method, in registration order. path is compared after normalization.
func (s *Snapshot) Candidates(port int, path, method string) []*Entry {
	path = mock.NormalizePath(path)
	var out []*Entry
	for _, e := range s.byPort[port] {
		if e.path == path && e.Def.Method.Matches(method) {
			out = append(out, e)
		}
	}
	return out
}

// with returns a copy of s with e appended.
func (s *Snapshot) with(e *Entry) *Snapshot {
	next := &Snapshot{
		entries: make([]*Entry, 0, len(s.entries)+1),
		byName:  make(map[string]*Entry, len(s.byName)+1),
		byPort:  make(map[int][]*Entry, len(s.byPort)+1),
	}
	next.entries = append(next.entries, s.entries...)
	next.entries = append(next.entries, e)
	for _, x := range next.entries {
		next.byName[x.Def.Name] = x
		next.byPort[x.Def.Port] = append(next.byPort[x.Def.Port], x)
	}
	return next
}

// without returns a copy of s with the named entry removed.
func (s *Snapshot) without(name string) *Snapshot {
	next := &Snapshot{
		entries: make([]*Entry, 0, len(s.entries)),
		byName:  make(map[string]*Entry, len(s.byName)),
		byPort:  make(map[int][]*Entry, len(s.byPort)),
	}
	for _, x := range s.entries {
		if x.Def.Name == name {
			continue
		}
		next.entries = append(next.entries, x)
		next.byName[x.Def.Name] = x
		next.byPort[x.Def.Port] = append(next.byPort[x.Def.Port], x)
	}
	return next
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the operational logger.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRegistryMetrics reports the registered mock count to m.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry is the authoritative set of registered mocks. Writes are
// serialized; reads load an immutable Snapshot without locking.
type Registry struct {
	listeners *ListenerManager
	recorder  *recorder.Recorder
	scripts   *script.Engine
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// NewRegistry creates an empty registry that binds ports through
// listeners, records through rec and compiles expressions with scripts.
func NewRegistry(listeners *ListenerManager, rec *recorder.Recorder, scripts *script.Engine, opts ...RegistryOption) *Registry {
	r := &Registry{
		listeners: listeners,
		recorder:  rec,
		scripts:   scripts,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(emptySnapshot)
	return r
}

// Snapshot returns the current registry contents.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Add validates, compiles and registers def, binding its port if needed.
// Nothing is registered when Add fails.
func (r *Registry) Add(def *mock.Definition) error {
	if def == nil {
		return fmt.Errorf("%w: mock cannot be nil", ErrInvalidDefinition)
	}
	def = def.Clone()

	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if def.Name == recorder.UnmatchedBucket {
		return fmt.Errorf("%w: name %q is reserved", ErrInvalidDefinition, def.Name)
	}
	if !mock.ValidPort(def.Port) {
		return fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidPort, def.Port, mock.MinPort, mock.MaxPort)
	}

	entry, err := r.compile(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, exists := cur.byName[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
	}

	if err := r.listeners.Acquire(def.Port); err != nil {
		r.log.Warn("failed to bind mock port", "mock", def.Name, "port", def.Port, "error", err)
		return err
	}

	entry.log = r.recorder.Open(def.Name)
	next := cur.with(entry)
	r.snap.Store(next)
	r.metrics.SetMocks(next.Len())

	r.log.Info("mock added", "mock", def.Name, "port", def.Port, "path", entry.path, "method", string(def.Method))
	return nil
}

func (r *Registry) compile(def *mock.Definition) (*Entry, error) {
	predicate, err := r.scripts.Compile(script.KindPredicate, def.Predicate)
	if err != nil {
		return nil, fmt.Errorf("%w: predicate: %w", ErrInvalidDefinition, err)
	}
	response, err := r.scripts.Compile(script.KindResponse, def.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: response: %w", ErrInvalidDefinition, err)
	}
	headers, err := mock.ParseHeaderTemplate(def.ResponseHeaders)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return &Entry{
		Def:       def,
		path:      mock.NormalizePath(def.Path),
		predicate: predicate,
		response:  response,
		headers:   headers,
	}, nil
}

// Remove unregisters the named mock and releases its port. With skipReport
// the mock's events are discarded; otherwise they are returned and stay
// available to the next peek.
func (r *Registry) Remove(name string, skipReport bool) ([]recorder.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	entry, ok := cur.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	next := cur.without(name)
	r.snap.Store(next)
	events := r.recorder.Close(name, skipReport)
	r.listeners.Release(entry.Def.Port)
	r.metrics.SetMocks(next.Len())
	r.metrics.ForgetMock(name)

	r.log.Info("mock removed", "mock", name, "port", entry.Def.Port, "skipReport", skipReport)
	return events, nil
}

// RemoveAll unregisters every mock, discarding nothing: all logs are retired.
func (r *Registry) RemoveAll() {
	for _, def := range r.List() {
		if _, err := r.Remove(def.Name, false); err != nil {
			r.log.Debug("mock already removed", "mock", def.Name)
		}
	}
}

// List returns copies of the registered definitions in registration order.
func (r *Registry) List() []*mock.Definition {
	snap := r.snap.Load()
	out := make([]*mock.Definition, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, e.Def.Clone())
	}
	return out
}

// Get returns a copy of the named definition.
func (r *Registry) Get(name string) (*mock.Definition, bool) {
	e, ok := r.snap.Load().Get(name)
	if !ok {
		return nil, false
	}
	return e.Def.Clone(), true
}

// Candidates returns the mocks on port for path accepting method, in
// registration order.
func (r *Registry) Candidates(port int, path, method string) []*Entry {
	return r.snap.Load().Candidates(port, path, method)
}

// Len returns the number of registered mocks.
func (r *Registry) Len() int {
	return r.snap.Load().Len()
}
