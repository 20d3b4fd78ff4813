package recorder

import (
	"log/slog"
	"sync"

	"github.com/getmockd/mockserver/pkg/logging"
)

// DefaultUnmatchedCapacity bounds the unmatched bucket when no capacity is
// configured, since unrouted traffic is not tied to any mock's lifetime.
const DefaultUnmatchedCapacity = 1000

// Option configures a Recorder.
type Option func(*Recorder)

// WithCapacity bounds every mock log to n events (oldest dropped).
// Zero or negative means unbounded.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		r.capacity = n
	}
}

// WithUnmatchedCapacity bounds the unmatched bucket. Zero or negative means
// unbounded.
func WithUnmatchedCapacity(n int) Option {
	return func(r *Recorder) {
		r.unmatchedCapacity = n
	}
}

// WithSink forwards every accepted event to s.
func WithSink(s Sink) Option {
	return func(r *Recorder) {
		r.sink = s
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// Recorder owns the per-mock event logs.
type Recorder struct {
	capacity          int
	unmatchedCapacity int
	sink              Sink
	log               *slog.Logger

	mu        sync.Mutex
	live      map[string]*Log
	order     []string
	retired   map[string][]*Log
	known     map[string]struct{}
	unmatched *Log
}

// New creates a Recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		unmatchedCapacity: DefaultUnmatchedCapacity,
		log:               logging.Nop(),
		live:              make(map[string]*Log),
		retired:           make(map[string][]*Log),
		known:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.unmatched = newLog(UnmatchedBucket, r.unmatchedCapacity, r.sink, r.log)
	return r
}

// Open creates the live log for name and returns it. If a live log already
// exists for name it is returned unchanged.
func (r *Recorder) Open(name string) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.live[name]; ok {
		return l
	}
	l := newLog(name, r.capacity, r.sink, r.log)
	r.live[name] = l
	r.known[name] = struct{}{}
	r.order = append(r.order, name)
	return l
}

// Close ends the live log for name. With skipReport the log is discarded:
// later appends only reach the sink. Otherwise the log is retired and its
// events, including those appended by requests still in flight, are
// returned by the next peek covering name.
//
// It returns the events held by the log at the time of the call.
func (r *Recorder) Close(name string, skipReport bool) []Event {
	r.mu.Lock()
	l, ok := r.live[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.live, name)
	r.removeOrder(name)
	if !skipReport {
		r.retired[name] = append(r.retired[name], l)
	}
	r.mu.Unlock()

	if skipReport {
		l.discard()
		return nil
	}
	return l.Events()
}

// Live returns the live log for name, if any.
func (r *Recorder) Live(name string) (*Log, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.live[name]
	return l, ok
}

// Unmatched returns the log of requests no mock accepted.
func (r *Recorder) Unmatched() *Log {
	return r.unmatched
}

// Peek returns the events recorded for name, oldest first: events of
// retired logs come before the live log's events. Retired logs are dropped
// once returned. A name that was ever opened yields an empty slice once
// nothing is left to report. The second value reports whether name is known.
func (r *Recorder) Peek(name string) ([]Event, bool) {
	if name == UnmatchedBucket {
		return r.unmatched.Events(), true
	}

	r.mu.Lock()
	retired := r.retired[name]
	delete(r.retired, name)
	l, live := r.live[name]
	_, known := r.known[name]
	r.mu.Unlock()

	if !known {
		return nil, false
	}

	events := []Event{}
	for _, rl := range retired {
		events = append(events, rl.Events()...)
	}
	if live {
		events = append(events, l.Events()...)
	}
	return events, true
}

// PeekAll returns the events of every live mock (present even when empty),
// of every retired log not yet reported, and of the unmatched bucket when
// it is not empty. Retired logs are dropped once returned.
func (r *Recorder) PeekAll() map[string][]Event {
	r.mu.Lock()
	live := make([]*Log, 0, len(r.order))
	for _, name := range r.order {
		live = append(live, r.live[name])
	}
	retired := r.retired
	r.retired = make(map[string][]*Log)
	r.mu.Unlock()

	out := make(map[string][]Event, len(live)+len(retired)+1)
	for name, logs := range retired {
		for _, rl := range logs {
			out[name] = append(out[name], rl.Events()...)
		}
	}
	for _, l := range live {
		out[l.name] = append(out[l.name], l.Events()...)
	}
	for name, events := range out {
		if events == nil {
			out[name] = []Event{}
		}
	}
	if u := r.unmatched.Events(); len(u) > 0 {
		out[UnmatchedBucket] = u
	}
	return out
}

func (r *Recorder) removeOrder(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
