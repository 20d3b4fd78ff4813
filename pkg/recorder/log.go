package recorder

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Log is the append-only event trail of one mock.
type Log struct {
	name     string
	capacity int
	sink     Sink
	log      *slog.Logger

	mu        sync.Mutex
	events    []Event
	discarded bool
}

func newLog(name string, capacity int, sink Sink, log *slog.Logger) *Log {
	return &Log{name: name, capacity: capacity, sink: sink, log: log}
}

// Name returns the mock name the log belongs to.
func (l *Log) Name() string {
	return l.name
}

// Append records ev. The event's Mock field is set to the log's name and an
// ID is assigned if missing. A discarded log keeps nothing in memory but
// still forwards ev to the sink.
func (l *Log) Append(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Mock = l.name

	l.mu.Lock()
	if !l.discarded {
		// FIFO eviction: remove oldest if at capacity
		if l.capacity > 0 && len(l.events) >= l.capacity {
			l.events = l.events[1:]
		}
		l.events = append(l.events, ev)
	}
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Write(ev); err != nil {
			l.log.Warn("failed to archive event", "mock", l.name, "id", ev.ID, "error", err)
		}
	}
}

// Events returns a copy of the recorded events, oldest first.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Log) discard() {
	l.mu.Lock()
	l.discarded = true
	l.events = nil
	l.mu.Unlock()
}
