package recorder

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/getmockd/mockserver/pkg/logging"
)

// DefaultQueueSize is the number of events an AsyncSink buffers before
// Write blocks.
const DefaultQueueSize = 1024

// ErrSinkClosed is returned by AsyncSink.Write after Close.
var ErrSinkClosed = errors.New("sink closed")

// AsyncSink moves writes to a slower Sink, such as a database, off the
// request path. Events are queued and written in order by one goroutine.
// Write blocks only when the queue is full.
type AsyncSink struct {
	next Sink
	log  *slog.Logger

	mu       sync.RWMutex
	closed   bool
	queue    chan Event
	closedCh chan struct{} // closed when writeLoop has exited
}

var _ Sink = (*AsyncSink)(nil)

// NewAsyncSink starts a writer forwarding events to next. A size of zero
// or less uses DefaultQueueSize. Failures of next are logged to log.
func NewAsyncSink(next Sink, size int, log *slog.Logger) *AsyncSink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = logging.Nop()
	}
	a := &AsyncSink{
		next:     next,
		log:      log,
		queue:    make(chan Event, size),
		closedCh: make(chan struct{}),
	}
	go a.writeLoop()
	return a
}

func (a *AsyncSink) writeLoop() {
	defer close(a.closedCh)
	for ev := range a.queue {
		if err := a.next.Write(ev); err != nil {
			a.log.Warn("failed to archive event", "mock", ev.Mock, "id", ev.ID, "error", err)
		}
	}
}

// Write queues ev. It implements Sink.
func (a *AsyncSink) Write(ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSinkClosed
	}
	a.queue <- ev
	return nil
}

// Close stops accepting events and waits until every queued event has been
// handed to the underlying sink. Safe to call multiple times.
func (a *AsyncSink) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.closedCh
	return nil
}
