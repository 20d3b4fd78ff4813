package recorder

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderedSink struct {
	mu     sync.Mutex
	gate   chan struct{}
	events []Event
}

func (s *orderedSink) Write(ev Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *orderedSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return texts(s.events)
}

func TestAsyncSink_DrainsInOrderOnClose(t *testing.T) {
	next := &orderedSink{}
	a := NewAsyncSink(next, 8, nil)

	want := make([]string, 0, 50)
	for i := range 50 {
		text := fmt.Sprintf("e%d", i)
		want = append(want, text)
		require.NoError(t, a.Write(event(text)))
	}
	require.NoError(t, a.Close())

	assert.Equal(t, want, next.texts())
	assert.ErrorIs(t, a.Write(event("late")), ErrSinkClosed)
	assert.NoError(t, a.Close())
}

func TestAsyncSink_WriteDoesNotWaitForSlowSink(t *testing.T) {
	next := &orderedSink{gate: make(chan struct{})}
	a := NewAsyncSink(next, 4, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 {
			_ = a.Write(event(fmt.Sprintf("e%d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on the underlying sink")
	}
	assert.Empty(t, next.texts())

	close(next.gate)
	require.NoError(t, a.Close())
	assert.Equal(t, []string{"e0", "e1", "e2"}, next.texts())
}

func TestAsyncSink_FailuresDoNotStopWriter(t *testing.T) {
	next := &countingSink{err: errors.New("disk full")}
	a := NewAsyncSink(next, 0, nil)
	for range 5 {
		require.NoError(t, a.Write(event("x")))
	}
	require.NoError(t, a.Close())
	assert.Equal(t, int64(5), next.n.Load())
}

func TestAsyncSink_AsRecorderSink(t *testing.T) {
	next := &orderedSink{}
	a := NewAsyncSink(next, 0, nil)
	r := New(WithSink(a))
	l := r.Open("r1")
	l.Append(event("a"))
	r.Close("r1", true)
	l.Append(event("in-flight"))

	require.NoError(t, a.Close())
	assert.Equal(t, []string{"a", "in-flight"}, next.texts())
}
