package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestArchive_WriteAndList(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, a.Write(recorder.Event{
		ID:        "e1",
		Mock:      "r1",
		Timestamp: base,
		Port:      8080,
		Method:    "POST",
		Path:      "/echo",
		Request: mock.RequestReport{
			Text:         "ping",
			Headers:      []mock.Parameter{{Name: "Content-Type", Value: "text/plain"}},
			PathSegments: []string{"echo"},
		},
		Response: mock.ResponseReport{StatusCode: 200, Text: "pong"},
	}))
	require.NoError(t, a.Write(recorder.Event{
		ID:        "e2",
		Mock:      recorder.UnmatchedBucket,
		Timestamp: base.Add(time.Second),
		Response:  mock.ResponseReport{StatusCode: 404, Text: "No mock found"},
	}))

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := a.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "e1", all[0].ID)
	assert.Equal(t, base, all[0].Timestamp)
	assert.Equal(t, "ping", all[0].Request.Text)
	assert.Equal(t, []string{"echo"}, all[0].Request.PathSegments)
	assert.Equal(t, "pong", all[0].Response.Text)
	assert.Equal(t, 8080, all[0].Port)

	only, err := a.List(ctx, Query{Mock: "r1"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "r1", only[0].Mock)

	recent, err := a.List(ctx, Query{Since: base.Add(500 * time.Millisecond)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e2", recent[0].ID)

	limited, err := a.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestArchive_AsRecorderSink(t *testing.T) {
	a := newTestArchive(t)
	r := recorder.New(recorder.WithSink(a))

	l := r.Open("r1")
	l.Append(recorder.Event{Timestamp: time.Now(), Response: mock.ResponseReport{StatusCode: 200}})
	r.Close("r1", true)
	l.Append(recorder.Event{Timestamp: time.Now()})

	n, err := a.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
