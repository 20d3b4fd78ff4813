package engine

import (
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/script"
)

func TestRegistry_Add(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)

	require.NoError(t, reg.Add(&mock.Definition{Name: "r1", Port: port, Path: "/echo"}))
	assert.Equal(t, 1, reg.Len())
	assert.True(t, dialable(port))

	def, ok := reg.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "/echo", def.Path)
}

func TestRegistry_AddErrors(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)
	require.NoError(t, reg.Add(&mock.Definition{Name: "r1", Port: port, Path: "/a"}))

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	busy := occupied.Addr().(*net.TCPAddr).Port

	tests := []struct {
		name    string
		def     *mock.Definition
		wantErr []error
	}{
		{name: "nil", def: nil, wantErr: []error{ErrInvalidDefinition}},
		{name: "duplicate", def: &mock.Definition{Name: "r1", Port: port, Path: "/b"}, wantErr: []error{ErrDuplicateName}},
		{name: "port zero", def: &mock.Definition{Name: "p0", Port: 0}, wantErr: []error{ErrInvalidPort}},
		{name: "port too large", def: &mock.Definition{Name: "p1", Port: 70000}, wantErr: []error{ErrInvalidPort}},
		{name: "missing name", def: &mock.Definition{Port: port}, wantErr: []error{ErrInvalidDefinition}},
		{name: "reserved name", def: &mock.Definition{Name: recorder.UnmatchedBucket, Port: port}, wantErr: []error{ErrInvalidDefinition}},
		{name: "bad predicate", def: &mock.Definition{Name: "e1", Port: port, Predicate: "body =="}, wantErr: []error{ErrInvalidDefinition, script.ErrInvalidExpression}},
		{name: "non-bool predicate", def: &mock.Definition{Name: "e2", Port: port, Predicate: "'x'"}, wantErr: []error{ErrInvalidDefinition, script.ErrInvalidExpression}},
		{name: "bad response", def: &mock.Definition{Name: "e3", Port: port, Response: "nope("}, wantErr: []error{ErrInvalidDefinition, script.ErrInvalidExpression}},
		{name: "bad headers", def: &mock.Definition{Name: "e4", Port: port, ResponseHeaders: "broken"}, wantErr: []error{ErrInvalidDefinition}},
		{name: "bind failure", def: &mock.Definition{Name: "b1", Port: busy}, wantErr: []error{ErrListenerBindFailure}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Add(tt.def)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}

	// nothing but the first mock was registered
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("b1")
	assert.False(t, ok)
}

func TestRegistry_DuplicateIsNoOp(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)
	require.NoError(t, reg.Add(&mock.Definition{Name: "r1", Port: port, Path: "/a", Response: "'first'"}))

	err := reg.Add(&mock.Definition{Name: "r1", Port: port, Path: "/b", Response: "'second'"})
	require.ErrorIs(t, err, ErrDuplicateName)

	def, _ := reg.Get("r1")
	assert.Equal(t, "/a", def.Path)
	assert.Equal(t, "'first'", def.Response)
	assert.Equal(t, 1, reg.listeners.Refs(port))
}

func TestRegistry_Remove(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)
	require.NoError(t, reg.Add(&mock.Definition{Name: "a", Port: port, Path: "/a"}))
	require.NoError(t, reg.Add(&mock.Definition{Name: "b", Port: port, Path: "/b"}))
	assert.Equal(t, 2, reg.listeners.Refs(port))

	_, err := reg.Remove("a", false)
	require.NoError(t, err)
	assert.True(t, dialable(port), "port stays bound while another mock uses it")

	_, err = reg.Remove("a", false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Remove("b", true)
	require.NoError(t, err)
	assert.False(t, dialable(port))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_ReAddAfterRemove(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)
	def := &mock.Definition{Name: "r1", Port: port, Path: "/a"}

	require.NoError(t, reg.Add(def))
	_, err := reg.Remove("r1", true)
	require.NoError(t, err)
	require.NoError(t, reg.Add(def))
	assert.True(t, dialable(port))
}

func TestRegistry_ListOrderAndCopies(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Add(&mock.Definition{Name: name, Port: port, Path: "/x"}))
	}

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, "a", list[1].Name)
	assert.Equal(t, "b", list[2].Name)

	list[0].Path = "/mutated"
	def, _ := reg.Get("c")
	assert.Equal(t, "/x", def.Path)
}

func TestRegistry_AddCopiesDefinition(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	def := &mock.Definition{Name: "r1", Port: freePort(t), Path: "/a", StatusCode: intPtr(201)}
	require.NoError(t, reg.Add(def))

	def.Path = "/changed"
	*def.StatusCode = 500

	got, _ := reg.Get("r1")
	assert.Equal(t, "/a", got.Path)
	assert.Equal(t, 201, got.Status())
}

func TestRegistry_Candidates(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ports := freePorts(t, 2)
	p1, p2 := ports[0], ports[1]

	require.NoError(t, reg.Add(&mock.Definition{Name: "any", Port: p1, Path: "/echo"}))
	require.NoError(t, reg.Add(&mock.Definition{Name: "post", Port: p1, Path: "echo/", Method: mock.MethodPost}))
	require.NoError(t, reg.Add(&mock.Definition{Name: "get", Port: p1, Path: "/echo", Method: mock.MethodGet}))
	require.NoError(t, reg.Add(&mock.Definition{Name: "other-path", Port: p1, Path: "/other"}))
	require.NoError(t, reg.Add(&mock.Definition{Name: "other-port", Port: p2, Path: "/echo"}))

	names := func(entries []*Entry) []string {
		out := []string{}
		for _, e := range entries {
			out = append(out, e.Name())
		}
		return out
	}

	assert.Equal(t, []string{"any", "post"}, names(reg.Candidates(p1, "/echo", http.MethodPost)))
	assert.Equal(t, []string{"any", "get"}, names(reg.Candidates(p1, "/echo/", http.MethodGet)))
	assert.Equal(t, []string{"any"}, names(reg.Candidates(p1, "echo", http.MethodDelete)))
	assert.Equal(t, []string{"other-port"}, names(reg.Candidates(p2, "/echo", http.MethodGet)))
	assert.Empty(t, reg.Candidates(p1, "/missing", http.MethodGet))
}

func TestRegistry_SnapshotIsImmutable(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	port := freePort(t)
	require.NoError(t, reg.Add(&mock.Definition{Name: "a", Port: port, Path: "/x"}))

	before := reg.Snapshot()
	require.NoError(t, reg.Add(&mock.Definition{Name: "b", Port: port, Path: "/x"}))
	_, err := reg.Remove("a", true)
	require.NoError(t, err)

	assert.Equal(t, 1, before.Len())
	_, ok := before.Get("a")
	assert.True(t, ok)
	assert.Len(t, before.Candidates(port, "/x", http.MethodGet), 1)

	after := reg.Snapshot()
	_, ok = after.Get("a")
	assert.False(t, ok)
	_, ok = after.Get("b")
	assert.True(t, ok)
}

func TestRegistry_InFlightAppendAfterRemove(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	port := freePort(t)
	require.NoError(t, reg.Add(&mock.Definition{Name: "r1", Port: port, Path: "/x"}))

	// a request that picked its entry before the removal
	entry := reg.Candidates(port, "/x", http.MethodGet)[0]

	events, err := reg.Remove("r1", false)
	require.NoError(t, err)
	assert.Empty(t, events)

	entry.Log().Append(recorder.Event{Request: mock.RequestReport{Text: "late"}})

	got, ok := rec.Peek("r1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].Request.Text)

	got, ok = rec.Peek("r1")
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestRegistry_RemoveAll(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	ports := freePorts(t, 2)
	require.NoError(t, reg.Add(&mock.Definition{Name: "a", Port: ports[0]}))
	require.NoError(t, reg.Add(&mock.Definition{Name: "b", Port: ports[1]}))

	reg.RemoveAll()
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.listeners.BoundPorts())

	all := rec.PeekAll()
	assert.Contains(t, all, "a")
	assert.Contains(t, all, "b")
}
