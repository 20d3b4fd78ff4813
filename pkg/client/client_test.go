package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/engine/api"
	"github.com/getmockd/mockserver/pkg/mock"
)

func newStack(t *testing.T) (*Client, *engine.Server) {
	t.Helper()
	cfg := config.DefaultServerConfiguration()
	cfg.BindHost = "127.0.0.1"
	cfg.ShutdownTimeout = 1
	eng := engine.NewServer(cfg)
	require.NoError(t, eng.Start())
	t.Cleanup(func() { _ = eng.Stop() })

	ts := httptest.NewServer(api.NewServer(eng, "").Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL), eng
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNew(t *testing.T) {
	assert.Equal(t, "http://localhost:4290", New("localhost:4290/").BaseURL())
	assert.Equal(t, "https://admin", New("https://admin").BaseURL())
}

func TestClient_Lifecycle(t *testing.T) {
	c, eng := newStack(t)
	ctx := context.Background()
	port := freePort(t)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	created, err := c.AddMock(ctx, &mock.Definition{Name: "r1", Port: port, Path: "/echo", Response: "'pong'"})
	require.NoError(t, err)
	assert.Equal(t, "r1", created.Name)

	_, err = c.AddMock(ctx, &mock.Definition{Name: "r1", Port: port, Path: "/echo"})
	assert.ErrorIs(t, err, engine.ErrDuplicateName)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = c.AddMock(ctx, &mock.Definition{Name: "r2", Port: 70000})
	assert.ErrorIs(t, err, engine.ErrInvalidPort)

	mocks, err := c.ListMocks(ctx)
	require.NoError(t, err)
	require.Len(t, mocks, 1)

	got, err := c.GetMock(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, port, got.Port)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/echo")
	require.NoError(t, err)
	_ = resp.Body.Close()

	events, err := c.PeekMock(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "pong", events[0].Response.Text)

	all, err := c.PeekMocks(ctx)
	require.NoError(t, err)
	assert.Len(t, all["r1"], 1)

	removed, err := c.RemoveMock(ctx, "r1", true)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Empty(t, eng.BoundPorts())

	events, err = c.PeekMock(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = c.RemoveMock(ctx, "r1", false)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = c.GetMock(ctx, "r1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestClient_ConnectionError(t *testing.T) {
	c := New("127.0.0.1:" + strconv.Itoa(freePort(t)))
	_, err := c.ListMocks(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.False(t, IsConnectionError(errors.New("other")))
}

func TestClient_UnknownErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL).ListMocks(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unknown_error", apiErr.ErrorCode)
	assert.Contains(t, apiErr.Message, "gateway exploded")
	assert.False(t, errors.Is(err, engine.ErrNotFound))
}
