package engine

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
)

// ============================================================================
// Lifecycle
// ============================================================================

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("nil config uses defaults", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(nil)
		require.NotNil(t, srv)
		assert.Equal(t, config.DefaultAdminPort, srv.Config().Admin.Port)
		assert.False(t, srv.IsRunning())
		assert.Nil(t, srv.Metrics())
	})

	t.Run("nil logger keeps nop logger", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(nil, WithLogger(nil))
		assert.NotNil(t, srv.log)
	})
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(nil)
	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Start(), ErrServerRunning)

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	assert.Equal(t, 0, srv.Uptime())
	require.NoError(t, srv.Stop())

	err := srv.AddMock(&mock.Definition{Name: "r1", Port: 1})
	assert.ErrorIs(t, err, ErrServerNotRunning)
}

func TestServer_StopClosesListeners(t *testing.T) {
	cfg := config.DefaultServerConfiguration()
	cfg.BindHost = "127.0.0.1"
	srv := NewServer(cfg)
	require.NoError(t, srv.Start())

	port := freePort(t)
	require.NoError(t, srv.AddMock(&mock.Definition{Name: "r1", Port: port, Path: "/x"}))
	require.True(t, dialable(port))

	require.NoError(t, srv.Stop())
	assert.False(t, dialable(port))
	assert.Empty(t, srv.BoundPorts())
	assert.Empty(t, srv.ListMocks())
}

// ============================================================================
// End to end over real sockets
// ============================================================================

func TestServer_StopDuringAdd(t *testing.T) {
	srv := newTestServer(t)
	ports := freePorts(t, 4)

	var wg sync.WaitGroup
	for w, port := range ports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				name := fmt.Sprintf("s-%d-%d", w, i)
				err := srv.AddMock(&mock.Definition{Name: name, Port: port, Path: "/x"})
				if errors.Is(err, ErrServerNotRunning) {
					return
				}
				if err == nil {
					// Stop may already have removed it
					_, _ = srv.RemoveMock(name, true)
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Stop())
	wg.Wait()

	assert.Empty(t, srv.ListMocks())
	assert.Empty(t, srv.BoundPorts())
	for _, port := range ports {
		assert.False(t, dialable(port), "port %d still accepts connections", port)
	}
}

func TestServer_EchoPingPong(t *testing.T) {
	srv := newTestServer(t)
	port := freePort(t)

	require.NoError(t, srv.AddMock(&mock.Definition{
		Name:      "r1",
		Port:      port,
		Path:      "/echo",
		Predicate: `body == "ping"`,
		Response:  `"pong"`,
	}))

	resp, body := send(t, http.MethodPost, port, "/echo", "ping")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", body)

	resp, body = send(t, http.MethodPost, port, "/echo", "hello")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, NoMatchBody, body)

	all := srv.PeekMocks()
	require.Len(t, all["r1"], 1)
	assert.Equal(t, "ping", all["r1"][0].Request.Text)
	assert.Equal(t, "pong", all["r1"][0].Response.Text)
	require.Len(t, all[recorder.UnmatchedBucket], 1)

	m := srv.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(metrics.OutcomeMatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(metrics.OutcomeUnmatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BoundListeners))
}

func TestServer_RemoveRefusesConnections(t *testing.T) {
	srv := newTestServer(t)
	port := freePort(t)
	require.NoError(t, srv.AddMock(&mock.Definition{Name: "r1", Port: port, Path: "/x", Response: "'ok'"}))

	_, body := send(t, http.MethodGet, port, "/x", "")
	require.Equal(t, "ok", body)

	events, err := srv.RemoveMock("r1", false)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.False(t, dialable(port))

	// retired events are reported exactly once
	got, err := srv.PeekMock("r1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = srv.PeekMock("r1")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = srv.RemoveMock("r1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServer_RemoveSkipReport(t *testing.T) {
	srv := newTestServer(t)
	port := freePort(t)
	require.NoError(t, srv.AddMock(&mock.Definition{Name: "r1", Port: port, Path: "/x"}))
	send(t, http.MethodGet, port, "/x", "")

	events, err := srv.RemoveMock("r1", true)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotContains(t, srv.PeekMocks(), "r1")

	got, err := srv.PeekMock("r1")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = srv.PeekMock("never-added")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServer_SharedPort(t *testing.T) {
	srv := newTestServer(t)
	port := freePort(t)
	require.NoError(t, srv.AddMock(&mock.Definition{Name: "a", Port: port, Path: "/a", Response: "'A'"}))
	require.NoError(t, srv.AddMock(&mock.Definition{Name: "b", Port: port, Path: "/b", Response: "'B'"}))

	_, err := srv.RemoveMock("a", true)
	require.NoError(t, err)

	_, body := send(t, http.MethodGet, port, "/b", "")
	assert.Equal(t, "B", body)
	resp, _ := send(t, http.MethodGet, port, "/a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_LoadMocks(t *testing.T) {
	srv := newTestServer(t)
	ports := freePorts(t, 2)

	n, err := srv.LoadMocks(&config.MockCollection{Mocks: []*mock.Definition{
		{Name: "a", Port: ports[0], Path: "/a"},
		{Name: "b", Port: ports[1], Path: "/b"},
		{Name: "a", Port: ports[1], Path: "/dup"},
	}})
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.ElementsMatch(t, ports, srv.BoundPorts())

	n, err = srv.LoadMocks(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

// ============================================================================
// Concurrency
// ============================================================================

func TestServer_ConcurrentChurn(t *testing.T) {
	srv := newTestServer(t)
	ports := freePorts(t, 3)

	const workers = 12
	const rounds = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := range rounds {
				name := fmt.Sprintf("m-%d-%d", w, r)
				port := ports[(w+r)%len(ports)]
				err := srv.AddMock(&mock.Definition{Name: name, Port: port, Path: "/churn", Response: "'ok'"})
				if errors.Is(err, ErrListenerBindFailure) {
					// the OS may have handed the port to another socket meanwhile
					continue
				}
				if err != nil {
					errs <- err
					continue
				}

				// the listener may have been torn down by another worker's
				// removal between dispatch rounds; errors are expected
				if resp, err := testClient.Get(fmt.Sprintf("http://127.0.0.1:%d/churn", port)); err == nil {
					_ = resp.Body.Close()
				}

				if _, err := srv.RemoveMock(name, r%2 == 0); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Empty(t, srv.ListMocks())
	assert.Empty(t, srv.BoundPorts(), "no listener survives once every mock is removed")
	assert.Equal(t, 0.0, testutil.ToFloat64(srv.Metrics().BoundListeners))
}
