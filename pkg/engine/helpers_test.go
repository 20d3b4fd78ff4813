package engine

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/script"
)

func intPtr(i int) *int { return &i }

// freePort returns a port that was free a moment ago on the loopback interface.
func freePort(t *testing.T) int {
	t.Helper()
	return freePorts(t, 1)[0]
}

// freePorts returns n distinct ports that were free a moment ago.
func freePorts(t *testing.T, n int) []int {
	t.Helper()
	ports := make([]int, 0, n)
	lns := make([]net.Listener, 0, n)
	for range n {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		lns = append(lns, ln)
		ports = append(ports, ln.Addr().(*net.TCPAddr).Port)
	}
	for _, ln := range lns {
		require.NoError(t, ln.Close())
	}
	return ports
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultServerConfiguration()
	cfg.BindHost = "127.0.0.1"
	cfg.ShutdownTimeout = 1
	srv := NewServer(cfg, WithMetrics(metrics.New()))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

// newTestRegistry wires a registry and dispatcher without a Server.
func newTestRegistry(t *testing.T) (*Registry, *Dispatcher, *recorder.Recorder) {
	t.Helper()
	scripts := script.NewEngine(script.WithTimeout(time.Second))
	rec := recorder.New()
	var d *Dispatcher
	lm := NewListenerManager(func(port int) http.Handler { return d.Handler(port) },
		WithBindHost("127.0.0.1"),
		WithShutdownTimeout(time.Second),
	)
	reg := NewRegistry(lm, rec, scripts)
	d = NewDispatcher(reg, scripts, rec)
	t.Cleanup(lm.CloseAll)
	return reg, d, rec
}

var testClient = &http.Client{
	Timeout:   5 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func send(t *testing.T, method string, port int, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, "http://127.0.0.1:"+strconv.Itoa(port)+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := testClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func dialable(port int) bool {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
