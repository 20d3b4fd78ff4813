// Package metrics exposes the mock server's Prometheus metrics.
//
// A Metrics value owns its own prometheus.Registry so several servers (or
// tests) can run in one process without colliding on metric names.
//
// # Exposed metrics
//
//   - mockserver_requests_total: Counter of dispatched requests (labels: outcome)
//   - mockserver_request_duration_seconds: Histogram of dispatch latency (labels: outcome)
//   - mockserver_match_hits_total: Counter of requests served per mock (labels: mock)
//   - mockserver_evaluation_duration_seconds: Histogram of expression run time (labels: kind)
//   - mockserver_evaluation_errors_total: Counter of failed evaluations (labels: kind)
//   - mockserver_bound_listeners: Gauge of ports with an open socket
//   - mockserver_mocks: Gauge of registered mocks
//   - mockserver_uptime_seconds: Gauge of time since the Metrics value was created
//
// Go runtime and process collectors are registered as well.
//
// # Outcome label values
//
//   - matched: a mock accepted the request and its response was produced
//   - unmatched: no mock accepted the request (404)
//   - error: the response expression failed (500)
//
// # Usage
//
//	m := metrics.New()
//	m.ObserveDispatch(metrics.OutcomeMatched, "r1", 3*time.Millisecond)
//	mux.Handle("GET /metrics", m.Handler())
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics
