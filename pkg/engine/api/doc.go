// Package api is the admin control plane of the mock server.
//
// It exposes the engine's AddMock, RemoveMock, ListMocks and PeekMocks
// operations as JSON over HTTP:
//
//	GET    /health                 liveness and uptime
//	GET    /mocks                  registered mocks in registration order
//	POST   /mocks                  register a mock
//	DELETE /mocks/{name}           unregister a mock (?skipReport=true discards its events)
//	GET    /events                 recorded events of every mock
//	GET    /mocks/{name}/events    recorded events of one mock
//	GET    /metrics                Prometheus exposition
//
// The API has no authentication. Bind it to loopback unless the network
// is trusted.
package api
