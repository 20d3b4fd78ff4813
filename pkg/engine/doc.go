// Package engine provides the mock server engine: the mock registry, the
// per-port listener lifecycle and request dispatch.
//
// # Architecture
//
//	admin API ──► Registry.Add / Registry.Remove ──► ListenerManager.Acquire / Release
//	                    │                                      │
//	                    ▼                                      ▼
//	          immutable snapshot                    one http.Server per bound port
//	                    ▲                                      │
//	                    └──────────── Dispatcher ◄─────────────┘
//	                                     │
//	                          script evaluation, recorder
//
// Registry writes are serialized by a single mutex and publish a new
// immutable snapshot; dispatch loads the snapshot once per request and never
// takes a lock. A port's socket exists exactly while at least one registered
// mock uses the port.
//
// Each request is matched against the candidates for its port, path and
// method in registration order; the first mock whose predicate holds serves
// the request. Requests no mock accepts get a 404 "No mock found" and are
// recorded in the unmatched bucket.
//
// # Basic Usage
//
//	srv := engine.NewServer(config.DefaultServerConfiguration())
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	err := srv.AddMock(&mock.Definition{
//	    Name:      "r1",
//	    Port:      8080,
//	    Path:      "/echo",
//	    Predicate: `body == "ping"`,
//	    Response:  `"pong"`,
//	})
package engine
