// Package config provides the server configuration and the mock collection
// file format.
//
// ServerConfiguration is loaded with Load from an optional YAML/JSON/TOML
// file, MOCKSERVER_* environment variables and built-in defaults, in that
// order of precedence (flags bound by the CLI take precedence over all):
//
//	cfg, err := config.Load("mockserver.yaml", nil)
//
// Nested keys map to environment variables with '.' replaced by '_':
// admin.port is MOCKSERVER_ADMIN_PORT, log.file.path is MOCKSERVER_LOG_FILE_PATH.
//
// Mock collections are YAML or JSON files listing mock definitions to
// register at startup:
//
//	mocks:
//	  - name: r1
//	    port: 8080
//	    path: /echo
//	    predicate: body == "ping"
//	    response: '"pong"'
//
// Use LoadFromFile to read one.
package config
