package engine

import "errors"

// Registry errors.
var (
	ErrDuplicateName       = errors.New("mock name already registered")
	ErrNotFound            = errors.New("mock not found")
	ErrInvalidPort         = errors.New("invalid port")
	ErrListenerBindFailure = errors.New("listener bind failure")
	ErrInvalidDefinition   = errors.New("invalid mock definition")
)

// Server lifecycle errors.
var (
	ErrServerRunning    = errors.New("server is already running")
	ErrServerNotRunning = errors.New("server is not running")
)
