package recorder

import (
	"time"

	"github.com/getmockd/mockserver/pkg/mock"
)

// UnmatchedBucket is the pseudo mock name holding events no mock matched.
const UnmatchedBucket = "*unmatched*"

// Event pairs a captured request with the response it received.
// Events are never mutated after they are appended.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Mock is the name of the mock that served the request, or UnmatchedBucket.
	Mock string `json:"mock"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`

	// Port the request arrived on.
	Port int `json:"port"`

	// Method is the HTTP method of the request.
	Method string `json:"method"`

	// Path is the raw request path.
	Path string `json:"path"`

	// DurationMs is the request processing time in milliseconds.
	DurationMs int64 `json:"durationMs"`

	Request  mock.RequestReport  `json:"request"`
	Response mock.ResponseReport `json:"response"`
}

// Sink receives every event accepted by a live or retired log.
// Implementations must be safe for concurrent use.
type Sink interface {
	Write(ev Event) error
}
