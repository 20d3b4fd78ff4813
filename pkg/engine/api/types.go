package api

import (
	"time"

	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
)

// ErrorResponse is the body of every error response.
type ErrorResponse = httputil.ErrorResponse

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    int       `json:"uptime"`
	Mocks     int       `json:"mocks"`
	Timestamp time.Time `json:"timestamp"`
}

// MockListResponse is returned by GET /mocks.
type MockListResponse struct {
	Mocks []*mock.Definition `json:"mocks"`
	Count int                `json:"count"`
}

// RemoveMockResponse is returned by DELETE /mocks/{name}. Events holds the
// mock's recorded events unless the removal skipped the report.
type RemoveMockResponse struct {
	Name   string           `json:"name"`
	Events []recorder.Event `json:"events"`
}

// PeekResponse is returned by GET /events.
type PeekResponse struct {
	Mocks map[string][]recorder.Event `json:"mocks"`
}

// MockEventsResponse is returned by GET /mocks/{name}/events.
type MockEventsResponse struct {
	Name   string           `json:"name"`
	Events []recorder.Event `json:"events"`
	Count  int              `json:"count"`
}
