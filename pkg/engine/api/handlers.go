package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Uptime:    s.engine.Uptime(),
		Mocks:     len(s.engine.ListMocks()),
		Timestamp: time.Now().UTC(),
	}
	if !s.engine.IsRunning() {
		resp.Status = "stopped"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.WriteOK(w, resp)
}

func (s *Server) handleListMocks(w http.ResponseWriter, r *http.Request) {
	mocks := s.engine.ListMocks()
	httputil.WriteOK(w, MockListResponse{
		Mocks: mocks,
		Count: len(mocks),
	})
}

func (s *Server) handleGetMock(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, ok := s.engine.GetMock(name)
	if !ok {
		httputil.WriteNotFound(w, "not_found", "mock not found: "+name)
		return
	}
	httputil.WriteOK(w, def)
}

func (s *Server) handleAddMock(w http.ResponseWriter, r *http.Request) {
	var def mock.Definition
	if err := httputil.DecodeJSON(w, r, &def, s.maxBodySize); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}

	if err := s.engine.AddMock(&def); err != nil {
		s.log.Warn("failed to add mock", "mock", def.Name, "port", def.Port, "error", err)
		writeEngineError(w, err)
		return
	}

	created, ok := s.engine.GetMock(def.Name)
	if !ok {
		created = &def
	}
	httputil.WriteCreated(w, created)
}

func (s *Server) handleRemoveMock(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	skipReport := false
	if v := r.URL.Query().Get("skipReport"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid_parameter", "skipReport must be true or false")
			return
		}
		skipReport = b
	}

	events, err := s.engine.RemoveMock(name, skipReport)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteOK(w, RemoveMockResponse{Name: name, Events: nonNil(events)})
}

func (s *Server) handlePeekMocks(w http.ResponseWriter, r *http.Request) {
	all := s.engine.PeekMocks()
	if all == nil {
		all = map[string][]recorder.Event{}
	}
	httputil.WriteOK(w, PeekResponse{Mocks: all})
}

func (s *Server) handlePeekMock(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	events, err := s.engine.PeekMock(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	events = nonNil(events)
	httputil.WriteOK(w, MockEventsResponse{Name: name, Events: events, Count: len(events)})
}

// writeEngineError maps engine errors to status codes and error codes.
func writeEngineError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	httputil.WriteError(w, status, code, err.Error())
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name"
	case errors.Is(err, engine.ErrInvalidPort):
		return http.StatusBadRequest, "invalid_port"
	case errors.Is(err, engine.ErrInvalidDefinition):
		return http.StatusBadRequest, "invalid_definition"
	case errors.Is(err, engine.ErrListenerBindFailure):
		return http.StatusBadGateway, "listener_bind_failure"
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrServerNotRunning):
		return http.StatusServiceUnavailable, "not_running"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func nonNil(events []recorder.Event) []recorder.Event {
	if events == nil {
		return []recorder.Event{}
	}
	return events
}
