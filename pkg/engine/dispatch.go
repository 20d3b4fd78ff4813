package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/request"
	"github.com/getmockd/mockserver/pkg/script"
	"github.com/getmockd/mockserver/pkg/soap"
	"github.com/getmockd/mockserver/pkg/util"
)

// NoMatchBody is the body sent when no mock accepts a request.
const NoMatchBody = "No mock found"

// logBodyLimit caps request bodies written to debug logs.
const logBodyLimit = 512

// Content types chosen when neither the header template nor the response
// expression sets one.
const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json"
	contentTypeXML  = "text/xml; charset=utf-8"
)

// Dispatcher routes requests arriving on mock ports to registered mocks.
type Dispatcher struct {
	registry    *Registry
	scripts     *script.Engine
	recorder    *recorder.Recorder
	metrics     *metrics.Metrics
	log         *slog.Logger
	maxBodySize int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxBodySize bounds the request body read for matching.
func WithMaxBodySize(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxBodySize = n
	}
}

// WithDispatcherLogger sets the operational logger.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithDispatcherMetrics reports dispatch and evaluation metrics to m.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher reading mocks from registry.
func NewDispatcher(registry *Registry, scripts *script.Engine, rec *recorder.Recorder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		scripts:     scripts,
		recorder:    rec,
		log:         logging.Nop(),
		maxBodySize: request.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handler returns the http.Handler serving port.
func (d *Dispatcher) Handler(port int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.ServePort(port, w, r)
	})
}

// response is a synthesized response before it is written.
type response struct {
	status  int
	headers []mock.Parameter
	body    string
}

func (resp *response) report() mock.ResponseReport {
	return mock.ResponseReport{
		StatusCode: resp.status,
		Text:       resp.body,
		Headers:    append([]mock.Parameter{}, resp.headers...),
	}
}

// ServePort dispatches r, which arrived on port. The event is recorded
// before the response is written, so a client that has its response can
// always peek its event.
func (d *Dispatcher) ServePort(port int, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := d.registry.Snapshot()

	req, err := request.Build(r, d.maxBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, request.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		resp := &response{status: status, body: err.Error(), headers: []mock.Parameter{{Name: "Content-Type", Value: contentTypeText}}}
		d.log.Warn("failed to read request", "port", port, "path", r.URL.Path, "error", err)
		d.record(d.recorder.Unmatched(), port, r, start, mock.RequestReport{Headers: []mock.Parameter{}, QueryParams: []mock.Parameter{}, PathSegments: []string{}}, resp)
		d.write(w, r, resp)
		d.metrics.ObserveDispatch(metrics.OutcomeUnmatched, "", time.Since(start))
		return
	}

	entry := d.match(r.Context(), snap, port, req)
	if entry == nil {
		resp := &response{
			status:  http.StatusNotFound,
			body:    NoMatchBody,
			headers: []mock.Parameter{{Name: "Content-Type", Value: contentTypeText}},
		}
		d.log.Debug("no mock found", "port", port, "method", req.Method, "path", req.Path, "body", util.TruncateBody(req.Body, logBodyLimit))
		d.record(d.recorder.Unmatched(), port, r, start, req.Report(), resp)
		d.write(w, r, resp)
		d.metrics.ObserveDispatch(metrics.OutcomeUnmatched, "", time.Since(start))
		return
	}

	resp, err := d.synthesize(r.Context(), entry, req)
	outcome := metrics.OutcomeMatched
	if err != nil {
		outcome = metrics.OutcomeError
		d.log.Warn("response evaluation failed", "mock", entry.Name(), "port", port, "error", err)
	}
	d.record(entry.log, port, r, start, req.Report(), resp)
	d.write(w, r, resp)
	d.metrics.ObserveDispatch(outcome, entry.Name(), time.Since(start))
}

// match returns the first candidate, in registration order, whose
// predicate holds. Candidates whose predicate fails to evaluate are skipped.
func (d *Dispatcher) match(ctx context.Context, snap *Snapshot, port int, req *request.Request) *Entry {
	for _, e := range snap.Candidates(port, req.Path, req.Method) {
		view := req.View(e.Def.Soap)
		if view.Err != nil {
			d.log.Debug("skipping soap mock", "mock", e.Name(), "error", view.Err)
			continue
		}
		if e.predicate == nil {
			return e
		}

		start := time.Now()
		ok, err := d.scripts.Match(ctx, e.predicate, script.NewEnv(req, view))
		d.metrics.ObserveEvaluation(script.KindPredicate.String(), time.Since(start), err)
		if err != nil {
			d.log.Warn("predicate evaluation failed", "mock", e.Name(), "error", err)
			continue
		}
		if ok {
			return e
		}
	}
	return nil
}

// synthesize evaluates the entry's response. On failure the returned
// response is the 500 to send and err describes the failure.
func (d *Dispatcher) synthesize(ctx context.Context, e *Entry, req *request.Request) (*response, error) {
	view := req.View(e.Def.Soap)

	start := time.Now()
	parts, err := d.scripts.Respond(ctx, e.response, script.NewEnv(req, view))
	if e.response != nil {
		d.metrics.ObserveEvaluation(script.KindResponse.String(), time.Since(start), err)
	}
	if err != nil {
		return failure(e, view, err), err
	}

	body := parts.Body
	if e.Def.Soap {
		wrapped, err := soap.Wrap(body, view.SOAPVersion)
		if err != nil {
			err = errors.Join(script.ErrResponseEvaluation, err)
			return failure(e, view, err), err
		}
		body = wrapped
	}

	status := mock.DefaultStatusCode
	if parts.Status != 0 {
		status = parts.Status
	}
	if e.Def.StatusCode != nil {
		status = *e.Def.StatusCode
	}

	headers := mergeHeaders(parts.Headers, e.headers)
	if !hasHeader(headers, "Content-Type") {
		headers = append(headers, mock.Parameter{Name: "Content-Type", Value: contentType(e, view, body)})
	}

	return &response{status: status, headers: headers, body: body}, nil
}

// failure builds the 500 sent when a response cannot be produced. Soap
// mocks answer with a SOAP fault.
func failure(e *Entry, view *request.View, err error) *response {
	if e.Def.Soap {
		return &response{
			status:  http.StatusInternalServerError,
			headers: []mock.Parameter{{Name: "Content-Type", Value: view.SOAPVersion.ContentType()}},
			body:    string(soap.BuildFault(&soap.SOAPFault{Code: "soap:Server", Message: err.Error()}, view.SOAPVersion)),
		}
	}
	return &response{
		status:  http.StatusInternalServerError,
		headers: []mock.Parameter{{Name: "Content-Type", Value: contentTypeText}},
		body:    err.Error(),
	}
}

// mergeHeaders returns the expression headers not named by the template,
// followed by the template headers in template order.
func mergeHeaders(fromExpr, fromTemplate []mock.Parameter) []mock.Parameter {
	out := make([]mock.Parameter, 0, len(fromExpr)+len(fromTemplate)+1)
	for _, h := range fromExpr {
		if !hasHeader(fromTemplate, h.Name) {
			out = append(out, h)
		}
	}
	return append(out, fromTemplate...)
}

func hasHeader(headers []mock.Parameter, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

func contentType(e *Entry, view *request.View, body string) string {
	if e.Def.Soap {
		return view.SOAPVersion.ContentType()
	}
	trimmed := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(trimmed, "<"):
		return contentTypeXML
	case strings.HasPrefix(trimmed, "{"), strings.HasPrefix(trimmed, "["):
		return contentTypeJSON
	default:
		return contentTypeText
	}
}

func (d *Dispatcher) write(w http.ResponseWriter, r *http.Request, resp *response) {
	for _, h := range resp.headers {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(resp.status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(resp.body)); err != nil {
		d.log.Debug("failed to write response", "path", r.URL.Path, "error", err)
	}
}

func (d *Dispatcher) record(log *recorder.Log, port int, r *http.Request, start time.Time, req mock.RequestReport, resp *response) {
	log.Append(recorder.Event{
		Timestamp:  start,
		Port:       port,
		Method:     r.Method,
		Path:       r.URL.Path,
		DurationMs: time.Since(start).Milliseconds(),
		Request:    req,
		Response:   resp.report(),
	})
}
