// Package request builds the normalized view of an inbound HTTP request
// that predicates and responses are evaluated against.
package request

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/soap"
	"github.com/ohler55/ojg/oj"
)

// DefaultMaxBodySize bounds the request body read for matching (10MB).
const DefaultMaxBodySize = 10 << 20

// ErrBodyTooLarge is returned when the request body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Request is a normalized inbound request. It is built once per request and
// is read-only afterwards, so it can be shared by every candidate evaluation.
type Request struct {
	Method       string
	Path         string
	PathSegments []string
	Headers      []mock.Parameter
	QueryParams  []mock.Parameter
	Body         string

	plainOnce sync.Once
	plain     *View
	soapOnce  sync.Once
	soap      *View
}

// View is the document a mock evaluates against: the raw body, or the
// unwrapped payload for soap mocks.
type View struct {
	// Text is the body text the expressions see as `body`.
	Text string

	// JSON is the parsed JSON document, or nil if Text is not JSON.
	JSON any

	// XML is the parsed XML document, or nil if Text is not XML.
	XML *etree.Document

	// SOAPVersion is set for views built from a SOAP envelope.
	SOAPVersion soap.SOAPVersion

	// Err is set when a soap view was requested but the body is not a
	// usable envelope.
	Err error

	nodeOnce sync.Once
	node     *XMLNode
}

// Build reads r and returns its normalized form. At most maxBody bytes are
// read; maxBody <= 0 uses DefaultMaxBodySize.
func Build(r *http.Request, maxBody int64) (*Request, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(data)) > maxBody {
			return nil, ErrBodyTooLarge
		}
		body = data
	}

	path := mock.NormalizePath(r.URL.Path)
	return &Request{
		Method:       r.Method,
		Path:         path,
		PathSegments: splitPath(path),
		Headers:      orderedHeaders(r.Header),
		QueryParams:  orderedQuery(r.URL.RawQuery),
		Body:         string(body),
	}, nil
}

// View returns the evaluation view, unwrapping the SOAP envelope when soapMode is set.
// Views are computed lazily and at most once.
func (r *Request) View(soapMode bool) *View {
	if soapMode {
		r.soapOnce.Do(func() { r.soap = newSOAPView(r.Body) })
		return r.soap
	}
	r.plainOnce.Do(func() { r.plain = newView(r.Body) })
	return r.plain
}

// Header returns the first value of the named header (case-insensitive).
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Report returns the captured request report.
func (r *Request) Report() mock.RequestReport {
	return mock.RequestReport{
		Text:         r.Body,
		Headers:      append([]mock.Parameter{}, r.Headers...),
		QueryParams:  append([]mock.Parameter{}, r.QueryParams...),
		PathSegments: append([]string{}, r.PathSegments...),
	}
}

func newView(text string) *View {
	v := &View{Text: text}
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "{"), strings.HasPrefix(trimmed, "["):
		if parsed, err := oj.ParseString(trimmed); err == nil {
			v.JSON = parsed
		}
	case strings.HasPrefix(trimmed, "<"):
		doc := etree.NewDocument()
		if err := doc.ReadFromString(trimmed); err == nil && doc.Root() != nil {
			v.XML = doc
		}
	}
	return v
}

func newSOAPView(text string) *View {
	env, err := soap.Unwrap([]byte(text))
	if err != nil {
		return &View{Text: text, Err: fmt.Errorf("soap envelope: %w", err)}
	}
	return &View{
		Text:        env.Text,
		XML:         env.Document,
		SOAPVersion: env.Version,
	}
}

// Node returns the XML document as an expression-friendly tree, or nil.
func (v *View) Node() *XMLNode {
	v.nodeOnce.Do(func() {
		if v.XML != nil {
			v.node = newXMLNode(v.XML.Root())
		}
	})
	return v.node
}

func splitPath(path string) []string {
	if path == "" {
		return []string{}
	}
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
		segments = append(segments, p)
	}
	return segments
}

// orderedHeaders flattens headers sorted by canonical name; values of a
// repeated header keep their wire order.
func orderedHeaders(h http.Header) []mock.Parameter {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]mock.Parameter, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			params = append(params, mock.Parameter{Name: name, Value: v})
		}
	}
	return params
}

// orderedQuery parses a raw query string preserving parameter order,
// which url.ParseQuery does not.
func orderedQuery(raw string) []mock.Parameter {
	params := []mock.Parameter{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params = append(params, mock.Parameter{Name: name, Value: value})
	}
	return params
}
