// Package mock defines the mock definition registered by administrators and
// the request/response reports captured while serving it.
package mock

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Method is an HTTP method a mock can be restricted to.
// The zero value matches any method.
type Method string

// Supported methods.
const (
	MethodAny     Method = ""
	MethodPost    Method = "POST"
	MethodGet     Method = "GET"
	MethodDelete  Method = "DELETE"
	MethodPut     Method = "PUT"
	MethodTrace   Method = "TRACE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodPatch   Method = "PATCH"
)

var knownMethods = map[Method]bool{
	MethodPost:    true,
	MethodGet:     true,
	MethodDelete:  true,
	MethodPut:     true,
	MethodTrace:   true,
	MethodHead:    true,
	MethodOptions: true,
	MethodPatch:   true,
}

// ParseMethod parses a method name case-insensitively.
// An empty string yields MethodAny.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if m == MethodAny || knownMethods[m] {
		return m, nil
	}
	return MethodAny, &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", s)}
}

// Matches reports whether a request with the given method satisfies m.
func (m Method) Matches(requestMethod string) bool {
	return m == MethodAny || strings.EqualFold(string(m), requestMethod)
}

// UnmarshalJSON accepts any casing of a supported method.
func (m *Method) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// UnmarshalYAML accepts any casing of a supported method.
func (m *Method) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DefaultStatusCode is used when a definition has no status override.
const DefaultStatusCode = 200

// Definition is a named rule binding a port/path/method/predicate to a
// scripted response. A Definition is immutable once registered.
type Definition struct {
	// Name uniquely identifies the mock.
	Name string `json:"name" yaml:"name"`

	// Path is the request path the mock serves. Leading and trailing
	// slashes are not significant.
	Path string `json:"path" yaml:"path"`

	// Port is the TCP port the mock listens on.
	Port int `json:"port" yaml:"port"`

	// Predicate is an optional boolean expression. Empty matches every request.
	Predicate string `json:"predicate,omitempty" yaml:"predicate,omitempty"`

	// Response is an expression producing the response body.
	Response string `json:"response,omitempty" yaml:"response,omitempty"`

	// Soap unwraps the SOAP envelope before evaluation and wraps the response in one.
	Soap bool `json:"soap,omitempty" yaml:"soap,omitempty"`

	// StatusCode overrides the default 200.
	StatusCode *int `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`

	// Method restricts the mock to one method. Empty matches any method.
	Method Method `json:"method,omitempty" yaml:"method,omitempty"`

	// ResponseHeaders is a header template in the form "Name: value; Other: value".
	ResponseHeaders string `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
}

// Status returns the effective response status code.
func (d *Definition) Status() int {
	if d.StatusCode != nil {
		return *d.StatusCode
	}
	return DefaultStatusCode
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	if d.StatusCode != nil {
		code := *d.StatusCode
		c.StatusCode = &code
	}
	return &c
}

// NormalizePath strips surrounding slashes and whitespace so that
// "/echo", "echo" and "echo/" all address the same mock.
func NormalizePath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// Parameter is an ordered name/value pair (headers, query parameters).
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RequestReport is the normalized view of an inbound request as captured
// for later inspection.
type RequestReport struct {
	Text         string      `json:"text"`
	Headers      []Parameter `json:"headers"`
	QueryParams  []Parameter `json:"queryParams"`
	PathSegments []string    `json:"pathSegments"`
}

// ResponseReport is the synthesized response as captured for later inspection.
type ResponseReport struct {
	StatusCode int         `json:"statusCode"`
	Text       string      `json:"text"`
	Headers    []Parameter `json:"headers"`
}
