package mock

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Port bounds.
const (
	MinPort = 1
	MaxPort = 65535
)

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// ValidPort reports whether port is a usable TCP port.
func ValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}

// Validate checks the definition fields that do not depend on runtime
// state. Port range errors are reported separately by ValidPort so callers
// can map them to their own error kind.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if _, err := ParseMethod(string(d.Method)); err != nil {
		return err
	}
	if d.StatusCode != nil && (*d.StatusCode < 100 || *d.StatusCode > 599) {
		return &ValidationError{Field: "statusCode", Message: fmt.Sprintf("status code %d out of range 100-599", *d.StatusCode)}
	}
	if _, err := ParseHeaderTemplate(d.ResponseHeaders); err != nil {
		return err
	}
	return nil
}

// ParseHeaderTemplate parses a response header template.
//
// Entries are separated by ';' and each entry is "Name: value" (the first
// ':' splits name from value). Surrounding whitespace is trimmed, empty
// entries are skipped and the order of entries is preserved. A literal ';'
// inside a value is written as "\;".
func ParseHeaderTemplate(tmpl string) ([]Parameter, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, nil
	}

	var params []Parameter
	for _, entry := range splitUnescaped(tmpl, ';') {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, &ValidationError{Field: "responseHeaders", Message: fmt.Sprintf("entry %q is missing ':'", entry)}
		}
		name = strings.TrimSpace(name)
		if !headerNameRegex.MatchString(name) {
			return nil, &ValidationError{Field: "responseHeaders", Message: fmt.Sprintf("invalid header name %q", name)}
		}
		params = append(params, Parameter{Name: name, Value: strings.TrimSpace(value)})
	}
	return params, nil
}

func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == sep {
			cur.WriteByte(sep)
			i++
			continue
		}
		if c == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(parts, cur.String())
}
