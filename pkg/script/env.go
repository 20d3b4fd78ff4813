package script

import (
	"strings"

	"github.com/getmockd/mockserver/pkg/request"
	"github.com/getmockd/mockserver/pkg/soap"
	"github.com/ohler55/ojg/jp"
)

// Env is the evaluation environment exposed to expressions.
type Env struct {
	Body     string              `expr:"body"`
	Text     string              `expr:"text"`
	Method   string              `expr:"method"`
	Path     []string            `expr:"path"`
	Headers  map[string]string   `expr:"headers"`
	Query    map[string]string   `expr:"query"`
	JSON     any                 `expr:"json"`
	XML      *request.XMLNode    `expr:"xml"`
	XPath    func(string) string `expr:"xpath"`
	JSONPath func(string) any    `expr:"jsonpath"`
}

// NewEnv builds the environment for req as seen through view.
func NewEnv(req *request.Request, view *request.View) Env {
	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.Headers {
		key := strings.ToLower(h.Name)
		if _, ok := headers[key]; !ok {
			headers[key] = h.Value
		}
	}
	query := make(map[string]string, len(req.QueryParams))
	for _, q := range req.QueryParams {
		if _, ok := query[q.Name]; !ok {
			query[q.Name] = q.Value
		}
	}

	return Env{
		Body:    view.Text,
		Text:    view.Text,
		Method:  req.Method,
		Path:    req.PathSegments,
		Headers: headers,
		Query:   query,
		JSON:    view.JSON,
		XML:     view.Node(),
		XPath: func(p string) string {
			return soap.ExtractXPath(view.XML, p)
		},
		JSONPath: func(p string) any {
			return jsonPath(view.JSON, p)
		},
	}
}

// jsonPath returns the single match, all matches as a list, or nil.
func jsonPath(doc any, path string) any {
	if doc == nil {
		return nil
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil
	}
	results := x.Get(doc)
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	default:
		return results
	}
}
