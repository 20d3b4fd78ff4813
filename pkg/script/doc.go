// Package script evaluates mock predicates and responses.
//
// Expressions are written in the expr language (github.com/expr-lang/expr)
// and compiled once when a mock is registered. They run against a read-only
// Env built from the inbound request and have no access to anything else:
// no I/O, no shared state. Every evaluation is bounded by a timeout; a
// predicate that fails, times out or does not yield a bool is reported as
// ErrPredicateEvaluation and a failing response as ErrResponseEvaluation.
//
// # Environment
//
//	body, text  request body (the unwrapped payload for soap mocks)
//	method      request method
//	path        path segments
//	headers     lower-cased header name -> first value
//	query       query parameter name -> first value
//	json        parsed JSON body or nil
//	xml         parsed XML tree {name, namespace, text, attrs, children} or nil
//	xpath(p)    text at an XPath in the XML body
//	jsonpath(p) value(s) at a JSONPath in the JSON body
//
// # Examples
//
//	body == 'ping'
//	xml?.name == 'request3' && xpath('//id') == '7'
//	jsonpath('$.user.id') > 10
//	{"status": 201, "body": "created " + query.id, "headers": {"X-Id": query.id}}
package script
