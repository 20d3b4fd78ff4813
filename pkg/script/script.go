package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/ohler55/ojg/oj"
)

// DefaultTimeout bounds a single expression evaluation.
const DefaultTimeout = 2 * time.Second

// maxCachedPrograms caps the compile cache; it is reset when full.
const maxCachedPrograms = 4096

// Evaluation errors.
var (
	ErrInvalidExpression   = errors.New("invalid expression")
	ErrPredicateEvaluation = errors.New("predicate evaluation failed")
	ErrResponseEvaluation  = errors.New("response evaluation failed")
	ErrTimeout             = errors.New("evaluation timed out")
)

// Kind distinguishes predicate programs from response programs.
type Kind int

const (
	KindPredicate Kind = iota
	KindResponse
)

func (k Kind) String() string {
	if k == KindPredicate {
		return "predicate"
	}
	return "response"
}

// Program is a compiled expression. A nil *Program is an absent expression:
// an absent predicate matches everything, an absent response is empty.
type Program struct {
	Kind    Kind
	Source  string
	program *vm.Program
}

// Parts is the outcome of a response expression.
type Parts struct {
	Body string
	// Status is 0 unless the expression returned one.
	Status  int
	Headers []mock.Parameter
}

// Engine compiles and runs expressions. It is safe for concurrent use.
type Engine struct {
	timeout time.Duration
	log     *slog.Logger

	programMu    sync.RWMutex
	programCache map[string]*vm.Program
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-evaluation timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates an expression engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout:      DefaultTimeout,
		log:          logging.Nop(),
		programCache: make(map[string]*vm.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the per-evaluation timeout.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Compile compiles source as a program of the given kind.
// Blank source yields a nil program.
func (e *Engine) Compile(kind Kind, source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	cacheKey := strconv.Itoa(int(kind)) + "\x00" + source

	e.programMu.RLock()
	if program, ok := e.programCache[cacheKey]; ok {
		e.programMu.RUnlock()
		return &Program{Kind: kind, Source: source, program: program}, nil
	}
	e.programMu.RUnlock()

	opts := []expr.Option{expr.Env(Env{})}
	if kind == KindPredicate {
		opts = append(opts, expr.AsBool())
	}
	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidExpression, kind, source, err)
	}

	e.programMu.Lock()
	if len(e.programCache) >= maxCachedPrograms {
		e.programCache = make(map[string]*vm.Program)
	}
	e.programCache[cacheKey] = program
	e.programMu.Unlock()

	return &Program{Kind: kind, Source: source, program: program}, nil
}

// Match evaluates a predicate. A nil program matches.
func (e *Engine) Match(ctx context.Context, p *Program, env Env) (bool, error) {
	if p == nil {
		return true, nil
	}
	out, err := e.run(ctx, p, env)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPredicateEvaluation, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is %T, not bool", ErrPredicateEvaluation, out)
	}
	return matched, nil
}

// Respond evaluates a response expression. A nil program yields empty parts.
func (e *Engine) Respond(ctx context.Context, p *Program, env Env) (Parts, error) {
	if p == nil {
		return Parts{}, nil
	}
	out, err := e.run(ctx, p, env)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: %w", ErrResponseEvaluation, err)
	}
	parts, err := toParts(out)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: %w", ErrResponseEvaluation, err)
	}
	return parts, nil
}

type runResult struct {
	out any
	err error
}

// run executes the program on its own goroutine so that the caller is
// released when the timeout fires. The vm cannot be interrupted, so a
// runaway program keeps its goroutine until it finishes.
func (e *Engine) run(ctx context.Context, p *Program, env Env) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := expr.Run(p.program, env)
		done <- runResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		e.log.Warn("expression evaluation abandoned", "kind", p.Kind.String(), "source", p.Source, "timeout", e.timeout)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func toParts(out any) (Parts, error) {
	switch v := out.(type) {
	case nil:
		return Parts{}, nil
	case string:
		return Parts{Body: v}, nil
	case []byte:
		return Parts{Body: string(v)}, nil
	case map[string]any:
		if !hasPartKeys(v) {
			return Parts{Body: jsonString(v)}, nil
		}
		return mapToParts(v)
	case []any:
		return Parts{Body: jsonString(v)}, nil
	default:
		return Parts{Body: fmt.Sprint(v)}, nil
	}
}

func hasPartKeys(m map[string]any) bool {
	for _, k := range []string{"body", "status", "headers"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func mapToParts(m map[string]any) (Parts, error) {
	var parts Parts

	if body, ok := m["body"]; ok {
		inner, err := toParts(body)
		if err != nil {
			return Parts{}, err
		}
		parts.Body = inner.Body
	}

	if status, ok := m["status"]; ok && status != nil {
		code, err := toStatus(status)
		if err != nil {
			return Parts{}, err
		}
		parts.Status = code
	}

	if headers, ok := m["headers"]; ok && headers != nil {
		hm, ok := headers.(map[string]any)
		if !ok {
			return Parts{}, fmt.Errorf("headers must be a map, got %T", headers)
		}
		names := make([]string, 0, len(hm))
		for name := range hm {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts.Headers = append(parts.Headers, mock.Parameter{Name: name, Value: fmt.Sprint(hm[name])})
		}
	}

	return parts, nil
}

func toStatus(v any) (int, error) {
	var code int
	switch n := v.(type) {
	case int:
		code = n
	case int64:
		code = int(n)
	case float64:
		code = int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("invalid status %q", n)
		}
		code = parsed
	default:
		return 0, fmt.Errorf("status must be a number, got %T", v)
	}
	if code < 100 || code > 599 {
		return 0, fmt.Errorf("status %d out of range", code)
	}
	return code, nil
}

func jsonString(v any) string {
	return oj.JSON(v, &oj.Options{Sort: true})
}
