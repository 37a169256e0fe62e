// Package snfilter evaluates content expressions against individual messages.
//
// Expressions are written in CEL and see two variables:
// msg, the message body decoded as a JSON object,
// and subject, the subject the message arrived on.
// For example:
//
//	msg.voltage < 10.0 && msg.charging == false
//
// Programs are compiled once and evaluated in a sandbox with a cost limit,
// so an expression can neither run arbitrary code nor loop without bound.
package snfilter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/gordian-engine/gsentor/internal/glog"
	"github.com/gordian-engine/gsentor/sn/snsubject"
)

// CostLimit bounds the runtime cost of a single evaluation.
const CostLimit = 100_000

var env = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("msg", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("subject", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
})

// Older configurations wrote expressions as "lambda msg: <body>".
// The prefix carries no meaning beyond naming the message variable.
var lambdaPrefix = regexp.MustCompile(`^\s*lambda\s+msg\s*:\s*`)

// Program is a compiled content expression.
type Program struct {
	expr string
	prg  cel.Program
}

// CompileError is returned by [Compile] when an expression is rejected.
type CompileError struct {
	Expression string
	Err        error
}

func (e CompileError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expression, singleLine(e.Err.Error()))
}

// singleLine drops the source excerpts CEL appends under each issue
// and joins the remaining issues on one line.
func singleLine(msg string) string {
	var out []string
	for line := range strings.Lines(msg) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "|") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "; ")
}

func (e CompileError) Unwrap() error { return e.Err }

// Compile parses and type-checks expr.
// The expression must produce a bool, or a dynamic value checked at evaluation time.
func Compile(expr string) (*Program, error) {
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("build expression environment: %w", err)
	}

	src := lambdaPrefix.ReplaceAllString(expr, "")
	if src == "" {
		return nil, CompileError{Expression: expr, Err: errors.New("empty expression")}
	}

	ast, iss := e.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, CompileError{Expression: expr, Err: iss.Err()}
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, CompileError{
			Expression: expr,
			Err:        fmt.Errorf("expression has type %s, want bool", out),
		}
	}

	prg, err := e.Program(ast, cel.CostLimit(CostLimit))
	if err != nil {
		return nil, CompileError{Expression: expr, Err: err}
	}

	return &Program{expr: expr, prg: prg}, nil
}

// Expression returns the source text of p, as it was passed to [Compile].
func (p *Program) Expression() string {
	return p.expr
}

// Eval evaluates p against m.
func (p *Program) Eval(ctx context.Context, m snsubject.Message) (bool, error) {
	fields, err := m.Fields()
	if err != nil {
		return false, err
	}

	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		"msg":     fields,
		"subject": m.Subject,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.expr, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: result %v is %T, not bool", p.expr, out.Value(), out.Value())
	}
	return b, nil
}

// Callbacks receive the result of each evaluation.
type Callbacks struct {
	Satisfied   func(expr string, m snsubject.Message)
	Unsatisfied func(expr string)
}

// Filter evaluates one [Program] against every observed message
// and reports the result through its [Callbacks].
//
// The callbacks fire on every message, not only on changes.
// Consumers that care about transitions must track them.
type Filter struct {
	log *slog.Logger
	p   *Program
	cb  Callbacks
}

func NewFilter(log *slog.Logger, p *Program, cb Callbacks) *Filter {
	return &Filter{
		log: log.With("expr", p.Expression()),
		p:   p,
		cb:  cb,
	}
}

// Observe evaluates the filter's program against m.
// It has the signature of a [snsubject.Handler].
//
// An evaluation error, such as a missing field or an undecodable body,
// counts as unsatisfied.
func (f *Filter) Observe(m snsubject.Message) {
	ok, err := f.p.Eval(context.Background(), m)
	if err != nil {
		f.log.Debug(
			"Expression could not be evaluated; treating as unsatisfied",
			"subject", m.Subject, "payload", glog.Payload(m.Data), "err", err,
		)
	}

	if ok {
		if f.cb.Satisfied != nil {
			f.cb.Satisfied(f.p.Expression(), m)
		}
		return
	}

	if f.cb.Unsatisfied != nil {
		f.cb.Unsatisfied(f.p.Expression())
	}
}
