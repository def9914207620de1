// Package starlarkeval evaluates expressions sent to the rmi.eval entry point.
//
// Expressions are Starlark, not Go: the language is small, deterministic and has no
// access to the host beyond the values predeclared for it. Arguments passed along with
// the expression are visible as the tuple args.
package starlarkeval

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"go.starlark.net/starlark"

	"rmi/net/wire"
)

var ErrUnsupportedValue = errors.New("value has no Starlark equivalent")

type Evaluator struct {
	predeclared starlark.StringDict
	steps       uint64
}

// New returns an evaluator exposing predeclared to every expression. A non-zero
// maxSteps bounds the work one expression may do.
func New(predeclared starlark.StringDict, maxSteps uint64) *Evaluator {
	if predeclared == nil {
		predeclared = starlark.StringDict{}
	}
	return &Evaluator{predeclared: predeclared, steps: maxSteps}
}

func (e *Evaluator) Eval(ctx context.Context, expr string, args []any) (any, error) {
	tuple := make(starlark.Tuple, len(args))
	for i, a := range args {
		v, err := ToStarlark(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		tuple[i] = v
	}

	env := make(starlark.StringDict, len(e.predeclared)+1)
	for k, v := range e.predeclared {
		env[k] = v
	}
	env["args"] = tuple

	thread := &starlark.Thread{
		Name:  "rmi.eval",
		Print: func(_ *starlark.Thread, msg string) { log.Infof("eval: %s", msg) },
	}
	if e.steps > 0 {
		thread.SetMaxExecutionSteps(e.steps)
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	v, err := starlark.Eval(thread, "<rmi.eval>", expr, env)
	if err != nil {
		var ee *starlark.EvalError
		if errors.As(err, &ee) {
			return nil, errors.New(ee.Backtrace())
		}
		return nil, err
	}
	return FromStarlark(v)
}

// ToStarlark converts a wire primitive.
func ToStarlark(v any) (starlark.Value, error) {
	p, ok := wire.Primitive(v)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	switch x := p.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// FromStarlark converts a result to plain Go values. Lists and tuples become []any,
// dicts with string keys become map[string]any.
func FromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			f := x.Float()
			if math.IsInf(float64(f), 0) {
				return nil, fmt.Errorf("%w: integer %s out of range", ErrUnsupportedValue, x)
			}
			return float64(f), nil
		}
		return i, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.Indexable:
		out := make([]any, x.Len())
		for i := range out {
			e, err := FromStarlark(x.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			ks, ok := k.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%w: dict key %s", ErrUnsupportedValue, k.Type())
			}
			val, _, err := x.Get(k)
			if err != nil {
				return nil, err
			}
			if out[string(ks)], err = FromStarlark(val); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, v.Type())
}
