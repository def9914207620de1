package starlarkeval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/starlark"
)

func TestEval(t *testing.T) {
	e := New(starlark.StringDict{"base": starlark.MakeInt(40)}, 0)
	ctx := context.Background()

	cases := []struct {
		expr string
		args []any
		want any
	}{
		{"2+3", nil, int64(5)},
		{"base + 2", nil, int64(42)},
		{"args[0] * args[1]", []any{int64(6), 1.5}, 9.0},
		{"'-'.join(['a', args[0]])", []any{"b"}, "a-b"},
		{"[1, 'x', None, True]", nil, []any{int64(1), "x", nil, true}},
		{"{'k': (1, 2)}", nil, map[string]any{"k": []any{int64(1), int64(2)}}},
	}
	for _, c := range cases {
		got, err := e.Eval(ctx, c.expr, c.args)
		if err != nil {
			t.Fatalf("%s: %v", c.expr, err)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", c.expr, diff)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	e := New(nil, 0)
	ctx := context.Background()

	if _, err := e.Eval(ctx, "1 // 0", nil); err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("expected division error, got %v", err)
	}
	if _, err := e.Eval(ctx, "undefined_name", nil); err == nil {
		t.Fatal("expected an error for an undefined name")
	}
	if _, err := e.Eval(ctx, "args", []any{[]int{1}}); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}
	if _, err := e.Eval(ctx, "{1: 2}", nil); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue for int dict keys, got %v", err)
	}
}

func TestEvalStepLimit(t *testing.T) {
	e := New(nil, 1000)
	if _, err := e.Eval(context.Background(), "[x for x in range(100000)]", nil); err == nil {
		t.Fatal("expected the step limit to stop the expression")
	}
}
