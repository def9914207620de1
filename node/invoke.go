package node

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Method names with a meaning of their own. They let a peer call, measure or index an
// object without knowing its Go type.
const (
	callMethod  = "__call__"
	lenMethod   = "__len__"
	indexMethod = "__getitem__"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// attribute finds the callable a method name refers to on target.
func attribute(target any, name string) (any, error) {
	if p := proxyOf(target); p != nil {
		return forward(p, name), nil
	}

	rv := reflect.ValueOf(target)
	switch name {
	case callMethod:
		if m := rv.MethodByName("Call"); m.IsValid() {
			return m.Interface(), nil
		}
		if rv.Kind() == reflect.Func {
			return target, nil
		}
		return nil, fmt.Errorf("%w: %T", ErrNotCallable, target)
	case lenMethod:
		if m := rv.MethodByName("Len"); m.IsValid() {
			return m.Interface(), nil
		}
		v := reflect.Indirect(rv)
		switch v.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
			return func() int { return v.Len() }, nil
		}
		return nil, fmt.Errorf("%T has no length", target)
	case indexMethod:
		if m := rv.MethodByName("Index"); m.IsValid() {
			return m.Interface(), nil
		}
		return func(key any) (any, error) { return index(rv, key) }, nil
	}

	if m := methodByName(rv, name); m.IsValid() {
		return m.Interface(), nil
	}
	if f, ok := fieldByName(rv, name); ok && f.Kind() == reflect.Func && !f.IsNil() {
		return f.Interface(), nil
	}
	return nil, fmt.Errorf("%w: %T has no method %s", ErrNoSuchSymbol, target, name)
}

// forward wraps a method of an object owned by some other node's peer.
func forward(p *Proxy, name string) func(context.Context, ...any) (any, error) {
	if name == callMethod {
		return p.Call
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return p.Invoke(ctx, name, args...)
	}
}

// getattr reads a method, exported field or string-keyed map entry.
func getattr(target any, name string) (any, error) {
	rv := reflect.ValueOf(target)
	if m := methodByName(rv, name); m.IsValid() {
		return m.Interface(), nil
	}
	if f, ok := fieldByName(rv, name); ok {
		return f.Interface(), nil
	}
	if v := reflect.Indirect(rv); v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String {
		e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if e.IsValid() {
			return e.Interface(), nil
		}
	}
	return nil, fmt.Errorf("%w: %T has no attribute %s", ErrNoSuchSymbol, target, name)
}

func methodByName(rv reflect.Value, name string) reflect.Value {
	if !rv.IsValid() {
		return reflect.Value{}
	}
	if m := rv.MethodByName(name); m.IsValid() {
		return m
	}
	if exp := exportedName(name); exp != name {
		return rv.MethodByName(exp)
	}
	return reflect.Value{}
}

func fieldByName(rv reflect.Value, name string) (reflect.Value, bool) {
	v := reflect.Indirect(rv)
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	sf, ok := v.Type().FieldByName(exportedName(name))
	if !ok || !sf.IsExported() {
		return reflect.Value{}, false
	}
	return v.FieldByIndex(sf.Index), true
}

// exportedName maps a peer's lower-case method name onto Go's exported form.
func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func index(rv reflect.Value, key any) (any, error) {
	v := reflect.Indirect(rv)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, ok := key.(int64)
		if !ok {
			return nil, fmt.Errorf("index must be an integer, got %T", key)
		}
		if i < 0 {
			i += int64(v.Len())
		}
		if i < 0 || i >= int64(v.Len()) {
			return nil, fmt.Errorf("index %v out of range [0:%d]", key, v.Len())
		}
		return v.Index(int(i)).Interface(), nil
	case reflect.Map:
		k, err := convertArg(key, v.Type().Key())
		if err != nil {
			return nil, err
		}
		e := v.MapIndex(k)
		if !e.IsValid() {
			return nil, fmt.Errorf("no such key %v", key)
		}
		return e.Interface(), nil
	}
	return nil, fmt.Errorf("%s is not indexable", rv.Type())
}

// invoke calls fn with params converted to its parameter types. A leading
// context.Context parameter receives ctx; a trailing error result is the call's failure.
// Resolved values that are not funcs are returned as-is when no params are given.
func invoke(ctx context.Context, fn any, params []any, arity int) (any, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		if len(params) == 0 {
			return fn, nil
		}
		return nil, fmt.Errorf("%w: %T", ErrNotCallable, fn)
	}
	if rv.IsNil() {
		return nil, fmt.Errorf("%w: nil %s", ErrNotCallable, rv.Type())
	}

	ft := rv.Type()
	in := make([]reflect.Value, 0, ft.NumIn())
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		in = append(in, reflect.ValueOf(&ctx).Elem())
		first = 1
	}

	fixed := ft.NumIn() - first
	if ft.IsVariadic() {
		fixed--
	}
	if len(params) < fixed || (!ft.IsVariadic() && len(params) > fixed) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrWrongArgCount, ft, fixed, len(params))
	}

	for i, p := range params {
		var t reflect.Type
		if i < fixed {
			t = ft.In(first + i)
		} else {
			t = ft.In(ft.NumIn() - 1).Elem()
		}
		v, err := convertArg(p, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in = append(in, v)
	}

	return results(rv.Call(in), ft, arity)
}

func results(out []reflect.Value, ft reflect.Type, arity int) (any, error) {
	if l := len(out); l > 0 && ft.Out(l-1) == errorType {
		if err, _ := out[l-1].Interface().(error); err != nil {
			return nil, err
		}
		out = out[:l-1]
	}

	if arity == ArityList {
		if len(out) == 1 {
			if v := out[0]; v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
				list := make([]any, v.Len())
				for i := range list {
					list[i] = v.Index(i).Interface()
				}
				return list, nil
			}
		}
		list := make([]any, len(out))
		for i, v := range out {
			list[i] = v.Interface()
		}
		return list, nil
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	list := make([]any, len(out))
	for i, v := range out {
		list[i] = v.Interface()
	}
	return list, nil
}

// convertArg fits a decoded value to a parameter type. Numbers convert only when no
// information is lost.
func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		if isUnsigned(t.Kind()) && (isSigned(rv.Kind()) && rv.Int() < 0 || isFloat(rv.Kind()) && rv.Float() < 0) {
			return reflect.Value{}, fmt.Errorf("cannot use negative %v as %s", v, t)
		}
		c := rv.Convert(t)
		if !c.Convert(rv.Type()).Equal(rv) {
			return reflect.Value{}, fmt.Errorf("cannot use %v as %s without loss", v, t)
		}
		return c, nil
	case rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) && (t.Kind() == reflect.String || t.Kind() == reflect.Bool):
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || isFloat(k)
}
