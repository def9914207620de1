package node

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"rmi/net/wire"
)

type query struct {
	method string
	arity  int
	target any
	params []any
}

func parseQuery(data []any) (*query, error) {
	if len(data) < 4 {
		return nil, protocolError("query carries %d values, need at least 4", len(data))
	}
	method, ok := data[0].(string)
	if !ok || method == "" {
		return nil, protocolError("query method is %T, not a name", data[0])
	}
	arity, ok := data[1].(int64)
	if !ok {
		return nil, protocolError("query arity hint is %T", data[1])
	}
	count, ok := data[3].(int64)
	if !ok || count < 0 || int64(len(data)-4) != count {
		return nil, protocolError("query declares %v params but carries %d", data[3], len(data)-4)
	}
	return &query{
		method: method,
		arity:  int(arity),
		target: data[2],
		params: data[4:],
	}, nil
}

// process answers one inbound query. Failures of the call itself go back to the peer
// as an exception; only transport and protocol failures are returned.
func (n *Node) process(ctx context.Context, data []any) (*Exchange, error) {
	q, err := parseQuery(data)
	if err != nil {
		return nil, err
	}
	n.log.Debugf("dispatching %s on %v with %d params", q.method, q.target, len(q.params))

	ex := &Exchange{Method: q.method}
	result, callErr := n.dispatch(ctx, q)
	if callErr == nil {
		err := n.send(wire.Result, []any{result})
		if err == nil {
			ex.Response, ex.Value = wire.Result, result
			return ex, nil
		}
		if !errors.Is(err, ErrProtocol) {
			return nil, err
		}
		n.log.Errorf("cannot encode result of %s: %v", q.method, err)
		callErr = fmt.Errorf("rmi: cannot encode result of %s: %v", q.method, err)
	}

	// Error texts may carry arbitrary bytes; the exception itself must always encode.
	text := strings.ToValidUTF8(callErr.Error(), "\uFFFD")
	if text == "" {
		text = fmt.Sprintf("rmi: %s failed", q.method)
	}
	n.log.Debugf("%s raised: %s", q.method, text)
	if err := n.send(wire.Exception, []any{text}); err != nil {
		return nil, err
	}
	ex.Response, ex.Value = wire.Exception, text
	return ex, nil
}

func (n *Node) dispatch(ctx context.Context, q *query) (result any, err error) {
	ctx, leave := n.enter(ctx)
	defer leave()
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("panic in %s: %v\n%s", q.method, r, debug.Stack())
			result, err = nil, fmt.Errorf("panic in %s: %v", q.method, r)
		}
	}()

	fn, err := n.resolve(q.target, q.method)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, fn, q.params, q.arity)
}

func (n *Node) resolve(target any, method string) (any, error) {
	switch t := target.(type) {
	case nil:
		if fn, ok := builtins[method]; ok {
			return fn, nil
		}
		return n.lookup(method)
	case string:
		return n.lookup(t + "." + method)
	}
	return attribute(target, method)
}

func (n *Node) lookup(name string) (any, error) {
	if n.resolver == nil {
		return nil, fmt.Errorf("%w: cannot resolve %s", ErrNoResolver, name)
	}
	return n.resolver.Resolve(name)
}
