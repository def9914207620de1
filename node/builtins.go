package node

import (
	"context"
	"errors"
	"fmt"

	"rmi/oid"
)

// Entry points every node answers without consulting its Resolver.
const (
	EvalEntryPoint    = "rmi.eval"
	CoderefEntryPoint = "rmi.exec_coderef"
	GetattrEntryPoint = "rmi.getattr"

	hasSentEntryPoint       = "rmi.has_sent"
	hasReceivedEntryPoint   = "rmi.has_received"
	sentCountEntryPoint     = "rmi.sent_count"
	receivedCountEntryPoint = "rmi.received_count"
	useEntryPoint           = "rmi.use"
	useLibEntryPoint        = "rmi.use_lib"
)

var builtins map[string]any

// Populated in init: the getattr builtin reaches back into dispatch through Proxy.Attr.
func init() {
	builtins = map[string]any{
		EvalEntryPoint:          evalBuiltin,
		CoderefEntryPoint:       execCoderef,
		GetattrEntryPoint:       getattrBuiltin,
		hasSentEntryPoint:       hasSentBuiltin,
		hasReceivedEntryPoint:   hasReceivedBuiltin,
		sentCountEntryPoint:     sentCountBuiltin,
		receivedCountEntryPoint: receivedCountBuiltin,
		useEntryPoint:           notSupported(useEntryPoint),
		useLibEntryPoint:        notSupported(useLibEntryPoint),
	}
}

var errNoActiveNode = errors.New("rmi: builtin called outside of a dispatch")

func current(ctx context.Context) (*Node, error) {
	n, ok := FromContext(ctx)
	if !ok {
		return nil, errNoActiveNode
	}
	return n, nil
}

func evalBuiltin(ctx context.Context, expr string, args ...any) (any, error) {
	n, err := current(ctx)
	if err != nil {
		return nil, err
	}
	if n.evaluator == nil {
		return nil, ErrEvalDisabled
	}
	n.log.Debugf("evaluating %q", expr)
	return n.evaluator.Eval(ctx, expr, args)
}

// execCoderef runs a callable this node exported earlier. The peer names it by id
// rather than sending it back, so it works for callables the peer only knows by id.
func execCoderef(ctx context.Context, id string, args ...any) (any, error) {
	n, err := current(ctx)
	if err != nil {
		return nil, err
	}
	fn, ok := n.lookupSent(oid.Oid(id))
	if !ok {
		return nil, fmt.Errorf("%w: no exported code reference %s", ErrNoSuchSymbol, id)
	}
	return invoke(ctx, fn, args, ArityScalar)
}

func getattrBuiltin(ctx context.Context, target any, name string) (any, error) {
	if p := proxyOf(target); p != nil {
		return p.Attr(ctx, name)
	}
	return getattr(target, name)
}

func hasSentBuiltin(ctx context.Context, id string) (bool, error) {
	n, err := current(ctx)
	if err != nil {
		return false, err
	}
	_, ok := n.lookupSent(oid.Oid(id))
	return ok, nil
}

func hasReceivedBuiltin(ctx context.Context, id string) (bool, error) {
	n, err := current(ctx)
	if err != nil {
		return false, err
	}
	return n.hasReceived(oid.Oid(id)), nil
}

func sentCountBuiltin(ctx context.Context) (int, error) {
	n, err := current(ctx)
	if err != nil {
		return 0, err
	}
	return n.Stats().Sent, nil
}

func receivedCountBuiltin(ctx context.Context) (int, error) {
	n, err := current(ctx)
	if err != nil {
		return 0, err
	}
	return n.Stats().Received, nil
}

func notSupported(name string) func(...any) (any, error) {
	return func(...any) (any, error) {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, name)
	}
}

// CallFunction calls a function the peer resolves by dotted name.
func (n *Node) CallFunction(ctx context.Context, name string, args ...any) (any, error) {
	return n.Call(ctx, CallFunction, nil, name, args...)
}

// CallClassMethod calls class.method on the peer.
func (n *Node) CallClassMethod(ctx context.Context, class, method string, args ...any) (any, error) {
	return n.Call(ctx, CallClassMethod, class, method, args...)
}

// CallObjectMethod calls a method on obj. obj is usually a proxy for one of the peer's
// objects, but local objects work too: the peer then calls back through its own proxy.
func (n *Node) CallObjectMethod(ctx context.Context, obj any, method string, args ...any) (any, error) {
	return n.Call(ctx, CallObjectMethod, obj, method, args...)
}

// CallEval has the peer evaluate expr. It fails unless the peer opted in with an Evaluator.
func (n *Node) CallEval(ctx context.Context, expr string, args ...any) (any, error) {
	return n.Call(ctx, CallEval, nil, EvalEntryPoint, append([]any{expr}, args...)...)
}

// CallCoderef runs a callable the peer exported to us.
func (n *Node) CallCoderef(ctx context.Context, code Remote, args ...any) (any, error) {
	return n.Call(ctx, CallCoderef, code, "", args...)
}

// RemoteHasSent reports whether the peer still holds the export behind r.
func (n *Node) RemoteHasSent(ctx context.Context, r Remote) (bool, error) {
	p := proxyOf(r)
	if p == nil || p.node != n {
		return false, fmt.Errorf("rmi: %v is not a proxy from this node", r)
	}
	v, err := n.Call(ctx, CallFunction, nil, hasSentEntryPoint, string(p.id))
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

// RemoteHasReceived reports whether the peer holds a live proxy for v. An object never
// exported cannot be held, so that case needs no round trip.
func (n *Node) RemoteHasReceived(ctx context.Context, v any) (bool, error) {
	id, ok := n.ExportedID(v)
	if !ok {
		return false, nil
	}
	res, err := n.Call(ctx, CallFunction, nil, hasReceivedEntryPoint, string(id))
	if err != nil {
		return false, err
	}
	held, _ := res.(bool)
	return held, nil
}

// RemoteCounts returns the sizes of the peer's sent and received tables.
func (n *Node) RemoteCounts(ctx context.Context) (sent, received int, err error) {
	s, err := n.Call(ctx, CallFunction, nil, sentCountEntryPoint)
	if err != nil {
		return 0, 0, err
	}
	r, err := n.Call(ctx, CallFunction, nil, receivedCountEntryPoint)
	if err != nil {
		return 0, 0, err
	}
	si, _ := s.(int64)
	ri, _ := r.(int64)
	return int(si), int(ri), nil
}
