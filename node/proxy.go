package node

import (
	"context"
	"fmt"

	"rmi/oid"
)

// Remote is implemented by values standing in for an object owned by the peer.
// Wrapper types embed or return a *Proxy so that passing them back to the peer
// sends a back-reference instead of exporting the wrapper.
type Remote interface {
	RemoteProxy() *Proxy
}

// Proxy is the local handle for an object exported by the peer. Its lifetime drives
// the export: once the last reference to it is dropped and collected, the id is
// reported destroyed with the next outgoing message.
//
// A Proxy is only usable while its node is; calls through it after Close fail with
// ErrClosed.
type Proxy struct {
	node  *Node
	id    oid.Oid
	shape oid.Shape
}

func (p *Proxy) RemoteProxy() *Proxy {
	return p
}

// proxyOf returns the proxy behind v, or nil when v is nil or not a Remote.
func proxyOf(v any) *Proxy {
	if isNil(v) {
		return nil
	}
	r, ok := v.(Remote)
	if !ok {
		return nil
	}
	return r.RemoteProxy()
}

func (p *Proxy) ID() oid.Oid {
	return p.id
}

func (p *Proxy) Shape() oid.Shape {
	return p.shape
}

func (p *Proxy) Node() *Node {
	return p.node
}

func (p *Proxy) String() string {
	return fmt.Sprintf("proxy(%s)", p.id)
}

// Invoke calls a method on the remote object.
func (p *Proxy) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	return p.node.Call(ctx, CallObjectMethod, p, method, args...)
}

// InvokeList is Invoke asking for the results packed as a list.
func (p *Proxy) InvokeList(ctx context.Context, method string, args ...any) ([]any, error) {
	v, err := p.node.CallArity(ctx, CallObjectMethod, ArityList, p, method, args...)
	if err != nil {
		return nil, err
	}
	return asList(ctx, v)
}

// Call invokes the remote object itself. Code references go through the coderef entry
// point; anything else is asked for its __call__ method.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	if p.shape == oid.ShapeCode {
		return p.node.Call(ctx, CallCoderef, p, "", args...)
	}
	return p.Invoke(ctx, callMethod, args...)
}

// Attr reads a field, method or key of the remote object.
func (p *Proxy) Attr(ctx context.Context, name string) (any, error) {
	return p.node.Call(ctx, CallFunction, nil, GetattrEntryPoint, p, name)
}

func (p *Proxy) Len(ctx context.Context) (int, error) {
	v, err := p.Invoke(ctx, lenMethod)
	if err != nil {
		return 0, err
	}
	l, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%s: length is %T, not an integer", p.id, v)
	}
	return int(l), nil
}

func (p *Proxy) Index(ctx context.Context, key any) (any, error) {
	return p.Invoke(ctx, indexMethod, key)
}

// asList unpacks a list result. Lists cross the wire as a proxy for the peer's slice
// and are fetched element by element.
func asList(ctx context.Context, v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case *Proxy:
		l, err := x.Len(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, l)
		for i := range out {
			if out[i], err = x.Index(ctx, int64(i)); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return []any{v}, nil
}
