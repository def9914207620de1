package node

import (
	"reflect"

	"rmi/net/wire"
	"rmi/oid"
)

// encode translates outgoing values into tagged slots and attaches the pending
// releases. Values go first so that an id released and re-sent in the same message
// is never reported destroyed ahead of its own use.
func (n *Node) encode(kind wire.Kind, data []any) (*wire.Frame, error) {
	values := make([]wire.TaggedValue, len(data))
	for i, v := range data {
		values[i] = n.encodeValue(v)
	}
	return &wire.Frame{
		Kind:         kind,
		DestroyedIDs: n.drainDestroyed(),
		Values:       values,
	}, nil
}

func (n *Node) encodeValue(v any) wire.TaggedValue {
	if isNil(v) {
		return wire.TaggedValue{Tag: wire.TagPrimitive, Value: nil}
	}
	if p, ok := wire.Primitive(v); ok {
		return wire.TaggedValue{Tag: wire.TagPrimitive, Value: p}
	}
	if p := proxyOf(v); p != nil && p.node == n {
		// One of the peer's own objects going back; it resolves to the original there.
		return wire.TaggedValue{Tag: wire.TagBackReference, Value: p.id}
	}
	return wire.TaggedValue{Tag: wire.TagExported, Value: n.export(v)}
}

// decode turns tagged slots back into values: primitives as-is, the peer's objects as
// proxies and our own objects as the originals.
func (n *Node) decode(f *wire.Frame) ([]any, error) {
	out := make([]any, len(f.Values))
	for i, tv := range f.Values {
		switch tv.Tag {
		case wire.TagPrimitive:
			out[i] = tv.Value
		case wire.TagExported, wire.TagReference:
			out[i] = n.proxyFor(tv.Value.(oid.Oid))
		case wire.TagBackReference:
			id := tv.Value.(oid.Oid)
			v, ok := n.lookupSent(id)
			if !ok {
				return nil, protocolError("back-reference to unknown object %s", id)
			}
			out[i] = v
		default:
			return nil, protocolError("unknown tag %d", tv.Tag)
		}
	}
	return out, nil
}

// isNil catches typed nils, which carry no object worth exporting.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
