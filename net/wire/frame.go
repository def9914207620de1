package wire

import (
	"fmt"

	"rmi/oid"
)

// flatten lays a frame out as the generic wire array.
func flatten(f *Frame, finiteOnly bool) ([]any, error) {
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrMalformed, f.Kind)
	}

	ids := make([]any, 0, len(f.DestroyedIDs))
	for _, id := range f.DestroyedIDs {
		ids = append(ids, string(id))
	}

	items := make([]any, 0, 2+2*len(f.Values))
	items = append(items, string(f.Kind), ids)
	for _, tv := range f.Values {
		if err := checkValue(tv, finiteOnly); err != nil {
			return nil, err
		}
		v := tv.Value
		if tv.Tag == TagPrimitive {
			v, _ = Primitive(v)
		} else {
			v = string(tv.Value.(oid.Oid))
		}
		items = append(items, int64(tv.Tag), v)
	}
	return items, nil
}

// unflatten is the inverse of flatten. Numbers in items must already be int64 or float64.
func unflatten(items []any) (*Frame, error) {
	if len(items) < 2 {
		return nil, fmt.Errorf("%w: message has %d elements, need at least 2", ErrMalformed, len(items))
	}

	k, ok := items[0].(string)
	if !ok || !Kind(k).Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %v", ErrMalformed, items[0])
	}
	f := &Frame{Kind: Kind(k)}

	switch ids := items[1].(type) {
	case nil:
	case []any:
		for _, id := range ids {
			s, ok := id.(string)
			if !ok {
				return nil, fmt.Errorf("%w: destroyed id %v is not a string", ErrMalformed, id)
			}
			f.DestroyedIDs = append(f.DestroyedIDs, oid.Oid(s))
		}
	default:
		return nil, fmt.Errorf("%w: destroyed ids field is %T", ErrMalformed, items[1])
	}

	rest := items[2:]
	if len(rest)%2 != 0 {
		return nil, fmt.Errorf("%w: dangling tag without a value", ErrMalformed)
	}
	for i := 0; i < len(rest); i += 2 {
		t, ok := rest[i].(int64)
		if !ok {
			return nil, fmt.Errorf("%w: tag %v is not an integer", ErrMalformed, rest[i])
		}
		tv := TaggedValue{Tag: Tag(t), Value: rest[i+1]}
		switch tv.Tag {
		case TagPrimitive:
			if err := checkDecoded(tv.Value); err != nil {
				return nil, err
			}
		case TagExported, TagReference, TagBackReference:
			s, ok := tv.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: tag %d carries %T instead of an id", ErrMalformed, t, tv.Value)
			}
			tv.Value = oid.Oid(s)
		default:
			return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformed, t)
		}
		f.Values = append(f.Values, tv)
	}
	return f, nil
}
