// Package wire encodes RMI messages to and from single lines of text.
//
// A message travels as one line holding a flat array:
//
//	[kind, destroyed_ids, tag_1, value_1, tag_2, value_2, ...]
//
// Each (tag, value) pair is a TaggedValue. Primitives are copied by value; everything
// else crosses the wire as an oid.Oid naming an object that stays on its owner's side.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"rmi/oid"
)

type Kind string

const (
	Query     Kind = "query"
	Result    Kind = "result"
	Exception Kind = "exception"
	Close     Kind = "close"
)

func (k Kind) Valid() bool {
	switch k {
	case Query, Result, Exception, Close:
		return true
	}
	return false
}

type Tag int

const (
	TagPrimitive     Tag = 0 // value copied as-is
	TagExported      Tag = 1 // object owned by the sender, proxied by the receiver
	TagReference     Tag = 2 // legacy non-object reference; decoded like TagExported, never produced
	TagBackReference Tag = 3 // object owned by the receiver, returning home
)

var (
	ErrMalformed          = errors.New("malformed message")
	ErrEmbeddedTerminator = errors.New("line terminator embedded in encoded message")
	ErrUnknownSerializer  = errors.New("unknown serializer")
)

// TaggedValue is one encoded payload slot. Value is a primitive for TagPrimitive and an
// oid.Oid for every other tag.
type TaggedValue struct {
	Tag   Tag
	Value any
}

// Frame is a message after identity translation and before text serialization.
type Frame struct {
	Kind         Kind
	DestroyedIDs []oid.Oid
	Values       []TaggedValue
}

// Serializer turns a Frame into one newline-free line and back.
type Serializer interface {
	Name() string
	Marshal(f *Frame) ([]byte, error)
	Unmarshal(line []byte) (*Frame, error)
}

// Primitive reports whether v is carried by value and returns its canonical form:
// nil, string, bool, int64 or float64. Named types are reduced to their underlying kind.
func Primitive(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case string:
		return x, true
	case bool:
		return x, true
	case int64:
		return x, true
	case float64:
		return x, true
	case int:
		return int64(x), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			// Too large for the wire integer; degrade to float rather than wrap around.
			return float64(u), true
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return nil, false
}

// checkValue validates one slot before it is written. Serializers without a form for NaN
// and the infinities pass finiteOnly.
func checkValue(tv TaggedValue, finiteOnly bool) error {
	switch tv.Tag {
	case TagPrimitive:
		p, ok := Primitive(tv.Value)
		if !ok {
			return fmt.Errorf("%w: %T is not a primitive", ErrMalformed, tv.Value)
		}
		switch x := p.(type) {
		case float64:
			if finiteOnly && (math.IsNaN(x) || math.IsInf(x, 0)) {
				return fmt.Errorf("%w: float %v has no wire form", ErrMalformed, x)
			}
		case string:
			if !utf8.ValidString(x) {
				return fmt.Errorf("%w: string is not valid UTF-8", ErrMalformed)
			}
		}
	case TagExported, TagReference, TagBackReference:
		if _, ok := tv.Value.(oid.Oid); !ok {
			return fmt.Errorf("%w: tag %d needs an oid, got %T", ErrMalformed, tv.Tag, tv.Value)
		}
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrMalformed, tv.Tag)
	}
	return nil
}

// checkDecoded rejects anything a decoder produced under the primitive tag that is not
// one of the canonical primitive types, such as arrays and maps.
func checkDecoded(v any) error {
	switch v.(type) {
	case nil, string, bool, int64, float64:
		return nil
	}
	return fmt.Errorf("%w: primitive tag carries %T", ErrMalformed, v)
}

func checkLine(line []byte) error {
	if bytes.ContainsAny(line, "\r\n") {
		return ErrEmbeddedTerminator
	}
	return nil
}
