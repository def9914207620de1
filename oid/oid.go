// Package oid implements the identifiers under which objects are exported across an RMI
// connection.
//
// An Oid is minted by the side that owns the object and is opaque to the peer, except
// that it carries a readable shape and type so that logs and proxies can describe what
// they stand for. The textual form is modeled on classic "Class=SHAPE(0x...)" references:
//
//	*hostlib.Store=OBJECT(0x1f)
//	func(int64, int64) int64=CODE(0x2)
package oid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

type Shape string

const (
	ShapeObject Shape = "OBJECT" // pointers, structs and anything without a better shape
	ShapeCode   Shape = "CODE"   // funcs; the peer may call the proxy directly
	ShapeHash   Shape = "HASH"   // maps
	ShapeArray  Shape = "ARRAY"  // slices and arrays
	ShapeChan   Shape = "CHAN"
)

var ErrorInvalidOidString = errors.New("invalid OID string")

var oidPattern = regexp.MustCompile(`^(.*)=([A-Z]+)\(0x([0-9a-f]+)\)$`)

// Oid is the wire form of an exported object identity.
type Oid string

// New mints the identifier for the seq-th object exported by a node.
func New(shape Shape, typeName string, seq uint64) Oid {
	return Oid(fmt.Sprintf("%s=%s(0x%x)", typeName, shape, seq))
}

func (o Oid) String() string {
	return string(o)
}

// Parse splits an Oid into its parts. Peers are free to mint ids in other formats, so
// callers treat a parse failure as "unknown shape" rather than as a protocol error.
func (o Oid) Parse() (shape Shape, typeName string, seq uint64, err error) {
	m := oidPattern.FindStringSubmatch(string(o))
	if m == nil {
		return "", "", 0, ErrorInvalidOidString
	}
	seq, err = strconv.ParseUint(m[3], 16, 64)
	if err != nil {
		return "", "", 0, ErrorInvalidOidString
	}
	return Shape(m[2]), m[1], seq, nil
}

// Shape returns the shape embedded in the id, or ShapeObject when it can't be parsed.
func (o Oid) Shape() Shape {
	s, _, _, err := o.Parse()
	if err != nil {
		return ShapeObject
	}
	return s
}

// TypeName returns the owner-side type name embedded in the id, if any.
func (o Oid) TypeName() string {
	_, t, _, err := o.Parse()
	if err != nil {
		return ""
	}
	return t
}
