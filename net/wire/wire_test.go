package wire

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"rmi/oid"
)

func primitiveFrame() *Frame {
	return &Frame{
		Kind:         Query,
		DestroyedIDs: []oid.Oid{oid.New(oid.ShapeObject, "*main.T", 3)},
		Values: []TaggedValue{
			{TagPrimitive, nil},
			{TagPrimitive, "hello, \"world\"\nsecond line"},
			{TagPrimitive, int64(-7)},
			{TagPrimitive, int64(math.MaxInt64)},
			{TagPrimitive, 15.0},
			{TagPrimitive, 2.5e-300},
			{TagPrimitive, true},
			{TagExported, oid.New(oid.ShapeCode, "func() int64", 1)},
			{TagBackReference, oid.Oid("<Foo object at 0x1>")},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, name := range Available() {
		s, err := Lookup(name)
		if err != nil {
			t.Fatal(err)
		}

		line, err := s.Marshal(primitiveFrame())
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		t.Logf("%s: %s", name, line)

		got, err := Decode(line)
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if diff := cmp.Diff(primitiveFrame(), got); diff != "" {
			t.Fatalf("%s: round trip mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestIntegerAndFloatStayDistinct(t *testing.T) {
	line, err := JSONLine{}.Marshal(&Frame{Kind: Result, Values: []TaggedValue{{TagPrimitive, 15.0}}})
	if err != nil {
		t.Fatal(err)
	}
	if string(line) != `["result", [], 0, 15.0]` {
		t.Fatalf("unexpected line %s", line)
	}

	f, err := JSONLine{}.Unmarshal([]byte(`["result", [], 0, 15]`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Values[0].Value.(int64); !ok {
		t.Fatalf("expected int64, got %T", f.Values[0].Value)
	}
}

func TestNamedPrimitivesAreReduced(t *testing.T) {
	type celsius float32
	type label string

	line, err := JSONLine{}.Marshal(&Frame{Kind: Result, Values: []TaggedValue{
		{TagPrimitive, celsius(1.5)},
		{TagPrimitive, label("x")},
		{TagPrimitive, uint8(200)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	want := []TaggedValue{{TagPrimitive, 1.5}, {TagPrimitive, "x"}, {TagPrimitive, int64(200)}}
	if diff := cmp.Diff(want, f.Values); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalRejects(t *testing.T) {
	cases := map[string]*Frame{
		"nan":          {Kind: Result, Values: []TaggedValue{{TagPrimitive, math.NaN()}}},
		"unknown kind": {Kind: "bogus"},
		"unknown tag":  {Kind: Result, Values: []TaggedValue{{Tag(9), int64(1)}}},
		"non-oid ref":  {Kind: Result, Values: []TaggedValue{{TagExported, 12}}},
		"non-prim":     {Kind: Result, Values: []TaggedValue{{TagPrimitive, []int{1}}}},
		"inf":          {Kind: Result, Values: []TaggedValue{{TagPrimitive, math.Inf(-1)}}},
	}
	for name, f := range cases {
		if _, err := (JSONLine{}).Marshal(f); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestInvalidUTF8IsRejected(t *testing.T) {
	type label string
	frames := []*Frame{
		{Kind: Result, Values: []TaggedValue{{TagPrimitive, "a\xffb"}}},
		{Kind: Result, Values: []TaggedValue{{TagPrimitive, label("\xc3")}}},
	}
	for _, name := range Available() {
		s, err := Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		for _, f := range frames {
			if _, err := s.Marshal(f); !errors.Is(err, ErrMalformed) {
				t.Errorf("%s: expected ErrMalformed for %q, got %v", name, f.Values[0].Value, err)
			}
		}
	}
}

func TestNonFiniteFloats(t *testing.T) {
	f := &Frame{Kind: Result, Values: []TaggedValue{
		{TagPrimitive, math.Inf(1)},
		{TagPrimitive, math.Inf(-1)},
		{TagPrimitive, math.NaN()},
	}}
	line, err := CBORLine{}.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if v := got.Values[0].Value; v != math.Inf(1) {
		t.Fatalf("expected +Inf, got %v (%T)", v, v)
	}
	if v := got.Values[1].Value; v != math.Inf(-1) {
		t.Fatalf("expected -Inf, got %v (%T)", v, v)
	}
	if v, ok := got.Values[2].Value.(float64); !ok || !math.IsNaN(v) {
		t.Fatalf("expected NaN, got %v (%T)", got.Values[2].Value, got.Values[2].Value)
	}
}

func TestDecodedPrimitivesAreScalars(t *testing.T) {
	raw, err := cbor.Marshal([]any{"result", []any{}, 0, map[string]any{"a": 1}})
	if err != nil {
		t.Fatal(err)
	}
	lines := []string{
		`["result", [], 0, [1, [2, "x"]]]`,
		`["result", [], 0, []]`,
		"c1:" + base64.StdEncoding.EncodeToString(raw),
	}
	for _, l := range lines {
		if _, err := Decode([]byte(l)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", l, err)
		}
	}
}

func TestUnmarshalRejects(t *testing.T) {
	lines := []string{
		`["query"]`,
		`["nope", []]`,
		`["result", [], 7, 1]`,
		`["result", [], 0]`,
		`["result", [], 3, 12]`,
		`["result", [1], 0, 1]`,
		`["result", [], 0, {"a": 1}]`,
		`["result", []] trailing`,
		`c1:!!!`,
		`{"kind": "query"}`,
	}
	for _, l := range lines {
		if _, err := Decode([]byte(l)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", l, err)
		}
	}
}

func TestLegacyReferenceTagIsAccepted(t *testing.T) {
	f, err := Decode([]byte(`["result", [], 2, "HASH(0x1)"]`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Values[0].Tag != TagReference || f.Values[0].Value != oid.Oid("HASH(0x1)") {
		t.Fatalf("unexpected value %+v", f.Values[0])
	}
}

func TestCheckLine(t *testing.T) {
	if err := checkLine([]byte("[\"a\"]\n")); err != ErrEmbeddedTerminator {
		t.Fatalf("expected ErrEmbeddedTerminator, got %v", err)
	}
	if err := checkLine([]byte("a\rb")); err != ErrEmbeddedTerminator {
		t.Fatalf("expected ErrEmbeddedTerminator, got %v", err)
	}
	if err := checkLine([]byte(`["close", []]`)); err != nil {
		t.Fatal(err)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("s9"); !errors.Is(err, ErrUnknownSerializer) {
		t.Fatalf("expected ErrUnknownSerializer, got %v", err)
	}
	s, err := Lookup("")
	if err != nil || s.Name() != Default {
		t.Fatalf("expected default serializer, got %v %v", s, err)
	}
}
