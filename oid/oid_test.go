package oid

import "testing"

func TestNewAndParse(t *testing.T) {
	o := New(ShapeCode, "func(int64, int64) int64", 42)
	if o.String() != "func(int64, int64) int64=CODE(0x2a)" {
		t.Fatalf("unexpected oid: %s", o)
	}

	shape, typ, seq, err := o.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if shape != ShapeCode || typ != "func(int64, int64) int64" || seq != 42 {
		t.Fatalf("parse mismatch: %s %q %d", shape, typ, seq)
	}
}

func TestForeignIdDefaultsToObject(t *testing.T) {
	o := Oid("<Foo object at 0x7f3a>")
	if _, _, _, err := o.Parse(); err != ErrorInvalidOidString {
		t.Fatalf("expected ErrorInvalidOidString, got %v", err)
	}
	if o.Shape() != ShapeObject {
		t.Fatalf("expected OBJECT shape, got %s", o.Shape())
	}
	if o.TypeName() != "" {
		t.Fatalf("expected empty type name, got %q", o.TypeName())
	}
}
