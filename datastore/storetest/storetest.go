// Package storetest keeps the test suite run against every keyvalue.KeyValue backend.
package storetest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rmi/datamodel/keyvalue"
)

func TestKeyValue(t *testing.T, kv keyvalue.KeyValue) {
	t.Helper()

	if _, err := kv.Get(keyvalue.Key("missing")); !errors.Is(err, keyvalue.ErrNotFound) {
		t.Fatalf("Get of a missing key: expected ErrNotFound, got %v", err)
	}
	if ok, err := kv.Has(keyvalue.Key("missing")); err != nil || ok {
		t.Fatalf("Has of a missing key: %v (%v)", ok, err)
	}

	entries := map[string]string{
		"user/alice": "1",
		"user/bob":   "2",
		"group/ops":  "3",
	}
	for k, v := range entries {
		if err := kv.Put(keyvalue.Key(k), []byte(v)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	v, err := kv.Get(keyvalue.Key("user/bob"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "2" {
		t.Fatalf("Get(user/bob): expected 2, got %q", v)
	}

	keys, err := kv.Keys(keyvalue.Key("user/"))
	if err != nil {
		t.Fatal(err)
	}
	want := []keyvalue.Key{keyvalue.Key("user/alice"), keyvalue.Key("user/bob")}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("Keys(user/) mismatch (-want +got):\n%s", diff)
	}

	all, err := kv.Keys(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(entries) {
		t.Fatalf("Keys(nil): expected %d keys, got %d", len(entries), len(all))
	}

	if err := kv.Delete(keyvalue.Key("user/alice")); err != nil {
		t.Fatal(err)
	}
	if err := kv.Delete(keyvalue.Key("user/alice")); err != nil {
		t.Fatalf("Delete of an absent key: %v", err)
	}
	if ok, err := kv.Has(keyvalue.Key("user/alice")); err != nil || ok {
		t.Fatalf("deleted key still present: %v (%v)", ok, err)
	}
}
