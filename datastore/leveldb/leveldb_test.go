package leveldb

import (
	"os"
	"path/filepath"
	"testing"

	"rmi/datamodel/keyvalue"
	"rmi/datastore/storetest"
)

func TestStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	storetest.TestKeyValue(t, s)
}

func TestOpenRecoversCorruptedDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leveldb")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(keyvalue.Key("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// CURRENT names the manifest; without it the DB reports corruption.
	if err := os.WriteFile(filepath.Join(path, "CURRENT"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("corrupted DB was not recovered: %v", err)
	}
	defer s.Close()

	if err := s.Put(keyvalue.Key("after"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get(keyvalue.Key("after")); err != nil || string(v) != "1" {
		t.Fatalf("recovered DB unusable: %q (%v)", v, err)
	}
}
