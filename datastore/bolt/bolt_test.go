package bolt

import (
	"path/filepath"
	"testing"

	"rmi/datastore/storetest"
)

func TestStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "kv.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	storetest.TestKeyValue(t, s)
}
