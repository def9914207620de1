package hostlib

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"rmi/datamodel/keyvalue"
	"rmi/net/wire"
)

// Store is the object a peer gets back from kv.open. Values are primitives, stored
// CBOR encoded.
type Store struct {
	name string
	kv   keyvalue.KeyValue
}

func (s *Store) Name() string {
	return s.name
}

// Get returns the value under key, or nil when there is none.
func (s *Store) Get(key string) (any, error) {
	raw, err := s.kv.Get(keyvalue.Key(key))
	if errors.Is(err, keyvalue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s/%s: %w", s.name, key, err)
	}
	switch x := v.(type) {
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
		return float64(x), nil
	case float32:
		return float64(x), nil
	}
	return v, nil
}

func (s *Store) Put(key string, value any) error {
	p, ok := wire.Primitive(value)
	if !ok {
		return fmt.Errorf("%s/%s: cannot store %T", s.name, key, value)
	}
	raw, err := cbor.Marshal(p)
	if err != nil {
		return err
	}
	return s.kv.Put(keyvalue.Key(key), raw)
}

func (s *Store) Has(key string) (bool, error) {
	return s.kv.Has(keyvalue.Key(key))
}

func (s *Store) Delete(key string) error {
	return s.kv.Delete(keyvalue.Key(key))
}

// Keys lists keys starting with prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	keys, err := s.kv.Keys(keyvalue.Key(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out, nil
}

func (s *Store) Len() (int, error) {
	keys, err := s.kv.Keys(nil)
	return len(keys), err
}
