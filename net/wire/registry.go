package wire

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// Default is the serializer used when none is configured.
const Default = "s1"

var (
	serializersMu sync.RWMutex
	serializers   = map[string]Serializer{
		"s1": JSONLine{},
		"c1": CBORLine{},
	}
)

// Register makes a serializer available by name.
func Register(s Serializer) {
	serializersMu.Lock()
	defer serializersMu.Unlock()
	serializers[s.Name()] = s
}

// Lookup returns the serializer registered under name; "" selects Default.
func Lookup(name string) (Serializer, error) {
	if name == "" {
		name = Default
	}
	serializersMu.RLock()
	defer serializersMu.RUnlock()
	s, ok := serializers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, name)
	}
	return s, nil
}

// Available lists registered serializer names.
func Available() []string {
	serializersMu.RLock()
	defer serializersMu.RUnlock()
	names := make([]string, 0, len(serializers))
	for name := range serializers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect picks the serializer of an incoming line from its leading bytes, so a node
// can read whatever its peer chose to write.
func Detect(line []byte) (Serializer, error) {
	switch {
	case bytes.HasPrefix(line, []byte("[")):
		return Lookup("s1")
	case bytes.HasPrefix(line, []byte(cborLinePrefix)):
		return Lookup("c1")
	}
	n := len(line)
	if n > 8 {
		n = 8
	}
	return nil, fmt.Errorf("%w: unrecognized line prefix %q", ErrMalformed, line[:n])
}

// Decode detects the serializer of line and unmarshals it.
func Decode(line []byte) (*Frame, error) {
	s, err := Detect(line)
	if err != nil {
		return nil, err
	}
	return s.Unmarshal(line)
}
