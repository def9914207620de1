package wire

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

const cborLinePrefix = "c1:"

// CBORLine is the "c1" serializer: the frame as a CBOR array, base64 encoded so the
// line framing still holds. Smaller and faster to parse than s1 for numeric payloads,
// and it carries NaN and the infinities.
type CBORLine struct{}

func (CBORLine) Name() string { return "c1" }

func (CBORLine) Marshal(f *Frame) ([]byte, error) {
	items, err := flatten(f, false)
	if err != nil {
		return nil, err
	}

	raw, err := cbor.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	line := make([]byte, len(cborLinePrefix)+base64.StdEncoding.EncodedLen(len(raw)))
	copy(line, cborLinePrefix)
	base64.StdEncoding.Encode(line[len(cborLinePrefix):], raw)
	if err := checkLine(line); err != nil {
		return nil, err
	}
	return line, nil
}

func (CBORLine) Unmarshal(line []byte) (*Frame, error) {
	if !bytes.HasPrefix(line, []byte(cborLinePrefix)) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMalformed, cborLinePrefix)
	}
	body := line[len(cborLinePrefix):]
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(raw, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var items []any
	if err := cbor.Unmarshal(raw[:n], &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range items {
		v, err := normalizeCBOR(items[i])
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return unflatten(items)
}

// CBOR decodes non-negative integers as uint64; the wire integer is int64.
func normalizeCBOR(v any) (any, error) {
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", ErrMalformed, x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []any:
		for i := range x {
			n, err := normalizeCBOR(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	}
	return v, nil
}
