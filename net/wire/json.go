package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// JSONLine is the "s1" serializer: the frame as a JSON array, readable in logs and by
// most scripting languages without a custom parser. Integers and floats stay distinct
// because floats are always written with a fraction or exponent. JSON has no NaN or
// infinities, so those floats cannot be sent.
type JSONLine struct{}

func (JSONLine) Name() string { return "s1" }

func (JSONLine) Marshal(f *Frame) ([]byte, error) {
	items, err := flatten(f, true)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := writeJSON(buf, items); err != nil {
		return nil, err
	}
	line := buf.Bytes()
	if err := checkLine(line); err != nil {
		return nil, err
	}
	return line, nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("%w: cannot write %T", ErrMalformed, v)
	}
	return nil
}

func (JSONLine) Unmarshal(line []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after message", ErrMalformed)
	}

	for i := range items {
		n, err := normalizeJSON(items[i])
		if err != nil {
			return nil, err
		}
		items[i] = n
	}
	return unflatten(items)
}

func normalizeJSON(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if strings.ContainsAny(s, ".eE") {
			f, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: bad float %s", ErrMalformed, s)
			}
			return f, nil
		}
		i, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad integer %s", ErrMalformed, s)
		}
		return i, nil
	case []any:
		for i := range x {
			n, err := normalizeJSON(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	case map[string]any:
		return nil, fmt.Errorf("%w: objects are not part of the wire format", ErrMalformed)
	}
	return v, nil
}
