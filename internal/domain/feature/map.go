package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Map is an insertion-ordered mapping from feature name to value.
// The zero value is an empty map ready for use.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap creates an empty map with room for n features.
func NewMap(n int) *Map {
	return &Map{
		keys:   make([]string, 0, n),
		values: make(map[string]Value, n),
	}
}

// FromValues builds a map from plain Go values in the given key order.
// Supported value types are numbers and strings.
func FromValues(keys []string, values map[string]any) (*Map, error) {
	m := NewMap(len(keys))
	for _, k := range keys {
		raw, ok := values[k]
		if !ok {
			continue
		}
		v, err := valueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", k, err)
		}
		m.Set(k, v)
	}
	return m, nil
}

// Set stores a value. Overwriting an existing key keeps its original position.
func (m *Map) Set(name string, v Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = v
}

// Get returns the value stored under name.
func (m *Map) Get(name string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[name]
	return v, ok
}

// Len returns the number of features.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the feature names in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Each calls fn for every feature in insertion order.
func (m *Map) Each(fn func(name string, v Value)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// MarshalJSON encodes the map as a JSON object preserving key order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", k, err)
		}
		val, err := m.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping the payload's key order.
// Duplicate keys keep the last value at the first position.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read object start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("feature payload must be a JSON object")
	}

	out := NewMap(16)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read value of %q: %w", key, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read object end: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after feature object")
	}

	*m = *out
	return nil
}

func valueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number: %w", err)
		}
		return Number(f), nil
	case string:
		return String(x), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}
