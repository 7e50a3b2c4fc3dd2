package sgml

import (
	"bytes"
	"encoding/json"
)

// Value is one metadata entry: plain text, a list of values, or a nested
// block. Exactly one of the three fields is populated. Binary payload
// decoding never goes through Value; it only carries header/tag text.
type Value struct {
	Text   string
	List   []Value
	Nested *Metadata
}

// TextValue wraps a string as a metadata value.
func TextValue(s string) Value { return Value{Text: s} }

// NestedValue wraps a metadata block as a value.
func NestedValue(m *Metadata) Value { return Value{Nested: m} }

// IsNested reports whether the value is a nested block.
func (v Value) IsNested() bool { return v.Nested != nil }

// IsList reports whether the value is a list.
func (v Value) IsList() bool { return v.List != nil }

// MarshalJSON renders the value as a JSON string, array, or object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Nested != nil:
		return v.Nested.MarshalJSON()
	case v.List != nil:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.List {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v.Text)
	}
}

// Metadata is an insertion-ordered multimap of lower-cased tag names to
// values. EDGAR header blocks repeat tags (multiple FILER blocks, multiple
// former-name entries); repeated keys promote the entry to a list instead
// of overwriting, so nothing from the source is lost. Insertion order is
// preserved so serialization round-trips deterministically.
type Metadata struct {
	keys   []string
	values map[string]Value
}

// NewMetadata returns an empty metadata block.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

// Len returns the number of distinct keys.
func (m *Metadata) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order. The slice is shared; callers
// must not modify it.
func (m *Metadata) Keys() []string { return m.keys }

// Get returns the value for key and whether it exists.
func (m *Metadata) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Text returns the text value for key, or "" when the key is absent or not
// a plain text entry.
func (m *Metadata) Text(key string) string {
	v, ok := m.values[key]
	if !ok {
		return ""
	}
	return v.Text
}

// Nested returns the nested block for key, or nil.
func (m *Metadata) Nested(key string) *Metadata {
	v, ok := m.values[key]
	if !ok {
		return nil
	}
	return v.Nested
}

// Set inserts or replaces the value for key, keeping the key's original
// position when it already exists.
func (m *Metadata) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Add inserts the value for key. A repeated key promotes the entry to a
// list and appends, preserving all earlier occurrences.
func (m *Metadata) Add(key string, v Value) {
	existing, ok := m.values[key]
	if !ok {
		m.keys = append(m.keys, key)
		m.values[key] = v
		return
	}
	if existing.List != nil {
		existing.List = append(existing.List, v)
		m.values[key] = existing
		return
	}
	m.values[key] = Value{List: []Value{existing, v}}
}

// Clone returns a shallow copy of the block: the key order and value map
// are copied, nested blocks are shared.
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		keys:   make([]string, len(m.keys)),
		values: make(map[string]Value, len(m.values)),
	}
	copy(c.keys, m.keys)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON renders the block as a JSON object with keys in insertion
// order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := m.values[key].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
