package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one named CSV value.
type Field struct {
	Name  string
	Value string
}

// RawRow is a CSV record keyed by column name. Field order follows the header
// and survives JSON round trips.
type RawRow struct {
	Fields []Field
}

// NewRawRow pairs header names with values. Both slices must have equal length.
func NewRawRow(columns, values []string) RawRow {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		fields[i] = Field{Name: c, Value: values[i]}
	}
	return RawRow{Fields: fields}
}

// Get returns the value stored under the exact column name.
func (r RawRow) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Lookup returns the value of the first column whose trimmed name matches
// name case-insensitively.
func (r RawRow) Lookup(name string) (string, bool) {
	for _, f := range r.Fields {
		if strings.EqualFold(strings.TrimSpace(f.Name), name) {
			return f.Value, true
		}
	}
	return "", false
}

// Len returns the number of fields.
func (r RawRow) Len() int {
	return len(r.Fields)
}

// Map returns the row as an unordered map.
func (r RawRow) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *RawRow) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		r.Fields = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("RawRow: expected object, got %v", tok)
	}
	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("RawRow: expected key, got %v", tok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		var s string
		switch v := val.(type) {
		case string:
			s = v
		case nil:
			s = ""
		default:
			s = fmt.Sprint(v)
		}
		fields = append(fields, Field{Name: key, Value: s})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	r.Fields = fields
	return nil
}
