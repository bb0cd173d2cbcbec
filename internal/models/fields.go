package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Fields is a JSON object decoded one level deep. Its accessors tolerate the
// loose typing of the upstream API: numbers sent as strings, identifiers sent
// as numbers, flags sent as 0/1.
type Fields map[string]json.RawMessage

// String reads a string field. Numbers are rendered in decimal so that numeric
// identifiers and epoch timestamps survive either encoding.
func (f Fields) String(key string) string {
	raw, ok := f[key]
	if !ok || IsNull(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := dec.Decode(&n); err == nil {
		return n.String()
	}

	return ""
}

// Int reads a number or numeric string, zero otherwise.
func (f Fields) Int(key string) int64 {
	raw, ok := f[key]
	if !ok {
		return 0
	}

	n, _ := DecodeInt(raw)

	return n
}

// Flag is true for JSON true, or a number (or numeric string) equal to 1.
func (f Fields) Flag(key string) bool {
	raw, ok := f[key]
	if !ok {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}

	n, ok := DecodeInt(raw)

	return ok && n == 1
}

// List returns the elements of an array field, nil when the field is absent,
// null or not an array.
func (f Fields) List(key string) []json.RawMessage {
	raw, ok := f[key]
	if !ok {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	return items
}

// Raw returns a field exactly as received, nil when absent.
func (f Fields) Raw(key string) json.RawMessage {
	return f[key]
}

// DecodeInt accepts a JSON number (integral or not) or a numeric string.
func DecodeInt(raw json.RawMessage) (int64, bool) {
	if IsNull(raw) {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int64(n), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}

	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// IsNull reports whether raw is empty or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) == 0 || string(trimmed) == "null"
}
