package collection

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// IDField is the single identifier key every stored record carries.
const IDField = "id"

// Record is a JSON object owned by the caller. The adapter only reads the
// identifier and compares fields for equality.
type Record map[string]any

// Filter selects records whose fields equal every key/value pair it holds.
type Filter = Record

// ByID is shorthand for the identifier filter.
func ByID(id string) Filter {
	return Filter{IDField: id}
}

// ID returns the identifier, or "" when missing or not a string.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// String returns a top-level string field.
func (r Record) String(key string) string {
	value, _ := r[key].(string)
	return value
}

// Clone copies the record deeply through its JSON form.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out, err := Normalize(r)
	if err != nil {
		shallow := make(Record, len(r))
		for k, v := range r {
			shallow[k] = v
		}
		return shallow
	}
	return out
}

// Decode copies the record into a typed value through JSON.
func (r Record) Decode(into any) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// FromValue converts a typed value into a Record through JSON.
func FromValue(v any) (Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var out Record
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("value is not a JSON object: %w", err)
	}
	return out, nil
}

// Normalize round-trips v through JSON so numbers, nested maps and slices
// take the same shapes as records read back from any backend.
func Normalize(v map[string]any) (Record, error) {
	if v == nil {
		return Record{}, nil
	}
	return FromValue(v)
}

// Matches reports whether r holds every filter field with an equal value.
// An empty filter matches everything.
func Matches(r Record, filter Filter) bool {
	for key, want := range filter {
		got, ok := r[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// IsIdentityKey reports whether key names an identifier field.
func IsIdentityKey(key string) bool {
	return strings.EqualFold(key, "id") || strings.EqualFold(key, "_id")
}

// StripIdentity returns a copy of payload without identifier fields.
func StripIdentity(payload Record) Record {
	out := make(Record, len(payload))
	for k, v := range payload {
		if IsIdentityKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Merge applies update over base (shallow, update wins) and returns a new
// record. Identifier fields in update are ignored.
func Merge(base, update Record) Record {
	out := make(Record, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range StripIdentity(update) {
		out[k] = v
	}
	return out
}
