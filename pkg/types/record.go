package types

import (
	"fmt"
	"strconv"
)

// Record is one server-side entity as decoded from JSON. Keys are the
// backend's field names; the identifier lives under "id".
type Record map[string]any

// Values holds form field values keyed by field name.
type Values map[string]any

// IDField is the record key that carries the entity identifier.
const IDField = "id"

// ID returns the record identifier coerced to a string. Returns "" when the
// record has no id.
func (r Record) ID() string {
	return IDString(r[IDField])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every key of patch applied over it.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the values.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// IDString coerces an identifier value to its string form. JSON numbers
// decode as float64, so integral floats print without a fraction.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

// CloneRecords copies the slice and every record in it.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
