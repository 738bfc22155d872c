// Package model holds the record, role and option types shared by the panel packages.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// InProgress is the value a host writes into a coordinate field while an
// external process is still resolving it.
const InProgress = "..."

// RecordID identifies a record within one table.
type RecordID int64

// String implements fmt.Stringer.
func (id RecordID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseRecordID parses a decimal record id.
func ParseRecordID(s string) (RecordID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "model: parse record id %q", s)
	}
	return RecordID(n), nil
}

// Record is a read-only snapshot of one host row. Fields are keyed by
// concrete column name before mapping and by Role name after it.
type Record struct {
	ID     RecordID
	Fields map[string]any
}

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewRecord builds a record, copying fields so later host pushes cannot
// mutate a snapshot another goroutine is reading.
func NewRecord(id RecordID, fields map[string]any) Record {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{ID: id, Fields: cp}
}

// UnmarshalJSON decodes the flat host shape {"id": 1, "Col": value, ...}.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode record")
	}
	idVal, ok := raw["id"]
	if !ok {
		return eris.New("model: record has no id")
	}
	id, ok := toFloat(idVal)
	if !ok {
		return eris.Errorf("model: record id %v is not numeric", idVal)
	}
	delete(raw, "id")
	r.ID = RecordID(id)
	r.Fields = raw
	return nil
}

// MarshalJSON encodes the record back into the flat host shape.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = int64(r.ID)
	return json.Marshal(out)
}

// Has reports whether the record carries a column or role, even if empty.
func (r Record) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Value returns the field value with diff wrappers removed.
func (r Record) Value(key string) any {
	if r.Fields == nil {
		return nil
	}
	return ParseValue(r.Fields[key])
}

// String returns the field rendered as text; nil becomes "".
func (r Record) String(key string) string {
	switch v := r.Value(key).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the field as a number. Numeric strings are accepted.
func (r Record) Float(key string) (float64, bool) {
	return toFloat(r.Value(key))
}

// Truthy reports whether the field holds a value the host treats as set:
// not nil, not false, not zero and not the empty string.
func (r Record) Truthy(key string) bool {
	return Truthy(r.Value(key))
}

// Truthy applies the host's notion of a set value.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
