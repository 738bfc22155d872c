package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_UnmarshalJSON(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id": 7, "NameDepart": "Depot", "LongitudeDepart": -73.5, "LatitudeDepart": null}`), &r)
	require.NoError(t, err)

	assert.Equal(t, RecordID(7), r.ID)
	assert.Equal(t, "Depot", r.String(NameDepart))
	lng, ok := r.Float(LongitudeDepart)
	assert.True(t, ok)
	assert.InDelta(t, -73.5, lng, 1e-9)
	assert.True(t, r.Has(LatitudeDepart))
	assert.False(t, r.Truthy(LatitudeDepart))
	assert.False(t, r.Has("id"))
}

func TestRecord_UnmarshalJSON_MissingID(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"NameDepart": "Depot"}`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestRecord_MarshalJSON_Flat(t *testing.T) {
	r := NewRecord(3, map[string]any{"NameDepart": "A"})
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"NameDepart":"A"}`, string(data))
}

func TestNewRecord_CopiesFields(t *testing.T) {
	fields := map[string]any{"AddressDepart": "10 Main St"}
	r := NewRecord(1, fields)
	fields["AddressDepart"] = "changed"
	assert.Equal(t, "10 Main St", r.String(AddressDepart))
}

func TestRecord_Float_NumericString(t *testing.T) {
	r := NewRecord(1, map[string]any{"LatitudeDepart": " 45.5 ", "LongitudeDepart": InProgress})
	lat, ok := r.Float(LatitudeDepart)
	assert.True(t, ok)
	assert.InDelta(t, 45.5, lat, 1e-9)

	_, ok = r.Float(LongitudeDepart)
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"string", "x", true},
		{"zero", 0.0, false},
		{"number", 1.5, true},
		{"map", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.in))
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"plain", "abc", "abc"},
		{"nil", nil, nil},
		{"remote wins", map[string]any{"value": `V({"remote":"r","local":"l","parent":"p"})`}, "r"},
		{"local when remote empty", map[string]any{"value": `V({"remote":"","local":"l","parent":"p"})`}, "l"},
		{"parent last", map[string]any{"value": `V({"parent":4.5})`}, 4.5},
		{"bad json kept", map[string]any{"value": `V({bad)`}, map[string]any{"value": `V({bad)`}},
		{"not a diff", map[string]any{"value": "x"}, map[string]any{"value": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseValue(tt.in))
		})
	}
}

func TestParseRecordID(t *testing.T) {
	id, err := ParseRecordID("42")
	require.NoError(t, err)
	assert.Equal(t, RecordID(42), id)
	assert.Equal(t, "42", id.String())

	_, err = ParseRecordID("abc")
	assert.Error(t, err)
}
