package model

// FieldMapping maps a Role to the concrete column holding it. A role that
// is missing or maps to "" is unmapped, which disables the feature it
// drives rather than being an error.
type FieldMapping map[Role]string

// Column returns the concrete column for role.
func (m FieldMapping) Column(role Role) (string, bool) {
	if m == nil {
		return "", false
	}
	col, ok := m[role]
	if !ok || col == "" {
		return "", false
	}
	return col, true
}

// Has reports whether role is mapped to a column.
func (m FieldMapping) Has(role Role) bool {
	_, ok := m.Column(role)
	return ok
}

// Complete reports whether every required role of every endpoint is mapped.
func (m FieldMapping) Complete() bool {
	for _, ep := range Endpoints() {
		for _, role := range ep.Required() {
			if !m.Has(role) {
				return false
			}
		}
	}
	return true
}

// MapColumns translates a raw record's column names to role names. When the
// mapping is absent or incomplete the raw record is returned unchanged so
// tables configured by renaming columns keep working.
func MapColumns(raw Record, m FieldMapping) Record {
	if m == nil || !m.Complete() {
		return raw
	}
	fields := make(map[string]any, len(m))
	for role, col := range m {
		if col == "" {
			continue
		}
		if v, ok := raw.Fields[col]; ok {
			fields[role] = v
		}
	}
	return Record{ID: raw.ID, Fields: fields}
}

// MapRecords applies MapColumns to every record.
func MapRecords(raw []Record, m FieldMapping) []Record {
	out := make([]Record, len(raw))
	for i, r := range raw {
		out[i] = MapColumns(r, m)
	}
	return out
}

// DefaultMapping returns declared when the host supplied one. Otherwise it
// assumes columns are named after their roles: required roles always map
// to themselves and optional roles only when sample carries the column.
func DefaultMapping(sample Record, declared FieldMapping) FieldMapping {
	if declared != nil {
		return declared
	}
	m := make(FieldMapping)
	for _, ep := range Endpoints() {
		for _, role := range ep.Required() {
			m[role] = role
		}
		for _, role := range ep.Optional() {
			if sample.Has(role) {
				m[role] = role
			}
		}
	}
	return m
}
