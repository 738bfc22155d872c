package model

// Column types understood by the host.
const (
	ColumnText    = "Text"
	ColumnNumeric = "Numeric"
	ColumnBool    = "Bool"
)

// ColumnSpec declares one logical column the panel needs from the host.
type ColumnSpec struct {
	Name     Role   `json:"name" yaml:"name"`
	Title    string `json:"title" yaml:"title"`
	Type     string `json:"type" yaml:"type"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Contract is the schema negotiation sent to the host once at startup.
type Contract struct {
	Columns       []ColumnSpec `json:"columns" yaml:"columns"`
	AllowSelectBy bool         `json:"allowSelectBy" yaml:"allow_select_by"`
}

// ColumnRegistry is an indexed collection of column specs.
type ColumnRegistry struct {
	Columns  []ColumnSpec
	byName   map[Role]*ColumnSpec
	required []*ColumnSpec
}

// NewColumnRegistry creates a ColumnRegistry with indexed lookups.
func NewColumnRegistry(cols []ColumnSpec) *ColumnRegistry {
	r := &ColumnRegistry{
		Columns: cols,
		byName:  make(map[Role]*ColumnSpec, len(cols)),
	}
	for i := range r.Columns {
		c := &r.Columns[i]
		r.byName[c.Name] = c
		if !c.Optional {
			r.required = append(r.required, c)
		}
	}
	return r
}

// ByName returns the spec for role, or nil if the panel does not declare it.
func (r *ColumnRegistry) ByName(role Role) *ColumnSpec {
	return r.byName[role]
}

// Required returns all non-optional column specs.
func (r *ColumnRegistry) Required() []*ColumnSpec {
	return r.required
}

// Contract returns the host-facing declaration.
func (r *ColumnRegistry) Contract() Contract {
	return Contract{Columns: r.Columns, AllowSelectBy: true}
}

// DefaultColumns declares six columns per endpoint.
func DefaultColumns() *ColumnRegistry {
	var cols []ColumnSpec
	for _, ep := range Endpoints() {
		cols = append(cols,
			ColumnSpec{Name: ep.Name, Title: "Name (" + ep.Label + ")", Type: ColumnText},
			ColumnSpec{Name: ep.Longitude, Title: "Longitude (" + ep.Label + ")", Type: ColumnNumeric},
			ColumnSpec{Name: ep.Latitude, Title: "Latitude (" + ep.Label + ")", Type: ColumnNumeric},
			ColumnSpec{Name: ep.Geocode, Title: "Geocode (" + ep.Label + ")", Type: ColumnBool, Optional: true},
			ColumnSpec{Name: ep.Address, Title: "Address (" + ep.Label + ")", Type: ColumnText, Optional: true},
			ColumnSpec{Name: ep.GeocodedAddress, Title: "Geocoded address (" + ep.Label + ")", Type: ColumnText, Optional: true},
		)
	}
	return NewColumnRegistry(cols)
}
