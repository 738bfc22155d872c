package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewColumnRegistry(t *testing.T) {
	t.Parallel()

	cols := []ColumnSpec{
		{Name: NameDepart, Type: ColumnText},
		{Name: LongitudeDepart, Type: ColumnNumeric},
		{Name: AddressDepart, Type: ColumnText, Optional: true},
	}

	reg := NewColumnRegistry(cols)

	t.Run("ByName returns correct spec", func(t *testing.T) {
		t.Parallel()
		c := reg.ByName(LongitudeDepart)
		require.NotNil(t, c)
		assert.Equal(t, ColumnNumeric, c.Type)
	})

	t.Run("ByName returns nil for unknown role", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, reg.ByName("Elevation"))
	})

	t.Run("Required skips optional columns", func(t *testing.T) {
		t.Parallel()
		req := reg.Required()
		require.Len(t, req, 2)
		assert.Equal(t, NameDepart, req[0].Name)
		assert.Equal(t, LongitudeDepart, req[1].Name)
	})
}

func TestDefaultColumns(t *testing.T) {
	t.Parallel()

	reg := DefaultColumns()
	assert.Len(t, reg.Columns, 12)
	assert.Len(t, reg.Required(), 6)

	for _, ep := range Endpoints() {
		for _, role := range ep.Required() {
			c := reg.ByName(role)
			require.NotNil(t, c, role)
			assert.False(t, c.Optional, role)
		}
		for _, role := range ep.Optional() {
			c := reg.ByName(role)
			require.NotNil(t, c, role)
			assert.True(t, c.Optional, role)
		}
	}

	assert.Equal(t, ColumnBool, reg.ByName(GeocodeArrivee).Type)
	assert.Equal(t, ColumnNumeric, reg.ByName(LatitudeArrivee).Type)

	contract := reg.Contract()
	assert.True(t, contract.AllowSelectBy)
	assert.Len(t, contract.Columns, 12)
}
