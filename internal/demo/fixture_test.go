package demo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFixture(t *testing.T) {
	f := DefaultFixture()

	assert.Equal(t, int64(42), f.LineViewID)
	assert.Len(t, f.Products, 7)
	require.Len(t, f.Pickings, 2)
	assert.Equal(t, "WH/OUT/00001", f.Pickings[0].Name)
	assert.Len(t, f.Pickings[0].Lines, 5)
}

func TestParseFixtureDefaultsState(t *testing.T) {
	f, err := ParseFixture([]byte(`
products: [{id: 1, name: Desk}]
locations: [{id: 8, name: WH/Stock}, {id: 9, name: Customers}]
pickings:
  - {id: 1, name: OUT/1, location: 8, location_dest: 9, lines: [{id: 10, product: 1, quantity: 2}]}
`))
	require.NoError(t, err)
	assert.Equal(t, "assigned", f.Pickings[0].State)
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			data:    "products: [",
			wantErr: "failed to parse fixture",
		},
		{
			name:    "missing product name",
			data:    "products: [{id: 1}]",
			wantErr: "invalid fixture",
		},
		{
			name:    "unknown tracking",
			data:    "products: [{id: 1, name: Desk, tracking: batch}]",
			wantErr: "invalid fixture",
		},
		{
			name:    "duplicate product",
			data:    "products: [{id: 1, name: Desk}, {id: 1, name: Chair}]",
			wantErr: "duplicate product 1",
		},
		{
			name: "line with unknown product",
			data: `
products: [{id: 1, name: Desk}]
locations: [{id: 8, name: A}, {id: 9, name: B}]
pickings: [{id: 1, name: OUT/1, location: 8, location_dest: 9, lines: [{id: 10, product: 2}]}]
`,
			wantErr: "unknown product 2",
		},
		{
			name: "quant at unknown location",
			data: `
products: [{id: 1, name: Desk}]
quants: [{id: 5, product: 1, location: 3}]
`,
			wantErr: "unknown location 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products: [{id: 3, name: Bolt, barcode: B1}]"), 0o600))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	require.Len(t, f.Products, 1)
	assert.Equal(t, "B1", f.Products[0].Barcode)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read fixture")
}
