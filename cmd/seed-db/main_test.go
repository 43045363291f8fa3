package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMenu_Seed(t *testing.T) {
	m, err := readMenu(filepath.Join("..", "..", "db", "seed", "menu.json"))
	require.NoError(t, err)

	require.Len(t, m.Items, 12)
	require.Len(t, m.Zones, 4)
	assert.Equal(t, "150", m.Items[0].Price.String())
	for _, it := range m.Items {
		assert.True(t, it.Active, "item %d", it.ID)
	}
	assert.Equal(t, "pickup", m.Zones[0].Code)
	assert.True(t, m.Zones[0].Fee.IsZero())
}

func TestReadMenu_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "malformed", json: `{"items": [`},
		{name: "missing name", json: `{"items": [{"id": 1, "price": 5}]}`},
		{name: "negative price", json: `{"items": [{"id": 1, "name": "x", "price": -5}]}`},
		{name: "duplicate id", json: `{"items": [{"id": 1, "name": "x", "price": 5}, {"id": 1, "name": "y", "price": 6}]}`},
		{name: "zone without code", json: `{"zones": [{"name": "x", "fee": 5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "menu.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.json), 0o600))

			_, err := readMenu(path)
			require.Error(t, err)
		})
	}
}

func TestReadMenu_Inactive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items": [{"id": 3, "name": "old", "price": 1, "active": false}]}`), 0o600))

	m, err := readMenu(path)
	require.NoError(t, err)
	assert.False(t, m.Items[0].Active)
}
