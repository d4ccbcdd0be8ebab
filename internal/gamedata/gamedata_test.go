package gamedata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/forgecalc/pkg/models"
)

func writeDataFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gamedata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validData = `
base_rates: [50, 45, 45, 40, 40, 40, 35, 35, 35, 35, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30]
items:
  - hrid: /items/cheese_sword
    name: Cheese Sword
    item_level: 50
    base_time_seconds: 12
    materials:
      - item_hrid: /items/coin
        count: 10
      - item_hrid: /items/enchanted_essence
        count: 2
    materials_per_level:
      5:
        - item_hrid: /items/coin
          count: 50
    protection_hrid: /items/mirror_of_protection
    mirror_hrid: /items/mirror_of_enhancement
  - hrid: /items/holy_shield
    name: Holy Shield
    item_level: 35
    materials:
      - item_hrid: /items/coin
        count: 8
`

func TestLoadFile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.LoadFile(writeDataFile(t, validData)))

	assert.Equal(t, 2, s.Len())

	item, ok := s.Item("/items/cheese_sword")
	require.True(t, ok)
	assert.Equal(t, "Cheese Sword", item.Name)
	assert.Equal(t, 50, item.ItemLevel)
	assert.Equal(t, "/items/mirror_of_protection", item.ProtectionHrid)
	assert.Len(t, item.Materials, 2)

	// Level 5 has its own material list; other levels fall back.
	assert.InDelta(t, 50, item.MaterialsFor(5)[0].Count, 1e-9)
	assert.InDelta(t, 10, item.MaterialsFor(3)[0].Count, 1e-9)

	rates := s.BaseRates()
	require.Len(t, rates, models.MaxEnhancementLevel)
	assert.InDelta(t, 50, rates[0], 1e-9)
	assert.InDelta(t, 30, rates[19], 1e-9)
}

func TestLoadFileDefaultsRates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.LoadFile(writeDataFile(t, `
items:
  - hrid: /items/holy_shield
    name: Holy Shield
    materials:
      - item_hrid: /items/coin
        count: 8
`)))
	assert.Equal(t, DefaultBaseRates, s.BaseRates())
}

func TestLoadFileMissing(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestLoadFileKeepsOldDataOnError(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.LoadFile(writeDataFile(t, validData)))

	err := s.LoadFile(writeDataFile(t, `items: [{name: broken}]`))
	assert.Error(t, err)

	// The previous snapshot stays installed.
	assert.Equal(t, 2, s.Len())
	_, ok := s.Item("/items/cheese_sword")
	assert.True(t, ok)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errLike string
	}{
		{
			name:    "wrong rate count",
			content: `base_rates: [50, 45]`,
			errLike: "base_rates must have 20 entries",
		},
		{
			name: "rate out of range",
			content: `base_rates: [0, 45, 45, 40, 40, 40, 35, 35, 35, 35, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30]`,
			errLike: "base_rates[0]",
		},
		{
			name:    "missing hrid",
			content: "items:\n  - name: Nameless\n",
			errLike: "hrid is required",
		},
		{
			name: "duplicate hrid",
			content: `
items:
  - hrid: /items/a
  - hrid: /items/a
`,
			errLike: "duplicate item hrid",
		},
		{
			name: "negative item level",
			content: `
items:
  - hrid: /items/a
    item_level: -1
`,
			errLike: "item_level",
		},
		{
			name: "zero material count",
			content: `
items:
  - hrid: /items/a
    materials:
      - item_hrid: /items/coin
        count: 0
`,
			errLike: "count must be > 0",
		},
		{
			name: "per-level key out of range",
			content: `
items:
  - hrid: /items/a
    materials_per_level:
      21:
        - item_hrid: /items/coin
          count: 1
`,
			errLike: "out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			err := s.LoadFile(writeDataFile(t, tt.content))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.errLike)
		})
	}
}
