package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/forgecalc/pkg/models"
)

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.LoadFile(writeCatalogFile(t, `
prices:
  /items/cheese_sword:
    - level: 0
      ask: 100
      bid: 90
    - level: 3
      ask: 450
  /items/mirror_of_protection:
    - level: 0
      ask: 50
      bid: 45
`)))

	assert.Equal(t, 3, c.Len())

	p, ok := c.Price("/items/cheese_sword", 0)
	require.True(t, ok)
	assert.InDelta(t, 100, p.Ask, 1e-9)
	assert.InDelta(t, 90, p.Bid, 1e-9)

	p, ok = c.Price("/items/cheese_sword", 3)
	require.True(t, ok)
	assert.InDelta(t, 450, p.Ask, 1e-9)
	assert.Zero(t, p.Bid)
}

// A missing quote reports absent, never a zero price.
func TestMissingQuote(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Price("/items/unknown", 0)
	assert.False(t, ok)

	c.Set("/items/cheese_sword", 0, models.Price{Ask: 100})
	_, ok = c.Price("/items/cheese_sword", 1)
	assert.False(t, ok)
}

func TestLoadFileLevelOutOfRange(t *testing.T) {
	c := NewCatalog()
	err := c.LoadFile(writeCatalogFile(t, `
prices:
  /items/cheese_sword:
    - level: 21
      ask: 100
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "out of range")
}

func TestReloadReplacesQuotes(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.LoadFile(writeCatalogFile(t, `
prices:
  /items/cheese_sword:
    - level: 0
      ask: 100
  /items/stale:
    - level: 0
      ask: 1
`)))

	require.NoError(t, c.LoadFile(writeCatalogFile(t, `
prices:
  /items/cheese_sword:
    - level: 0
      ask: 120
`)))

	p, ok := c.Price("/items/cheese_sword", 0)
	require.True(t, ok)
	assert.InDelta(t, 120, p.Ask, 1e-9)

	// Quotes absent from the new file are dropped, not kept stale.
	_, ok = c.Price("/items/stale", 0)
	assert.False(t, ok)
}

func TestSet(t *testing.T) {
	c := NewCatalog()
	c.Set("/items/cheese_sword", 2, models.Price{Ask: 300, Bid: 280})

	p, ok := c.Price("/items/cheese_sword", 2)
	require.True(t, ok)
	assert.InDelta(t, 300, p.Ask, 1e-9)
	assert.InDelta(t, 280, p.Bid, 1e-9)
	assert.Equal(t, 1, c.Len())
}
