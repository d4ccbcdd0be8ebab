// Package pricing supplies market prices to the engine. The Catalog is a
// YAML-backed implementation of models.PriceSource; a missing quote is
// reported as absent, never as zero.
package pricing

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/forgecalc/pkg/models"
)

// Quote is one catalog entry for an item at an enhancement level.
type Quote struct {
	Level int     `yaml:"level"`
	Ask   float64 `yaml:"ask"`
	Bid   float64 `yaml:"bid"`
}

// file is the on-disk catalog shape: item hrid to per-level quotes.
type file struct {
	Prices map[string][]Quote `yaml:"prices"`
}

type priceKey struct {
	hrid  string
	level int
}

// Catalog is an in-memory price table, reloadable from its YAML file.
type Catalog struct {
	mu     sync.RWMutex
	quotes map[priceKey]models.Price
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{quotes: make(map[priceKey]models.Price)}
}

// LoadFile reads and installs the catalog file atomically.
func (c *Catalog) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read price catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse price catalog: %w", err)
	}

	quotes := make(map[priceKey]models.Price)
	for hrid, entries := range f.Prices {
		for _, q := range entries {
			if q.Level < 0 || q.Level > models.MaxEnhancementLevel {
				return fmt.Errorf("price catalog: %s has level %d out of range", hrid, q.Level)
			}
			quotes[priceKey{hrid: hrid, level: q.Level}] = models.Price{Ask: q.Ask, Bid: q.Bid}
		}
	}

	c.mu.Lock()
	c.quotes = quotes
	c.mu.Unlock()

	log.Info().Int("quotes", len(quotes)).Str("path", path).Msg("Price catalog loaded")
	return nil
}

// Price implements models.PriceSource.
func (c *Catalog) Price(itemHrid string, enhancementLevel int) (models.Price, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.quotes[priceKey{hrid: itemHrid, level: enhancementLevel}]
	return p, ok
}

// Set installs a single quote. Used by tests and live feeds.
func (c *Catalog) Set(itemHrid string, enhancementLevel int, p models.Price) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[priceKey{hrid: itemHrid, level: enhancementLevel}] = p
}

// Len reports how many quotes are loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
