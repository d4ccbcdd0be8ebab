// Package gamedata loads and serves static game data: enhanceable item
// metadata, the base success-rate table, and consumable effects. Data lives
// in a YAML file and can be reloaded atomically when the file changes.
package gamedata

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/forgecalc/pkg/models"
)

// DefaultBaseRates are the per-level base success percentages used when the
// data file does not override them.
var DefaultBaseRates = []float64{
	50, 45, 45, 40, 40, 40, 35, 35, 35, 35,
	30, 30, 30, 30, 30, 30, 30, 30, 30, 30,
}

// Data is the parsed game-data file.
type Data struct {
	// BaseRates holds exactly 20 success percentages indexed by level.
	BaseRates []float64 `yaml:"base_rates"`
	// Items maps item hrid to its metadata.
	Items []models.ItemMetadata `yaml:"items"`
}

// Store holds the current game data snapshot behind a read lock so reloads
// swap it atomically.
type Store struct {
	mu        sync.RWMutex
	byHrid    map[string]*models.ItemMetadata
	baseRates []float64
}

// NewStore returns an empty store with the default rate table.
func NewStore() *Store {
	return &Store{
		byHrid:    make(map[string]*models.ItemMetadata),
		baseRates: DefaultBaseRates,
	}
}

// LoadFile reads, validates, and installs the YAML data file at path.
func (s *Store) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read game data: %w", err)
	}
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse game data: %w", err)
	}
	if err := validate(&data); err != nil {
		return err
	}

	byHrid := make(map[string]*models.ItemMetadata, len(data.Items))
	for i := range data.Items {
		item := &data.Items[i]
		byHrid[item.Hrid] = item
	}
	rates := data.BaseRates
	if len(rates) == 0 {
		rates = DefaultBaseRates
	}

	s.mu.Lock()
	s.byHrid = byHrid
	s.baseRates = rates
	s.mu.Unlock()

	log.Info().Int("items", len(byHrid)).Str("path", path).Msg("Game data loaded")
	return nil
}

// Item returns metadata for an item hrid.
func (s *Store) Item(hrid string) (*models.ItemMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byHrid[hrid]
	return item, ok
}

// BaseRates returns the current success-rate table.
func (s *Store) BaseRates() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseRates
}

// Len reports how many items are loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHrid)
}

// validate checks semantic constraints before data is installed. Malformed
// cost shapes are rejected outright instead of best-effort parsed.
func validate(data *Data) error {
	var errs []string

	if n := len(data.BaseRates); n != 0 && n != models.MaxEnhancementLevel {
		errs = append(errs, fmt.Sprintf("base_rates must have %d entries, got %d", models.MaxEnhancementLevel, n))
	}
	for i, r := range data.BaseRates {
		if r <= 0 || r > 100 {
			errs = append(errs, fmt.Sprintf("base_rates[%d] must be in (0,100], got %v", i, r))
		}
	}

	seen := make(map[string]bool, len(data.Items))
	for i, item := range data.Items {
		if item.Hrid == "" {
			errs = append(errs, fmt.Sprintf("items[%d].hrid is required", i))
			continue
		}
		if seen[item.Hrid] {
			errs = append(errs, fmt.Sprintf("duplicate item hrid %s", item.Hrid))
		}
		seen[item.Hrid] = true
		if item.ItemLevel < 0 {
			errs = append(errs, fmt.Sprintf("%s: item_level must be >= 0", item.Hrid))
		}
		if item.BaseTimeSeconds < 0 {
			errs = append(errs, fmt.Sprintf("%s: base_time_seconds must be >= 0", item.Hrid))
		}
		errs = append(errs, validateMaterials(item.Hrid, item.Materials)...)
		for level, mats := range item.MaterialsPerLevel {
			if level < 1 || level > models.MaxEnhancementLevel {
				errs = append(errs, fmt.Sprintf("%s: materials_per_level key %d out of range", item.Hrid, level))
			}
			errs = append(errs, validateMaterials(item.Hrid, mats)...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("game data validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateMaterials(hrid string, mats []models.ItemCount) []string {
	var errs []string
	for i, mat := range mats {
		if mat.ItemHrid == "" {
			errs = append(errs, fmt.Sprintf("%s: materials[%d].item_hrid is required", hrid, i))
		}
		if mat.Count <= 0 {
			errs = append(errs, fmt.Sprintf("%s: materials[%d].count must be > 0", hrid, i))
		}
	}
	return errs
}
