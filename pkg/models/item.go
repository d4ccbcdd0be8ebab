// Package models contains domain models for forgecalc.
package models

// MaxEnhancementLevel is the highest reachable enhancement level.
const MaxEnhancementLevel = 20

// CoinHrid identifies the coin pseudo-item used in material lists.
const CoinHrid = "/items/coin"

// ItemCount is the single normalized shape for material requirements.
// Loaders reject any other cost representation instead of guessing.
type ItemCount struct {
	ItemHrid string  `json:"item_hrid" yaml:"item_hrid"`
	Count    float64 `json:"count" yaml:"count"`
}

// Price is a market quote for one item at one enhancement level.
type Price struct {
	Ask float64 `json:"ask"`
	Bid float64 `json:"bid"`
}

// PriceSource supplies market prices. The boolean reports whether a quote
// exists; callers must treat a missing quote as "cost unknown", never zero.
type PriceSource interface {
	Price(itemHrid string, enhancementLevel int) (Price, bool)
}

// ItemMetadata describes one enhanceable item.
type ItemMetadata struct {
	Hrid            string      `json:"hrid" yaml:"hrid"`
	Name            string      `json:"name" yaml:"name"`
	ItemLevel       int         `json:"item_level" yaml:"item_level"`
	BaseTimeSeconds float64     `json:"base_time_seconds" yaml:"base_time_seconds"`
	Materials       []ItemCount `json:"materials" yaml:"materials"`

	// MaterialsPerLevel overrides Materials for specific target levels.
	MaterialsPerLevel map[int][]ItemCount `json:"materials_per_level,omitempty" yaml:"materials_per_level,omitempty"`

	// ProtectionHrid is the consumable that prevents a level reset on failure.
	ProtectionHrid string `json:"protection_hrid,omitempty" yaml:"protection_hrid,omitempty"`

	// MirrorHrid is the consumable that merges two lower-enhanced copies
	// into one higher-enhanced item (the composite path).
	MirrorHrid string `json:"mirror_hrid,omitempty" yaml:"mirror_hrid,omitempty"`
}

// MaterialsFor returns the per-attempt material list when enhancing toward
// the given level.
func (m *ItemMetadata) MaterialsFor(level int) []ItemCount {
	if mats, ok := m.MaterialsPerLevel[level]; ok {
		return mats
	}
	return m.Materials
}

// EnhancementParams are the caller-supplied inputs for one calculation.
// Calculation code never reads ambient character state; the caller sources
// these once and passes them down.
type EnhancementParams struct {
	// EnhancingLevel is the character's effective enhancing skill level.
	EnhancingLevel float64 `json:"enhancing_level"`
	// ToolBonus is the tool+house success bonus, in percent.
	ToolBonus float64 `json:"tool_bonus"`
	// SpeedBonus is the action speed bonus, in percent.
	SpeedBonus float64 `json:"speed_bonus"`
	// Blessed enables the double-level success branch.
	Blessed bool `json:"blessed"`
	// GuzzlingScale multiplies the blessed trigger chance. Zero means 1.
	GuzzlingScale float64 `json:"guzzling_scale"`
}

// BlessedScale returns the effective blessed trigger multiplier.
func (p EnhancementParams) BlessedScale() float64 {
	if p.GuzzlingScale <= 0 {
		return 1
	}
	return p.GuzzlingScale
}
