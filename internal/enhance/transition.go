// Package enhance implements the enhancement economics engine: the per-level
// transition model, the absorbing-chain Markov solver, and the protection
// strategy optimizer.
package enhance

import (
	"fmt"

	"github.com/thebtf/forgecalc/pkg/models"
)

// blessedSkipChance is the fraction of a success that jumps two levels when
// the blessed effect is active, before guzzling scaling.
const blessedSkipChance = 0.01

// Model holds the per-level transition probabilities for one item under one
// parameter set.
type Model struct {
	baseRates   []float64 // percentages, indexed by current level
	multiplier  float64
	params      models.EnhancementParams
	itemLevel   int
	baseSeconds float64
}

// NewModel builds a transition model from caller-supplied parameters.
// baseRates must hold exactly MaxEnhancementLevel percentages. baseSeconds
// is the item's unmodified action duration; zero selects BaseActionSeconds.
func NewModel(params models.EnhancementParams, itemLevel int, baseRates []float64, baseSeconds float64) (*Model, error) {
	if len(baseRates) != models.MaxEnhancementLevel {
		return nil, fmt.Errorf("base rate table must have %d entries, got %d",
			models.MaxEnhancementLevel, len(baseRates))
	}
	if itemLevel < 0 {
		return nil, fmt.Errorf("item level must be >= 0, got %d", itemLevel)
	}
	if baseSeconds < 0 {
		return nil, fmt.Errorf("base action seconds must be >= 0, got %v", baseSeconds)
	}
	if baseSeconds == 0 {
		baseSeconds = BaseActionSeconds
	}
	return &Model{
		baseRates:   baseRates,
		multiplier:  successMultiplier(params.EnhancingLevel, float64(itemLevel), params.ToolBonus),
		params:      params,
		itemLevel:   itemLevel,
		baseSeconds: baseSeconds,
	}, nil
}

// successMultiplier scales base success rates by how far the enhancing skill
// is above or below the item level. Being under-leveled is penalized more
// harshly than being over-leveled is rewarded.
func successMultiplier(skillLevel, itemLevel, toolBonus float64) float64 {
	if skillLevel >= itemLevel {
		return 1 + (toolBonus+0.05*(skillLevel-itemLevel))/100
	}
	return 1 - 0.5*(1-skillLevel/itemLevel) + toolBonus/100
}

// SuccessProb is the effective success probability at the given level.
//
// The result is intentionally not clamped to [0,1]: at extreme bonus values
// the game's own formula overflows, and we reproduce that behavior rather
// than silently correcting it. Known correctness caveat.
func (m *Model) SuccessProb(level int) float64 {
	return m.baseRates[level] / 100 * m.multiplier
}

// SkipProb is the probability mass of the blessed double-level branch at the
// given level. Zero when the blessed effect is inactive.
func (m *Model) SkipProb(level int) float64 {
	if !m.params.Blessed {
		return 0
	}
	return m.SuccessProb(level) * blessedSkipChance * m.params.BlessedScale()
}

// FailureDest is the level a failed attempt lands on. Protection keeps the
// item one level below; otherwise failure resets to zero.
func (m *Model) FailureDest(level, protectFrom int) int {
	if protectFrom > 0 && level >= protectFrom && level > 0 {
		return level - 1
	}
	return 0
}

// AttemptSeconds is the duration of a single enhancement action. Levels held
// above the item level speed the action up alongside the speed bonus.
func (m *Model) AttemptSeconds() float64 {
	over := m.params.EnhancingLevel - float64(m.itemLevel)
	if over < 0 {
		over = 0
	}
	return m.baseSeconds / (1 + (m.params.SpeedBonus+over)/100)
}

// BaseActionSeconds is the fallback action duration for items that do not
// declare their own.
const BaseActionSeconds = 12.0
