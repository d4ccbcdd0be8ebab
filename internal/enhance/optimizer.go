package enhance

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/forgecalc/pkg/models"
)

// ErrPriceUnknown reports that a required market price is unavailable.
// The optimizer never treats a missing price as zero; callers choose their
// own fallback chain (base price, production estimate, shop price).
var ErrPriceUnknown = errors.New("price unavailable")

// PathRequest is one valuation request: what would it cost to enhance this
// item to each level up to Target.
type PathRequest struct {
	Item      *models.ItemMetadata
	Target    int
	Params    models.EnhancementParams
	BaseRates []float64
	Prices    models.PriceSource
}

// CacheKey identifies the request for memoization. Requests with identical
// keys produce identical valuations as long as prices are unchanged.
func (r PathRequest) CacheKey() string {
	return fmt.Sprintf("path|%s|%d|%d|%v|%v", r.Item.Hrid, r.Item.ItemLevel, r.Target, r.Params, r.BaseRates)
}

// PathStep is the cheapest known way to reach one level from level 0.
type PathStep struct {
	Level        int     `json:"level"`
	ProtectFrom  int     `json:"protect_from"`
	Attempts     float64 `json:"attempts"`
	Protects     float64 `json:"protects"`
	TotalSeconds float64 `json:"total_seconds"`
	TotalCost    float64 `json:"total_cost"`
	// Mirror marks levels cheaper to reach by merging two lower-enhanced
	// copies than by direct attempts.
	Mirror bool `json:"mirror,omitempty"`
}

// PathValuation is the result of CalculateEnhancementPath for the final
// target level, with the full per-level cost table attached.
type PathValuation struct {
	ItemHrid     string     `json:"item_hrid"`
	TargetLevel  int        `json:"target_level"`
	Attempts     float64    `json:"attempts"`
	Protects     float64    `json:"protects"`
	TotalSeconds float64    `json:"total_seconds"`
	ProtectFrom  int        `json:"protect_from"`
	TotalCost    float64    `json:"total_cost"`
	Steps        []PathStep `json:"steps"`
}

// CalculateEnhancementPath finds, for every level 1..Target, the protection
// threshold minimizing expected coin cost, then applies the composite-path
// relaxation. This is the engine's public valuation entry point.
func CalculateEnhancementPath(req PathRequest) (*PathValuation, error) {
	steps, err := calculateCostTable(req)
	if err != nil {
		return nil, err
	}
	last := steps[req.Target]
	return &PathValuation{
		ItemHrid:     req.Item.Hrid,
		TargetLevel:  req.Target,
		Attempts:     last.Attempts,
		Protects:     last.Protects,
		TotalSeconds: last.TotalSeconds,
		ProtectFrom:  last.ProtectFrom,
		TotalCost:    last.TotalCost,
		Steps:        steps,
	}, nil
}

// calculateCostTable builds the per-level minimum cost table bottom-up.
// Index 0 holds the bare base item; index L the cheapest path to +L.
func calculateCostTable(req PathRequest) ([]PathStep, error) {
	if req.Target < 1 || req.Target > models.MaxEnhancementLevel {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, req.Target)
	}

	model, err := NewModel(req.Params, req.Item.ItemLevel, req.BaseRates, req.Item.BaseTimeSeconds)
	if err != nil {
		return nil, err
	}

	basePrice, ok := quote(req.Prices, req.Item.Hrid, 0)
	if !ok {
		return nil, fmt.Errorf("%w: base item %s", ErrPriceUnknown, req.Item.Hrid)
	}

	protPrice, protKnown := 0.0, false
	if req.Item.ProtectionHrid != "" {
		protPrice, protKnown = quote(req.Prices, req.Item.ProtectionHrid, 0)
	}
	if !protKnown {
		log.Debug().Str("item", req.Item.Hrid).Msg("protection price unknown, only unprotected strategies considered")
	}

	steps := make([]PathStep, req.Target+1)
	steps[0] = PathStep{TotalCost: basePrice}

	for level := 1; level <= req.Target; level++ {
		matCost, err := materialCost(req, level)
		if err != nil {
			return nil, err
		}

		best := PathStep{Level: level, TotalCost: math.Inf(1)}
		for _, p := range protectionCandidates(level, protKnown) {
			res, err := Solve(model, level, p)
			if err != nil {
				return nil, err
			}
			cost := basePrice + matCost*res.Attempts + protPrice*res.Protects
			if cost < best.TotalCost {
				best = PathStep{
					Level:        level,
					ProtectFrom:  p,
					Attempts:     res.Attempts,
					Protects:     res.Protects,
					TotalSeconds: res.TotalSeconds,
					TotalCost:    cost,
				}
			}
		}
		steps[level] = best
	}

	relaxComposite(req, steps)
	return steps, nil
}

// protectionCandidates enumerates admissible thresholds for a target level:
// no protection, or any threshold from 2 up to the target. The game never
// offers protection below level 2.
func protectionCandidates(level int, protKnown bool) []int {
	cands := []int{0}
	if !protKnown {
		return cands
	}
	for p := 2; p <= level; p++ {
		cands = append(cands, p)
	}
	return cands
}

// relaxComposite applies the two-level merge shortcut in ascending order, so
// cheaper composite sub-paths feed into higher levels.
func relaxComposite(req PathRequest, steps []PathStep) {
	if req.Item.MirrorHrid == "" {
		return
	}
	mirrorPrice, ok := quote(req.Prices, req.Item.MirrorHrid, 0)
	if !ok {
		log.Debug().Str("item", req.Item.Hrid).Msg("mirror price unknown, composite path skipped")
		return
	}
	for level := 3; level <= req.Target; level++ {
		composite := steps[level-2].TotalCost + steps[level-1].TotalCost + mirrorPrice
		if composite < steps[level].TotalCost {
			steps[level].TotalCost = composite
			steps[level].Mirror = true
		}
	}
}

// materialCost prices one attempt toward the given level. Coins count at
// face value; every other material needs a market quote.
func materialCost(req PathRequest, level int) (float64, error) {
	total := 0.0
	for _, mat := range req.Item.MaterialsFor(level) {
		if mat.ItemHrid == models.CoinHrid {
			total += mat.Count
			continue
		}
		unit, ok := quote(req.Prices, mat.ItemHrid, 0)
		if !ok {
			return 0, fmt.Errorf("%w: material %s", ErrPriceUnknown, mat.ItemHrid)
		}
		total += unit * mat.Count
	}
	return total, nil
}

// quote resolves a usable unit price, preferring ask over bid.
func quote(src models.PriceSource, itemHrid string, level int) (float64, bool) {
	if src == nil {
		return 0, false
	}
	p, ok := src.Price(itemHrid, level)
	if !ok {
		return 0, false
	}
	if p.Ask > 0 {
		return p.Ask, true
	}
	if p.Bid > 0 {
		return p.Bid, true
	}
	return 0, false
}
