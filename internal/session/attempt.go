package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/forgecalc/pkg/models"
)

// OutcomeType classifies one applied attempt event.
type OutcomeType string

const (
	OutcomeSuccess OutcomeType = "success"
	OutcomeFailure OutcomeType = "failure"
	// OutcomeIgnored marks an incomplete or duplicate event: level held
	// steady above zero with no protection item present. Discarded rather
	// than reapplied.
	OutcomeIgnored OutcomeType = "ignored"
)

// Outcome is the result of applying one attempt event.
type Outcome struct {
	Type OutcomeType `json:"type"`
	// Protected is set when a protection item was judged consumed. This is
	// a best-effort heuristic: a level held steady with a protection item
	// present cannot be told apart from a no-op duplicate carrying one.
	Protected bool `json:"protected,omitempty"`
	// AttemptNumber is the session-derived ordinal of this attempt.
	AttemptNumber int `json:"attempt_number,omitempty"`
}

// RecordAttempt applies one completed-attempt event to the current session.
// Events must arrive in game order; classification depends on the previous
// recorded level.
func (t *Tracker) RecordAttempt(ctx context.Context, ev models.AttemptEvent) (*models.Session, Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessions[t.currentID]
	if s == nil {
		return nil, Outcome{}, fmt.Errorf("%w: no current session", ErrStateViolation)
	}
	if s.State != models.SessionTracking {
		return nil, Outcome{}, fmt.Errorf("%w: session %s is %s", ErrStateViolation, s.ID, s.State)
	}
	if s.ItemHrid != ev.ItemHrid {
		return nil, Outcome{}, fmt.Errorf("%w: event for %s against session tracking %s", ErrStateViolation, ev.ItemHrid, s.ItemHrid)
	}

	prev := s.CurrentLevel()
	next := ev.ResultLevel
	outcome := classify(prev, next, ev.ProtectionHrid != "")
	if outcome.Type == OutcomeIgnored {
		log.Debug().Str("session", s.ID).Int("level", prev).Msg("Discarded stale or incomplete attempt event")
		return s, outcome, nil
	}

	counts := s.CountsAt(prev)
	switch outcome.Type {
	case OutcomeSuccess:
		counts.Success++
	case OutcomeFailure:
		counts.Fail++
	}

	s.TotalXP += attemptXP(prev, t.itemLevel(s.ItemHrid), outcome.Type == OutcomeSuccess)

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	s.LastAttempt = models.LastAttempt{
		Number: s.TotalAttempts(),
		Level:  next,
		At:     at,
	}
	outcome.AttemptNumber = s.LastAttempt.Number

	t.accrueCosts(s, ev, prev, &outcome)

	s.UpdatedAt = time.Now()
	if next >= s.TargetLevel {
		s.State = models.SessionCompleted
		log.Info().Str("session", s.ID).Str("item", s.ItemHrid).Int("level", next).
			Int("attempts", s.LastAttempt.Number).Msg("Session target reached")
	}

	return s, outcome, t.persistLocked(ctx, s)
}

// classify decides success, failure, or ignore from the level delta.
func classify(prev, next int, protectionPresent bool) Outcome {
	switch {
	case next > prev:
		return Outcome{Type: OutcomeSuccess}
	case next < prev:
		return Outcome{Type: OutcomeFailure}
	case next == 0:
		// A failed attempt at level 0 stays at level 0.
		return Outcome{Type: OutcomeFailure}
	case protectionPresent:
		// Held steady above zero with a protection item: a protected
		// failure (or an indistinguishable duplicate, see Outcome).
		return Outcome{Type: OutcomeFailure, Protected: true}
	default:
		return Outcome{Type: OutcomeIgnored}
	}
}

// attemptXP is the experience granted for one attempt. Failures grant a
// tenth of the success amount.
func attemptXP(level, itemLevel int, success bool) float64 {
	base := math.Pow(1.4, float64(level)) * (10 + float64(itemLevel))
	if success {
		return base
	}
	return base * 0.1
}

// accrueCosts charges the attempt's materials at the latest known unit
// prices, plus the protection item when the outcome is consistent with one
// being consumed.
func (t *Tracker) accrueCosts(s *models.Session, ev models.AttemptEvent, prev int, outcome *Outcome) {
	if s.Costs.Materials == nil {
		s.Costs.Materials = make(map[string]float64)
	}
	for _, mat := range ev.Materials {
		if mat.ItemHrid == models.CoinHrid {
			s.Costs.Coins += mat.Count
			continue
		}
		unit, ok := t.unitPrice(mat.ItemHrid)
		if !ok {
			log.Debug().Str("material", mat.ItemHrid).Msg("No price for material, cost not accrued")
			continue
		}
		s.Costs.Materials[mat.ItemHrid] += mat.Count * unit
	}

	if !protectionConsumed(s, ev, prev, *outcome) {
		return
	}
	outcome.Protected = true
	s.Costs.ProtectionCount++
	if unit, ok := t.unitPrice(ev.ProtectionHrid); ok {
		s.Costs.Protection += unit
	} else {
		log.Debug().Str("protection", ev.ProtectionHrid).Msg("No price for protection item, count accrued without cost")
	}
}

// protectionConsumed applies a best-effort heuristic: the attempt happened at
// or above the protection threshold, and either the level held steady on
// what would otherwise have been a decrease, or a guaranteed-success
// consumable was used.
func protectionConsumed(s *models.Session, ev models.AttemptEvent, prev int, outcome Outcome) bool {
	if s.ProtectFrom <= 0 || prev < s.ProtectFrom || ev.ProtectionHrid == "" {
		return false
	}
	if outcome.Type == OutcomeFailure && ev.ResultLevel == prev && prev > 0 {
		return true
	}
	return ev.GuaranteedSuccess
}

func (t *Tracker) itemLevel(hrid string) int {
	if t.meta == nil {
		return 0
	}
	if item, ok := t.meta.Item(hrid); ok {
		return item.ItemLevel
	}
	return 0
}

func (t *Tracker) unitPrice(hrid string) (float64, bool) {
	if t.prices == nil {
		return 0, false
	}
	p, ok := t.prices.Price(hrid, 0)
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
