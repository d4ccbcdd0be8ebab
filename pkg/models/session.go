// Package models contains domain models for forgecalc.
package models

import (
	"time"
)

// SessionState represents the lifecycle state of an enhancement session.
type SessionState string

const (
	SessionTracking  SessionState = "tracking"
	SessionCompleted SessionState = "completed"
)

// AttemptCounts holds per-level success/failure tallies of a session.
type AttemptCounts struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// LastAttempt is a snapshot of the most recent recorded attempt.
type LastAttempt struct {
	Number int       `json:"number"`
	Level  int       `json:"level"`
	At     time.Time `json:"at"`
}

// SessionCosts accumulates what a session has consumed so far, priced at the
// latest known unit prices when each attempt was applied.
type SessionCosts struct {
	// Materials maps material hrid to total coins spent on it.
	Materials map[string]float64 `json:"materials"`
	// Coins is the flat coin cost charged directly by attempts.
	Coins float64 `json:"coins"`
	// Protection is the total coin value of consumed protection items.
	Protection float64 `json:"protection"`
	// ProtectionCount is how many protection items were judged consumed.
	ProtectionCount int `json:"protection_count"`
}

// Session is one tracked upgrade run for a specific item.
type Session struct {
	ID         string `json:"id"`
	ItemHrid   string `json:"item_hrid"`
	ItemName   string `json:"item_name"`
	StartLevel int    `json:"start_level"`
	// TargetLevel is raised in place when a completed session is extended.
	TargetLevel int `json:"target_level"`
	// ProtectFrom is the level at or above which protection applies. 0 disables.
	ProtectFrom int          `json:"protect_from"`
	State       SessionState `json:"state"`

	// Attempts maps the level an attempt started from to its tallies.
	Attempts map[int]*AttemptCounts `json:"attempts"`

	TotalXP     float64      `json:"total_xp"`
	Costs       SessionCosts `json:"costs"`
	LastAttempt LastAttempt  `json:"last_attempt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a fresh tracking session.
func NewSession(id, itemHrid, itemName string, startLevel, targetLevel, protectFrom int) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		ItemHrid:    itemHrid,
		ItemName:    itemName,
		StartLevel:  startLevel,
		TargetLevel: targetLevel,
		ProtectFrom: protectFrom,
		State:       SessionTracking,
		Attempts:    make(map[int]*AttemptCounts),
		Costs:       SessionCosts{Materials: make(map[string]float64)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CurrentLevel is the most recent recorded level, or the start level when no
// attempt has been applied yet.
func (s *Session) CurrentLevel() int {
	if s.LastAttempt.Number > 0 {
		return s.LastAttempt.Level
	}
	return s.StartLevel
}

// CountsAt returns the tally bucket for a level, creating it if needed.
func (s *Session) CountsAt(level int) *AttemptCounts {
	if s.Attempts == nil {
		s.Attempts = make(map[int]*AttemptCounts)
	}
	c, ok := s.Attempts[level]
	if !ok {
		c = &AttemptCounts{}
		s.Attempts[level] = c
	}
	return c
}

// TotalAttempts sums successes and failures across all levels.
func (s *Session) TotalAttempts() int {
	total := 0
	for _, c := range s.Attempts {
		total += c.Success + c.Fail
	}
	return total
}

// AttemptEvent is one completed enhancement attempt as reported by the game.
// RawAttemptNumber comes from the game and is untrusted; sessions derive
// their own ordinal from accumulated counts.
type AttemptEvent struct {
	ItemHrid          string      `json:"item_hrid"`
	ItemName          string      `json:"item_name"`
	ResultLevel       int         `json:"result_level"`
	ProtectionHrid    string      `json:"protection_hrid,omitempty"`
	GuaranteedSuccess bool        `json:"guaranteed_success,omitempty"`
	RawAttemptNumber  int         `json:"raw_attempt_number"`
	Materials         []ItemCount `json:"materials,omitempty"`
	At                time.Time   `json:"at"`
}
