// Package session implements the resumable enhancement session state
// machine: attempt classification, adjusted attempt counting, XP and cost
// accrual, and resumption/extension across game reconnects.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/forgecalc/pkg/models"
)

// ErrStateViolation reports an operation against a session in the wrong
// state: resuming a completed session, extending a tracking one, or starting
// over an open session for a different item. State is left unchanged.
var ErrStateViolation = errors.New("session state violation")

// Store persists sessions as flat keyed records plus an independent
// current-session pointer. Implemented by the sqlite session store.
type Store interface {
	Put(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	SetCurrent(ctx context.Context, id string) error
	Current(ctx context.Context) (string, error)
}

// MetadataSource resolves item metadata for XP and cost accrual.
type MetadataSource interface {
	Item(hrid string) (*models.ItemMetadata, bool)
}

// Tracker owns the session map and the current-session pointer. Persistence
// and price lookup are injected collaborators, not hidden side effects.
// Attempt events must be applied in the order the game reports them; all
// operations are serialized by the tracker mutex.
type Tracker struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	currentID string

	store  Store
	prices models.PriceSource
	meta   MetadataSource
}

// NewTracker creates a tracker. store, prices, and meta may be nil; the
// corresponding behaviors (persistence, cost accrual, XP item scaling)
// degrade gracefully.
func NewTracker(store Store, prices models.PriceSource, meta MetadataSource) *Tracker {
	return &Tracker{
		sessions: make(map[string]*models.Session),
		store:    store,
		prices:   prices,
		meta:     meta,
	}
}

// Load restores all persisted sessions and the current pointer.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	sessions, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	current, err := t.store.Current(ctx)
	if err != nil {
		return fmt.Errorf("load current session pointer: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*models.Session, len(sessions))
	for _, s := range sessions {
		t.sessions[s.ID] = s
	}
	if _, ok := t.sessions[current]; ok {
		t.currentID = current
	}
	log.Info().Int("sessions", len(sessions)).Str("current", t.currentID).Msg("Session tracker restored")
	return nil
}

// Current returns a copy-safe reference to the active session, or nil.
func (t *Tracker) Current() *models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[t.currentID]
}

// Get returns a session by id.
func (t *Tracker) Get(id string) *models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

// List returns all known sessions.
func (t *Tracker) List() []*models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// Start opens a session for an item. If a tracking session for the same
// item, level, target, and protection already exists it is resumed instead
// of duplicated; if a completed session for the item can absorb the new
// target it is extended in place. A tracking session for a different item
// must be finalized by the caller first.
func (t *Tracker) Start(ctx context.Context, itemHrid, itemName string, startLevel, targetLevel, protectFrom int) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur := t.sessions[t.currentID]; cur != nil && cur.State == models.SessionTracking && cur.ItemHrid != itemHrid {
		return nil, fmt.Errorf("%w: tracking session %s for %s is still open", ErrStateViolation, cur.ID, cur.ItemHrid)
	}

	if s := t.findMatchingLocked(itemHrid, startLevel, targetLevel, protectFrom); s != nil {
		t.currentID = s.ID
		log.Info().Str("session", s.ID).Str("item", itemHrid).Msg("Resumed matching session")
		return s, t.persistLocked(ctx, s)
	}

	if s := t.findExtendableLocked(itemHrid, startLevel); s != nil && targetLevel > s.TargetLevel {
		if err := t.extendLocked(s, targetLevel); err != nil {
			return nil, err
		}
		t.currentID = s.ID
		log.Info().Str("session", s.ID).Str("item", itemHrid).Int("target", targetLevel).Msg("Extended completed session")
		return s, t.persistLocked(ctx, s)
	}

	s := models.NewSession(uuid.New().String(), itemHrid, itemName, startLevel, targetLevel, protectFrom)
	t.sessions[s.ID] = s
	t.currentID = s.ID
	log.Info().Str("session", s.ID).Str("item", itemHrid).
		Int("start", startLevel).Int("target", targetLevel).Int("protectFrom", protectFrom).
		Msg("Started session")
	return s, t.persistLocked(ctx, s)
}

// FindMatching returns the tracking session matching item, recorded level,
// target, and protection exactly; nil otherwise. Used to resume after a
// reconnect without double-counting.
func (t *Tracker) FindMatching(itemHrid string, currentLevel, targetLevel, protectFrom int) *models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findMatchingLocked(itemHrid, currentLevel, targetLevel, protectFrom)
}

func (t *Tracker) findMatchingLocked(itemHrid string, currentLevel, targetLevel, protectFrom int) *models.Session {
	for _, s := range t.sessions {
		if s.State != models.SessionTracking {
			continue
		}
		if s.ItemHrid == itemHrid && s.CurrentLevel() == currentLevel &&
			s.TargetLevel == targetLevel && s.ProtectFrom == protectFrom {
			return s
		}
	}
	return nil
}

// FindExtendable returns a completed session for the item whose former
// target is at or below the observed level; nil otherwise. Used to continue
// upgrading past a previously reached goal.
func (t *Tracker) FindExtendable(itemHrid string, currentLevel int) *models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findExtendableLocked(itemHrid, currentLevel)
}

func (t *Tracker) findExtendableLocked(itemHrid string, currentLevel int) *models.Session {
	for _, s := range t.sessions {
		if s.State == models.SessionCompleted && s.ItemHrid == itemHrid && s.TargetLevel <= currentLevel {
			return s
		}
	}
	return nil
}

// Extend raises the target of a completed session and re-enters tracking,
// preserving all accumulated history.
func (t *Tracker) Extend(ctx context.Context, id string, newTarget int) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sessions[id]
	if s == nil {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err := t.extendLocked(s, newTarget); err != nil {
		return nil, err
	}
	t.currentID = s.ID
	return s, t.persistLocked(ctx, s)
}

func (t *Tracker) extendLocked(s *models.Session, newTarget int) error {
	if s.State != models.SessionCompleted {
		return fmt.Errorf("%w: cannot extend session %s in state %s", ErrStateViolation, s.ID, s.State)
	}
	if newTarget <= s.TargetLevel {
		return fmt.Errorf("%w: extension target %d not above former target %d", ErrStateViolation, newTarget, s.TargetLevel)
	}
	s.State = models.SessionTracking
	s.TargetLevel = newTarget
	s.UpdatedAt = time.Now()
	return nil
}

// Resume makes a tracking session current again.
func (t *Tracker) Resume(ctx context.Context, id string) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sessions[id]
	if s == nil {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if s.State != models.SessionTracking {
		return nil, fmt.Errorf("%w: cannot resume session %s in state %s", ErrStateViolation, s.ID, s.State)
	}
	t.currentID = id
	if t.store != nil {
		if err := t.store.SetCurrent(ctx, id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Finalize marks the current session completed regardless of level, e.g. on
// manual stop or when a different item starts enhancing.
func (t *Tracker) Finalize(ctx context.Context) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sessions[t.currentID]
	if s == nil {
		return nil, nil
	}
	if s.State == models.SessionTracking {
		s.State = models.SessionCompleted
		s.UpdatedAt = time.Now()
	}
	t.currentID = ""
	if t.store != nil {
		if err := t.store.SetCurrent(ctx, ""); err != nil {
			return nil, err
		}
	}
	return s, t.persistLocked(ctx, s)
}

// AdjustedAttemptCount derives the next attempt ordinal from accumulated
// counts instead of trusting the game's raw counter, which can reset or
// arrive out of order. A freshly resumed session recomputes the correct
// ordinal from state alone.
func AdjustedAttemptCount(s *models.Session) int {
	return s.TotalAttempts() + 1
}

func (t *Tracker) persistLocked(ctx context.Context, s *models.Session) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Put(ctx, s); err != nil {
		return fmt.Errorf("persist session %s: %w", s.ID, err)
	}
	if err := t.store.SetCurrent(ctx, t.currentID); err != nil {
		return fmt.Errorf("persist current pointer: %w", err)
	}
	return nil
}
