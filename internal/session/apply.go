package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/forgecalc/pkg/models"
)

// StartOptions configure sessions auto-started from raw game events.
type StartOptions struct {
	// StartLevel overrides the level a new session opens at. When nil the
	// event's resulting level is used and the opening event is never
	// counted as an attempt, whatever level it reports.
	StartLevel *int
	// TargetLevel for auto-started sessions. Zero defaults to the maximum
	// enhancement level.
	TargetLevel int
	// ProtectFrom for auto-started sessions. Zero disables protection.
	ProtectFrom int
}

// Apply routes one game event. Events matching the current tracking session
// are recorded directly; anything else finalizes the open session and starts
// (or resumes, or extends) one for the event's item.
func (t *Tracker) Apply(ctx context.Context, ev models.AttemptEvent, opts StartOptions) (*models.Session, Outcome, error) {
	cur := t.Current()
	if cur != nil && cur.State == models.SessionTracking && cur.ItemHrid == ev.ItemHrid {
		return t.RecordAttempt(ctx, ev)
	}

	if cur != nil && cur.State == models.SessionTracking {
		log.Info().Str("session", cur.ID).Str("item", cur.ItemHrid).Str("newItem", ev.ItemHrid).
			Msg("Different item observed, finalizing open session")
		if _, err := t.Finalize(ctx); err != nil {
			return nil, Outcome{}, err
		}
	}

	startLevel := ev.ResultLevel
	if opts.StartLevel != nil {
		startLevel = *opts.StartLevel
	}
	target := opts.TargetLevel
	if target <= 0 {
		target = models.MaxEnhancementLevel
	}

	s, err := t.Start(ctx, ev.ItemHrid, ev.ItemName, startLevel, target, opts.ProtectFrom)
	if err != nil {
		return nil, Outcome{}, err
	}

	// The event that opened the session only establishes position. It
	// carries an attempt solely when the caller pinned the true starting
	// level, making the level delta meaningful.
	if opts.StartLevel != nil && s.State == models.SessionTracking {
		return t.RecordAttempt(ctx, ev)
	}
	return s, Outcome{Type: OutcomeIgnored}, nil
}
