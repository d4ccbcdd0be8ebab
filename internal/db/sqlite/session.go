package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thebtf/forgecalc/pkg/models"
)

// currentSessionKey is the tracker_state key for the current-session
// pointer, stored independently of the session rows.
const currentSessionKey = "current_session_id"

// SessionStore persists enhancement sessions as flat keyed rows. Nested
// structures (attempt tallies, costs, last attempt) are JSON column blobs so
// a reloaded session reproduces the original verbatim.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Put inserts or replaces a session row.
func (s *SessionStore) Put(ctx context.Context, sess *models.Session) error {
	attempts, err := json.Marshal(sess.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	costs, err := json.Marshal(sess.Costs)
	if err != nil {
		return fmt.Errorf("marshal costs: %w", err)
	}
	lastAttempt, err := json.Marshal(sess.LastAttempt)
	if err != nil {
		return fmt.Errorf("marshal last attempt: %w", err)
	}

	const query = `
		INSERT OR REPLACE INTO enhancement_sessions
		(id, item_hrid, item_name, start_level, target_level, protect_from, state,
		 attempts, total_xp, costs, last_attempt,
		 created_at, created_at_epoch, updated_at, updated_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.store.ExecContext(ctx, query,
		sess.ID, sess.ItemHrid, sess.ItemName, sess.StartLevel, sess.TargetLevel, sess.ProtectFrom, string(sess.State),
		string(attempts), sess.TotalXP, string(costs), string(lastAttempt),
		sess.CreatedAt.Format(time.RFC3339Nano), sess.CreatedAt.UnixMilli(),
		sess.UpdatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.UnixMilli(),
	)
	return err
}

const sessionColumns = `id, item_hrid, item_name, start_level, target_level, protect_from, state,
	attempts, total_xp, costs, last_attempt, created_at, updated_at`

// Get retrieves one session by id. Returns (nil, nil) when absent.
func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM enhancement_sessions WHERE id = ? LIMIT 1`
	row := s.store.QueryRowContext(ctx, query, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// List returns all sessions, oldest first.
func (s *SessionStore) List(ctx context.Context) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM enhancement_sessions ORDER BY created_at_epoch ASC`
	rows, err := s.store.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Delete removes a session row.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.ExecContext(ctx, `DELETE FROM enhancement_sessions WHERE id = ?`, id)
	return err
}

// SetCurrent stores the current-session pointer. An empty id clears it.
func (s *SessionStore) SetCurrent(ctx context.Context, id string) error {
	if id == "" {
		_, err := s.store.ExecContext(ctx, `DELETE FROM tracker_state WHERE key = ?`, currentSessionKey)
		return err
	}
	_, err := s.store.ExecContext(ctx,
		`INSERT OR REPLACE INTO tracker_state (key, value) VALUES (?, ?)`, currentSessionKey, id)
	return err
}

// Current returns the stored current-session pointer, or "" when unset.
func (s *SessionStore) Current(ctx context.Context) (string, error) {
	var id string
	err := s.store.QueryRowContext(ctx,
		`SELECT value FROM tracker_state WHERE key = ? LIMIT 1`, currentSessionKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess                         models.Session
		state                        string
		attempts, costs, lastAttempt string
		createdAt, updatedAt         string
	)
	err := row.Scan(
		&sess.ID, &sess.ItemHrid, &sess.ItemName, &sess.StartLevel, &sess.TargetLevel, &sess.ProtectFrom, &state,
		&attempts, &sess.TotalXP, &costs, &lastAttempt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.State = models.SessionState(state)
	if err := json.Unmarshal([]byte(attempts), &sess.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(costs), &sess.Costs); err != nil {
		return nil, fmt.Errorf("unmarshal costs for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(lastAttempt), &sess.LastAttempt); err != nil {
		return nil, fmt.Errorf("unmarshal last attempt for %s: %w", sess.ID, err)
	}
	if sess.Attempts == nil {
		sess.Attempts = make(map[int]*models.AttemptCounts)
	}
	if sess.Costs.Materials == nil {
		sess.Costs.Materials = make(map[string]float64)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sess.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sess.UpdatedAt = t
	}
	return &sess, nil
}
