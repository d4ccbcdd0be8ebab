package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migration is one schema step, applied once and recorded by id.
type migration struct {
	id    string
	stmts []string
}

var migrations = []migration{
	{
		id: "001_sessions",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS enhancement_sessions (
				id TEXT PRIMARY KEY,
				item_hrid TEXT NOT NULL,
				item_name TEXT NOT NULL,
				start_level INTEGER NOT NULL,
				target_level INTEGER NOT NULL,
				protect_from INTEGER NOT NULL DEFAULT 0,
				state TEXT NOT NULL,
				attempts TEXT NOT NULL DEFAULT '{}',
				total_xp REAL NOT NULL DEFAULT 0,
				costs TEXT NOT NULL DEFAULT '{}',
				last_attempt TEXT NOT NULL DEFAULT '{}',
				created_at TEXT NOT NULL,
				created_at_epoch INTEGER NOT NULL,
				updated_at TEXT NOT NULL,
				updated_at_epoch INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_item ON enhancement_sessions(item_hrid)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_state ON enhancement_sessions(state)`,
		},
	},
	{
		id: "002_tracker_state",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS tracker_state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE id = ?`, m.id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.id, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.id, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %s: %w", m.id, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (id) VALUES (?)`, m.id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.id, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.id, err)
		}
		log.Debug().Str("migration", m.id).Msg("Applied migration")
	}
	return nil
}
