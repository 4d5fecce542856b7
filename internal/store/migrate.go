package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations run in order, each exactly once, tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "chats and messages",
		SQL: `
		CREATE TABLE IF NOT EXISTS chats (
			id            TEXT PRIMARY KEY,
			user_name     TEXT NOT NULL DEFAULT '',
			last_activity DATETIME,
			unread        INTEGER NOT NULL DEFAULT 0,
			state         TEXT NOT NULL DEFAULT 'unscanned',
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS messages (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id        TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			content        TEXT NOT NULL,
			sender         TEXT NOT NULL,
			is_sent_by_you INTEGER NOT NULL DEFAULT 0,
			timestamp      TEXT NOT NULL DEFAULT '',
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(chat_id, content, sender)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);
		`,
	},
	{
		Version:     2,
		Description: "products and per-chat product snapshot",
		SQL: `
		CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			price       TEXT NOT NULL DEFAULT '',
			image_url   TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			context     TEXT NOT NULL DEFAULT '',
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		ALTER TABLE chats ADD COLUMN product_json TEXT NOT NULL DEFAULT '';
		`,
	},
}

// RunMigrations brings db up to the latest schema version.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			logger.Warn("migration failed as a batch, retrying per statement", "version", m.Version, "err", err)
			if err := applyStatements(db, m, logger); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// applyStatements runs m one statement at a time, skipping statements
// that were already applied by hand or by an interrupted run.
func applyStatements(db *sql.DB, m migration, logger *slog.Logger) error {
	for _, stmt := range strings.Split(m.SQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
				logger.Debug("migration statement already applied", "version", m.Version)
				continue
			}
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
	}
	if _, err := db.Exec(
		"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh db.
func SchemaVersion(db *sql.DB) (int, error) {
	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name); err != nil {
		return 0, nil
	}
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}

// LatestVersion is the version RunMigrations migrates to.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}
