// Package store persists searches, messages, analyses and syntheses. It
// runs on Postgres or SQLite depending on the DSN, so production deployments
// share one database while tests and single-user setups use a local file.
//
// All timestamps are written by Go as RFC3339 UTC strings. Statements use ?
// placeholders and are rebound per dialect.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"caaasearch/internal/config"
	"caaasearch/internal/logging"
)

// Store wraps the search database.
type Store struct {
	db       *sqlx.DB
	postgres bool
}

// Open connects to the database named by cfg.DSN, creates the schema if
// needed, and runs pending data migrations.
func Open(cfg config.StoreConfig) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	var (
		db  *sqlx.DB
		err error
	)

	if cfg.IsPostgres() {
		logging.Store("Opening Postgres store")
		db, err = sqlx.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())
	} else {
		logging.Store("Opening SQLite store at %s", cfg.DSN)
		if cfg.DSN != ":memory:" {
			dir := filepath.Dir(cfg.DSN)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		db, err = sqlx.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// Single connection: all writers share one handle, and an in-memory
		// database exists per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, pragma := range []string{
			"PRAGMA busy_timeout = 5000",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA foreign_keys = ON",
		} {
			if _, err := db.Exec(pragma); err != nil {
				logging.StoreDebug("Pragma failed (%s): %v", pragma, err)
			}
		}
	}

	s := &Store{db: db, postgres: cfg.IsPostgres()}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store ready (postgres=%v)", s.postgres)
	return s, nil
}

// initialize creates the required tables. The DDL is restricted to syntax
// both dialects accept.
func (s *Store) initialize() error {
	searchesTable := `
	CREATE TABLE IF NOT EXISTS searches (
		id TEXT PRIMARY KEY,
		search_number INTEGER NOT NULL UNIQUE,
		user_query TEXT NOT NULL,
		real_question TEXT NOT NULL,
		query_type TEXT NOT NULL DEFAULT 'general',
		search_params TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT NOT NULL DEFAULT '',
		messages_found INTEGER NOT NULL DEFAULT 0,
		relevant_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_searches_status ON searches(status);
	CREATE INDEX IF NOT EXISTS idx_searches_created ON searches(created_at);
	`

	messagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		upstream_id BIGINT NOT NULL UNIQUE,
		subject TEXT NOT NULL DEFAULT '',
		from_name TEXT NOT NULL DEFAULT '',
		from_email TEXT NOT NULL DEFAULT '',
		listserv TEXT NOT NULL DEFAULT '',
		posted_date TEXT NOT NULL DEFAULT '',
		has_attachment BOOLEAN NOT NULL DEFAULT FALSE,
		body TEXT NOT NULL DEFAULT '',
		body_length INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_posted ON messages(posted_date);
	CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_email);
	`

	resultsTable := `
	CREATE TABLE IF NOT EXISTS search_results (
		search_id TEXT NOT NULL REFERENCES searches(id),
		message_id TEXT NOT NULL REFERENCES messages(id),
		result_position INTEGER NOT NULL,
		result_page INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		PRIMARY KEY (search_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_results_position ON search_results(search_id, result_position);
	`

	analysesTable := `
	CREATE TABLE IF NOT EXISTS analyses (
		search_id TEXT NOT NULL REFERENCES searches(id),
		message_id TEXT NOT NULL REFERENCES messages(id),
		is_relevant BOOLEAN NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		ai_reasoning TEXT NOT NULL DEFAULT '',
		ai_model TEXT NOT NULL DEFAULT '',
		ai_tokens_used INTEGER NOT NULL DEFAULT 0,
		ai_cost_usd REAL NOT NULL DEFAULT 0,
		analyzed_at TEXT NOT NULL,
		PRIMARY KEY (search_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_relevant ON analyses(search_id, is_relevant);
	`

	synthesisTable := `
	CREATE TABLE IF NOT EXISTS synthesis_results (
		search_id TEXT PRIMARY KEY REFERENCES searches(id),
		score INTEGER NOT NULL,
		evaluation TEXT NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	synthesisFeedbackTable := `
	CREATE TABLE IF NOT EXISTS synthesis_feedback (
		id TEXT PRIMARY KEY,
		search_id TEXT NOT NULL REFERENCES searches(id),
		is_positive BOOLEAN NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_synthesis_feedback_search ON synthesis_feedback(search_id);
	`

	messageFeedbackTable := `
	CREATE TABLE IF NOT EXISTS message_feedback (
		id TEXT PRIMARY KEY,
		search_id TEXT NOT NULL REFERENCES searches(id),
		message_id TEXT NOT NULL REFERENCES messages(id),
		is_positive BOOLEAN NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_message_feedback_search ON message_feedback(search_id);
	`

	for _, table := range []string{
		searchesTable,
		messagesTable,
		resultsTable,
		analysesTable,
		synthesisTable,
		synthesisFeedbackTable,
		messageFeedbackTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// migrate applies idempotent data migrations. Defense attorney evaluations
// originally reused the doctor label set; rows written before the rename are
// rewritten to the dealing-difficulty labels.
func (s *Store) migrate() error {
	q := s.db.Rebind(`
		UPDATE synthesis_results SET evaluation = CASE evaluation
			WHEN 'good' THEN 'easy_to_deal_with'
			WHEN 'mixed' THEN 'moderate'
			WHEN 'bad' THEN 'difficult_to_deal_with'
			ELSE evaluation END
		WHERE evaluation IN ('good', 'mixed', 'bad')
		  AND search_id IN (SELECT id FROM searches WHERE query_type = ?)`)

	res, err := s.db.Exec(q, "defense_attorney_eval")
	if err != nil {
		return fmt.Errorf("failed to migrate defense attorney labels: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logging.Store("Migrated %d defense attorney evaluation labels", n)
	}
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing store")
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// nowUTC is the canonical timestamp format for every written row.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// isUniqueViolation matches duplicate-key errors from either dialect.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
