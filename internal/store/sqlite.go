package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/symbiote-ai/symbiote/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	txMaxRetries = 3
	txRetryDelay = 100 * time.Millisecond
)

// SQLiteStore bundles the connection pool with the per-entity repositories.
type SQLiteStore struct {
	db *sql.DB

	Tasks      TaskRepo
	Chats      ChatRepo
	Messages   MessageRepo
	Agents     AgentRepo
	ActionLogs ActionLogRepo
}

// NewSQLite opens (or creates) a SQLite database at dbPath and initializes
// the schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency; busy_timeout so concurrent writers
	// queue instead of failing immediately. foreign_keys enables the
	// ON DELETE CASCADE clauses in the schema. Transactions take the write
	// lock up front so read-then-write transactions wait on the busy
	// timeout instead of failing on snapshot upgrade.
	dsn := "file:" + dbPath + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		website_url TEXT,
		status TEXT NOT NULL,
		metadata_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL UNIQUE,
		step_count INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		context_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_task ON chats(task_id);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_type TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		model_name TEXT NOT NULL,
		capabilities_json TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		agent_id INTEGER REFERENCES agents(id),
		content TEXT NOT NULL,
		image_refs_json TEXT,
		action_json TEXT,
		confidence REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at, id);

	CREATE TABLE IF NOT EXISTS action_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		action_type TEXT NOT NULL,
		element_description TEXT NOT NULL,
		coord_x REAL,
		coord_y REAL,
		text_input TEXT,
		confidence REAL NOT NULL,
		success INTEGER,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_logs_message ON action_logs(message_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction: commit on nil, rollback on error.
// SQLITE_BUSY conflicts are retried with exponential backoff before the
// error is surfaced.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	var err error
	for attempt := 0; attempt < txMaxRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if attempt < txMaxRetries-1 {
			delay := txRetryDelay * time.Duration(1<<attempt)
			slog.Debug("transaction conflict, retrying", "attempt", attempt+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", txMaxRetries, err)
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "entity", what, "error", err)
	}
}

// marshalJSON serializes v for a nullable JSON column. Nil and empty maps
// store as NULL.
func marshalJSON(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshal json column: %w", err)
	}
	return v, nil
}

func marshalStrings(v []string) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal string list column: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(col sql.NullString) ([]string, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshal string list column: %w", err)
	}
	return v, nil
}
