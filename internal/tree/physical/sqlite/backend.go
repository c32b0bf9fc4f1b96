// Package sqlite provides a SQLite-backed state backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/carvexyz/tree-node/internal/storage"
	"github.com/carvexyz/tree-node/internal/tree/physical"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
)

func init() {
	physical.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:        "~/.tree/state.db",
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5000",
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      BLOB NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// NewFactory creates a new SQLite backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	path := storage.GetString(config, KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("sqlite", KeyPath, "cannot be empty")
	}
	path = storage.ExpandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to create directory", err)
	}

	journalMode := storage.GetString(config, KeyJournalMode, "wal")
	busyTimeout := storage.GetString(config, KeyBusyTimeout, "5000")

	dsn := fmt.Sprintf("file:%s?_journal_mode=%s&_busy_timeout=%s", path, journalMode, busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to open database", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to initialize schema", err)
	}

	slog.Info("sqlite state backend initialized", "path", path, "journal_mode", journalMode)
	return &Backend{db: db}, nil
}

// Backend is a SQLite implementation of physical.Backend.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool
}

// Put stores a record.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO records (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		namespace, key, value)
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// PutBatch applies all writes in a single transaction.
func (b *Backend) PutBatch(ctx context.Context, writes []physical.Write) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite put batch: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, w := range writes {
		if w.Value == nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM records WHERE namespace = ? AND key = ?`, w.Namespace, w.Key); err != nil {
				return fmt.Errorf("sqlite put batch: delete: %w", err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (namespace, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
			w.Namespace, w.Key, w.Value); err != nil {
			return fmt.Errorf("sqlite put batch: %w", err)
		}
	}
	return tx.Commit()
}

// Get retrieves a record.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	return value, nil
}

// Delete removes a record. Idempotent.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// List returns all records in a namespace.
func (b *Backend) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value FROM records WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlite list: scan: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
