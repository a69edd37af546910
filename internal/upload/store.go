// Package upload is the local implementation of the attachment-upload
// collaborator: raw payloads go in, durable references come out. The engine
// itself only ever sees the references.
package upload

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RefScheme prefixes every durable attachment reference.
const RefScheme = "attach://"

// SQLiteStore stores attachment blobs in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create attachment directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open attachment database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("attachment database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attachments (
		ref         TEXT PRIMARY KEY,
		data        BLOB NOT NULL,
		size        INTEGER NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores each blob and returns one reference per blob, in input order.
// The batch is transactional: a failure stores nothing.
func (s *SQLiteStore) Put(ctx context.Context, blobs [][]byte) ([]string, error) {
	if len(blobs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attachment batch: %w", err)
	}
	defer tx.Rollback()

	refs := make([]string, 0, len(blobs))
	now := time.Now()
	for _, blob := range blobs {
		if len(blob) == 0 {
			return nil, fmt.Errorf("empty attachment payload")
		}
		ref := RefScheme + uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments (ref, data, size, created_at) VALUES (?, ?, ?, ?)`,
			ref, blob, len(blob), now,
		); err != nil {
			return nil, fmt.Errorf("store attachment: %w", err)
		}
		refs = append(refs, ref)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attachment batch: %w", err)
	}
	s.logger.Debug("attachments stored", "count", len(refs))
	return refs, nil
}

// Get returns the payload behind a reference.
func (s *SQLiteStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, RefScheme) {
		return nil, fmt.Errorf("unknown attachment reference %q", ref)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM attachments WHERE ref = ?`, ref).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attachment %q not found", ref)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
