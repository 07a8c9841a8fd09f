// Package localstore provides the durable on-disk cache for register records.
//
// The store is an embedded SQLite database (WAL mode) holding the latest known
// state of every record per collection, plus the outbox of mutations pending
// replay against the remote store. It is the only state that must survive a
// process restart: a register that reboots while offline resumes with its
// cached records and its pending queue intact.
//
// Layout:
//   - records: latest known state, keyed by (collection, id)
//   - outbox:  pending mutations, one row per (collection:id) key
//
// The schema is versioned through PRAGMA user_version. Opening a database at
// the current version is a no-op; a database written by a newer build is
// refused rather than guessed at.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tillworks/tillsync/internal/pos"
)

// schemaVersion is the current on-disk schema version.
const schemaVersion = 1

// ErrUnknownCollection is returned for collection names outside the fixed set.
var ErrUnknownCollection = errors.New("unknown collection")

// Store wraps the SQLite connection holding cached records and the outbox.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates or opens the local store at the specified path.
//
// The database is opened in WAL mode for concurrent reads. If it doesn't
// exist it is created and the schema initialized. The caller MUST call
// Close() when done.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[localstore] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
	}

	// WAL keeps readers unblocked during sync writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store, checkpointing the WAL so all changes land on disk.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// migrate creates the schema on first open and verifies the version on
// subsequent opens. Re-opening an existing store at the current version is a
// no-op.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	switch {
	case version == schemaVersion:
		return nil

	case version > schemaVersion:
		return fmt.Errorf("store %s has schema version %d, this build supports %d",
			s.path, version, schemaVersion)

	case version > 0:
		// A second schema version doesn't exist yet; anything in (0, current)
		// would be a bug, not a migration path.
		return fmt.Errorf("store %s has unexpected schema version %d", s.path, version)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE TABLE IF NOT EXISTS outbox (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		collection TEXT NOT NULL,
		record_id TEXT NOT NULL,
		action TEXT NOT NULL,
		payload TEXT NOT NULL,
		seq INTEGER NOT NULL DEFAULT 1,
		queued_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	s.logger.Printf("Initialized store at %s (schema v%d)", s.path, schemaVersion)
	return nil
}

// Put inserts or overwrites the record under its id within its collection.
// Calling twice with the same record leaves the store in the same state.
func (s *Store) Put(ctx context.Context, collection string, rec pos.Record) error {
	if !pos.KnownCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if rec.RecordID() == "" {
		return fmt.Errorf("cannot store %s record without an id", collection)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s record: %w", collection, err)
	}

	data, err := pos.Encode(rec)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO records (collection, id, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		collection,
		rec.RecordID(),
		string(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, rec.RecordID(), err)
	}
	return nil
}

// Get returns the cached record at (collection, id), or (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, collection, id string) (pos.Record, error) {
	if !pos.KnownCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	var data string
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	rec, err := pos.Decode(collection, []byte(data))
	if err != nil {
		return nil, fmt.Errorf("corrupt record %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// GetAll returns every cached record for the collection. An empty collection
// yields an empty slice, not an error.
func (s *Store) GetAll(ctx context.Context, collection string) ([]pos.Record, error) {
	if !pos.KnownCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, data FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	records := []pos.Record{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", collection, err)
		}
		rec, err := pos.Decode(collection, []byte(data))
		if err != nil {
			// A row that no longer decodes is skipped, not fatal: the cache
			// must keep serving the remaining records.
			s.logger.Printf("Warning: skipping corrupt record %s/%s: %v", collection, id, err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", collection, err)
	}

	return records, nil
}

// Delete removes the record at (collection, id). Deleting an absent record is
// not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if !pos.KnownCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// CountRecords returns the number of cached records in the collection.
func (s *Store) CountRecords(ctx context.Context, collection string) (int, error) {
	if !pos.KnownCollection(collection) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", collection, err)
	}
	return count, nil
}
