// Package store provides SQLite-backed durable storage.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
// All collections share one table keyed by (collection, id) with an
// ordering index on (collection, sort_key, sort_seq).
type SQLiteStore struct {
	db *sql.DB

	// Prepared statement cache keyed by query text. Statements are
	// prepared on first use and reused for the store's lifetime.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// OpenSQLite opens (creating if needed) the durable store under dataDir.
// The database is opened with:
// - WAL mode for concurrent reads during a sync run
// - a single writer connection, matching SQLite's write model
// - foreign key constraints enabled
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "opsync.db")

	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not exist yet.
func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL CHECK(length(collection) > 0),
		id         TEXT NOT NULL CHECK(length(id) > 0),
		sort_key   INTEGER NOT NULL,
		sort_seq   INTEGER NOT NULL,
		body       TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_order
		ON records (collection, sort_key, sort_seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes cached statements and the underlying database.
func (s *SQLiteStore) Close() error {
	s.stmtCache.Range(func(key, value interface{}) bool {
		value.(*sql.Stmt).Close()
		return true
	})
	return s.db.Close()
}

// prepareStmt gets or creates a prepared statement from the cache.
func (s *SQLiteStore) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Insert adds a record to the collection.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, rec Record) error {
	query := `INSERT INTO records (collection, id, sort_key, sort_seq, body) VALUES (?, ?, ?, ?, ?)`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, collection, rec.ID, rec.SortKey, rec.SortSeq, string(rec.Body))
	return err
}

// Get returns the record with the given id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	query := `SELECT id, sort_key, sort_seq, body FROM records WHERE collection = ? AND id = ?`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, err
	}

	var rec Record
	var body string
	err = stmt.QueryRowContext(ctx, collection, id).Scan(&rec.ID, &rec.SortKey, &rec.SortSeq, &body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Body = []byte(body)
	return &rec, nil
}

// GetAllByIndex returns every record in index order.
func (s *SQLiteStore) GetAllByIndex(ctx context.Context, collection string) ([]Record, error) {
	query := `
	SELECT id, sort_key, sort_seq, body FROM records
	WHERE collection = ?
	ORDER BY sort_key ASC, sort_seq ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var body string
		if err := rows.Scan(&rec.ID, &rec.SortKey, &rec.SortSeq, &body); err != nil {
			return nil, err
		}
		rec.Body = []byte(body)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Update replaces the record with the given id, or returns ErrNotFound.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, rec Record) error {
	query := `UPDATE records SET sort_key = ?, sort_seq = ?, body = ? WHERE collection = ? AND id = ?`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, rec.SortKey, rec.SortSeq, string(rec.Body), collection, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record with the given id. Missing ids are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM records WHERE collection = ? AND id = ?`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, collection, id)
	return err
}

// Clear removes every record in the collection.
func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	return err
}

// Count returns the number of records in the collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	query := `SELECT COUNT(*) FROM records WHERE collection = ?`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return 0, err
	}
	var n int
	if err := stmt.QueryRowContext(ctx, collection).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
