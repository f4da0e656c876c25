// Package store persists stdlib and gem definition sets in SQLite, so a
// server restart reloads them from disk instead of re-parsing an entire
// Ruby installation. Project files are never cached here (they change
// too often for a cache to pay off); only the stdlib stubs and gem
// sources selected by the coordinator's require scan.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CurrentSchemaVersion bumps whenever the definitions table shape
// changes; a mismatched existing database is discarded and rebuilt.
const CurrentSchemaVersion = 1

// DefRecord is one cached definition, flat enough to round-trip through
// a row without carrying the full Entry graph.
type DefRecord struct {
	FQN        string
	FQNKind    int
	EntryKind  int
	URI        string
	StartLine  int
	StartCol   int
	EndLine    int
	EndCol     int
	Owner      string
	MethodKind int
	Visibility int
}

// Store is the SQLite-backed definitions cache.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the cache database at path, applying WAL mode
// and the schema. A schema-version mismatch resets the database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// WAL must be set via PRAGMA statements; DSN parameters are driver
	// specific and the pure-Go driver ignores most of them.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		// Fresh database.
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case stored != fmt.Sprint(CurrentSchemaVersion):
		for _, drop := range []string{
			`DROP TABLE IF EXISTS definitions`,
			`DROP TABLE IF EXISTS def_sets`,
		} {
			if _, dropErr := s.db.Exec(drop); dropErr != nil {
				return fmt.Errorf("reset stale schema: %w", dropErr)
			}
		}
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS def_sets (
		set_key    TEXT PRIMARY KEY,
		indexed_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("create def_sets table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS definitions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		set_key     TEXT NOT NULL REFERENCES def_sets(set_key) ON DELETE CASCADE,
		fqn         TEXT NOT NULL,
		fqn_kind    INTEGER NOT NULL,
		entry_kind  INTEGER NOT NULL,
		uri         TEXT NOT NULL,
		start_line  INTEGER NOT NULL,
		start_col   INTEGER NOT NULL,
		end_line    INTEGER NOT NULL,
		end_col     INTEGER NOT NULL,
		owner       TEXT NOT NULL DEFAULT '',
		method_kind INTEGER NOT NULL DEFAULT 0,
		visibility  INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		return fmt.Errorf("create definitions table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_definitions_set
		ON definitions(set_key)`); err != nil {
		return fmt.Errorf("create definitions index: %w", err)
	}

	if _, err := s.db.Exec(`INSERT INTO meta(key, value) VALUES('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprint(CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// SaveDefinitions replaces setKey's cached records in one transaction.
func (s *Store) SaveDefinitions(ctx context.Context, setKey string, recs []DefRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM definitions WHERE set_key = ?`, setKey); err != nil {
		return fmt.Errorf("clear prior set: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO def_sets(set_key, indexed_at) VALUES(?, ?)
		ON CONFLICT(set_key) DO UPDATE SET indexed_at = excluded.indexed_at`,
		setKey, time.Now().UTC()); err != nil {
		return fmt.Errorf("record set: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO definitions
		(set_key, fqn, fqn_kind, entry_kind, uri, start_line, start_col, end_line, end_col, owner, method_kind, visibility)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			setKey, r.FQN, r.FQNKind, r.EntryKind, r.URI,
			r.StartLine, r.StartCol, r.EndLine, r.EndCol,
			r.Owner, r.MethodKind, r.Visibility); err != nil {
			return fmt.Errorf("insert definition %s: %w", r.FQN, err)
		}
	}
	return tx.Commit()
}

// LoadDefinitions returns setKey's cached records, reporting whether the
// set has ever been saved.
func (s *Store) LoadDefinitions(ctx context.Context, setKey string) ([]DefRecord, bool, error) {
	var indexedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT indexed_at FROM def_sets WHERE set_key = ?`, setKey).Scan(&indexedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read set: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT
		fqn, fqn_kind, entry_kind, uri, start_line, start_col, end_line, end_col, owner, method_kind, visibility
		FROM definitions WHERE set_key = ? ORDER BY id`, setKey)
	if err != nil {
		return nil, false, fmt.Errorf("read definitions: %w", err)
	}
	defer rows.Close()

	var recs []DefRecord
	for rows.Next() {
		var r DefRecord
		if err := rows.Scan(&r.FQN, &r.FQNKind, &r.EntryKind, &r.URI,
			&r.StartLine, &r.StartCol, &r.EndLine, &r.EndCol,
			&r.Owner, &r.MethodKind, &r.Visibility); err != nil {
			return nil, false, fmt.Errorf("scan definition: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, true, rows.Err()
}

// DeleteSet drops setKey and its records.
func (s *Store) DeleteSet(ctx context.Context, setKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE set_key = ?`, setKey); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM def_sets WHERE set_key = ?`, setKey)
	return err
}

// SetKeys lists every cached set, for the debug/stats surface.
func (s *Store) SetKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT set_key FROM def_sets ORDER BY set_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetState reads a runtime key-value entry; missing keys return "".
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetState writes a runtime key-value entry.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
