package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteBackend stores records in a single table keyed by the packed position.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		pos BLOB PRIMARY KEY,
		data BLOB NOT NULL
	) WITHOUT ROWID;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) name() string { return BackendSQLite }

func (s *sqliteBackend) get(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM chunks WHERE pos = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *sqliteBackend) put(key, val []byte) error {
	_, err := s.db.Exec(`INSERT INTO chunks (pos, data) VALUES (?, ?)
		ON CONFLICT(pos) DO UPDATE SET data = excluded.data`, key, val)
	return err
}

func (s *sqliteBackend) has(key []byte) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM chunks WHERE pos = ?`, key).Scan(&n)
	return n > 0, err
}

func (s *sqliteBackend) delete(key []byte) error {
	_, err := s.db.Exec(`DELETE FROM chunks WHERE pos = ?`, key)
	return err
}

func (s *sqliteBackend) forEach(fn func(key, val []byte) error) error {
	rows, err := s.db.Query(`SELECT pos, data FROM chunks ORDER BY pos`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, val []byte
		if err := rows.Scan(&key, &val); err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqliteBackend) purge() error {
	_, err := s.db.Exec(`DELETE FROM chunks`)
	return err
}

func (s *sqliteBackend) close() error { return s.db.Close() }
