// Package store persists bulb identity records in SQLite. Only identity
// (id, address, name, default-group membership) is persisted; live bulb
// state stays in memory with each Light.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bulbfleet/bulbd/internal/errors"
)

// Light is one persisted bulb identity record.
type Light struct {
	ID        string
	Address   string
	Name      string
	IsDefault bool
}

// Store wraps the SQLite database holding known bulbs.
type Store struct {
	db *sql.DB
}

// Open opens the database, creating the parent directory and schema if
// needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WrapErrorf(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, errors.WrapErrorf(err, "failed to open database")
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.WrapErrorf(err, "failed to initialize schema")
	}

	return &Store{db: db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lights (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_lights_address ON lights(address);
	`)
	return errors.WrapErrorf(err, "failed to create lights table")
}

// ListKnown returns every persisted bulb identity.
func (s *Store) ListKnown(ctx context.Context) ([]Light, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, name, is_default FROM lights ORDER BY name`)
	if err != nil {
		return nil, errors.WrapErrorf(err, "failed to list lights")
	}
	defer rows.Close()

	var lights []Light
	for rows.Next() {
		var l Light
		if err := rows.Scan(&l.ID, &l.Address, &l.Name, &l.IsDefault); err != nil {
			return nil, errors.WrapErrorf(err, "failed to scan light row")
		}
		lights = append(lights, l)
	}
	return lights, rows.Err()
}

// InsertNew records a bulb seen for the first time, assigning it a fresh id.
func (s *Store) InsertNew(ctx context.Context, address, name string, isDefault bool) (Light, error) {
	l := Light{
		ID:        uuid.NewString(),
		Address:   address,
		Name:      name,
		IsDefault: isDefault,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lights (id, address, name, is_default) VALUES (?, ?, ?, ?)`,
		l.ID, l.Address, l.Name, l.IsDefault)
	if err != nil {
		return Light{}, errors.WrapErrorf(err, "failed to insert light %s", address)
	}
	return l, nil
}

// Upsert writes a bulb identity record under its existing id.
func (s *Store) Upsert(ctx context.Context, l Light) error {
	if l.ID == "" {
		return errors.Validationf("light record for %s has no id", l.Address)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lights (id, address, name, is_default) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			name = excluded.name,
			is_default = excluded.is_default
	`, l.ID, l.Address, l.Name, l.IsDefault)
	return errors.WrapErrorf(err, "failed to upsert light %s", l.ID)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
