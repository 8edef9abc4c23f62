package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Database is the SQLite-backed station catalog.
type Database struct {
	db *sql.DB
}

var _ StationCatalog = (*Database)(nil)

// NewDatabase opens (or creates) the catalog at dbPath.
func NewDatabase(dbPath string) (*Database, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, ErrInvalidDatabasePath
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Database{db: db}, nil
}

// initDatabase creates the necessary tables
func initDatabase(db *sql.DB) error {
	createStationsTable := `
	CREATE TABLE IF NOT EXISTS stations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		label_key TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL,
		url TEXT NOT NULL,
		emoji TEXT NOT NULL,
		added_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_stations_created ON stations(created_at);
	`

	for _, query := range []string{createStationsTable, createIndexes} {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// labelKey folds a label for lookups. SQLite NOCASE only folds ASCII, and
// station names are often Cyrillic.
func labelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func findBuiltIn(label string) (Station, bool) {
	key := labelKey(label)
	for _, s := range BuiltInStations {
		if labelKey(s.Label) == key {
			return s, true
		}
	}
	return Station{}, false
}

// AddStation stores a user station. Labels are unique across built-in and
// user stations, ignoring case.
func (d *Database) AddStation(ctx context.Context, label, url, addedBy string) (Station, error) {
	label = strings.TrimSpace(label)
	url = strings.TrimSpace(url)
	if label == "" || url == "" {
		return Station{}, fmt.Errorf("%w: label and url are required", ErrInvalidStation)
	}
	if _, ok := findBuiltIn(label); ok {
		return Station{}, fmt.Errorf("%w: %s", ErrDuplicateStation, label)
	}

	st := Station{
		Label:       label,
		Description: customDescription,
		URL:         url,
		Emoji:       customEmoji,
		AddedBy:     addedBy,
		CreatedAt:   time.Now().UTC(),
	}

	res, err := d.db.ExecContext(ctx, `
	INSERT INTO stations (label, label_key, description, url, emoji, added_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, st.Label, labelKey(st.Label), st.Description, st.URL, st.Emoji, st.AddedBy, st.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return Station{}, fmt.Errorf("%w: %s", ErrDuplicateStation, label)
		}
		return Station{}, fmt.Errorf("failed to add station: %w", err)
	}

	st.ID, err = res.LastInsertId()
	if err != nil {
		return Station{}, fmt.Errorf("failed to read station id: %w", err)
	}
	return st, nil
}

// ListStations returns the built-in stations followed by user stations,
// newest first.
func (d *Database) ListStations(ctx context.Context) ([]Station, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT id, label, description, url, emoji, added_by, created_at
	FROM stations
	ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	stations := append([]Station(nil), BuiltInStations...)
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Label, &st.Description, &st.URL, &st.Emoji, &st.AddedBy, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}

// FindStation looks a station up by label, ignoring case.
func (d *Database) FindStation(ctx context.Context, label string) (Station, error) {
	if st, ok := findBuiltIn(label); ok {
		return st, nil
	}

	var st Station
	err := d.db.QueryRowContext(ctx, `
	SELECT id, label, description, url, emoji, added_by, created_at
	FROM stations
	WHERE label_key = ?
	`, labelKey(label)).Scan(&st.ID, &st.Label, &st.Description, &st.URL, &st.Emoji, &st.AddedBy, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Station{}, ErrStationNotFound
	}
	if err != nil {
		return Station{}, fmt.Errorf("failed to find station: %w", err)
	}
	return st, nil
}

// RemoveStation deletes a user station. Built-in stations cannot be removed.
func (d *Database) RemoveStation(ctx context.Context, label string) error {
	if _, ok := findBuiltIn(label); ok {
		return fmt.Errorf("%w: built-in stations cannot be removed", ErrInvalidStation)
	}

	res, err := d.db.ExecContext(ctx, `DELETE FROM stations WHERE label_key = ?`, labelKey(label))
	if err != nil {
		return fmt.Errorf("failed to remove station: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove station: %w", err)
	}
	if n == 0 {
		return ErrStationNotFound
	}
	return nil
}
