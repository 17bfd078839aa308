package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dyluth/rota/pkg/booking"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS bookings (
	date   TEXT NOT NULL PRIMARY KEY,
	person TEXT NOT NULL
)`

// SQLiteStore keeps one row per booking in a bookings table. Save replaces
// every row inside a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the table exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrUnavailable, path, err)
	}
	// One writer at a time; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create bookings table: %v", ErrUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load reads every row. An empty table yields an empty Map.
func (s *SQLiteStore) Load(ctx context.Context) (booking.Map, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, person FROM bookings`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query bookings: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	m := booking.Map{}
	for rows.Next() {
		var date, person string
		if err := rows.Scan(&date, &person); err != nil {
			return nil, fmt.Errorf("%w: failed to scan booking: %v", ErrMalformed, err)
		}
		m[date] = person
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read bookings: %v", ErrUnavailable, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return m, nil
}

// Save replaces the table contents with m in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, m booking.Map) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings`); err != nil {
		return fmt.Errorf("%w: failed to clear bookings: %v", ErrUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bookings (date, person) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare insert: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	for _, date := range m.Dates() {
		if _, err := stmt.ExecContext(ctx, date, m[date]); err != nil {
			return fmt.Errorf("%w: failed to insert booking %s: %v", ErrUnavailable, date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit bookings: %v", ErrUnavailable, err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
