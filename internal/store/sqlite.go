package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/pkg/routing"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS options (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS routes (
	table_id    TEXT NOT NULL,
	record_id   INTEGER NOT NULL,
	distance_km REAL NOT NULL,
	minutes     REAL NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (table_id, record_id)
);
`

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SetOption(ctx context.Context, key string, value any) error {
	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO options (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, enc, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set option %s", key)
}

func (s *SQLiteStore) GetOption(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: get option %s", key)
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) Options(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM options`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list options")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan option")
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate options")
}

func (s *SQLiteStore) SaveRoute(ctx context.Context, tableID string, id model.RecordID, r routing.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (table_id, record_id, distance_km, minutes, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (table_id, record_id) DO UPDATE SET
		   distance_km = excluded.distance_km, minutes = excluded.minutes, updated_at = excluded.updated_at`,
		tableID, int64(id), r.DistanceKm, r.Minutes, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save route %s/%d", tableID, id)
}

func (s *SQLiteStore) Routes(ctx context.Context, tableID string) (map[model.RecordID]routing.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, distance_km, minutes FROM routes WHERE table_id = ?`, tableID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list routes %s", tableID)
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[model.RecordID]routing.Summary)
	for rows.Next() {
		var id int64
		var r routing.Summary
		if err := rows.Scan(&id, &r.DistanceKm, &r.Minutes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan route")
		}
		out[model.RecordID(id)] = r
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate routes")
}
