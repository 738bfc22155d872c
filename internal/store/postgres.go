package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/routemap/internal/db"
	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/pkg/routing"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	optionUpsert = db.UpsertConfig{
		Table:        "panel_options",
		Columns:      []string{"key", "value", "updated_at"},
		ConflictKeys: []string{"key"},
	}
	routeUpsert = db.UpsertConfig{
		Table:        "route_summaries",
		Columns:      []string{"table_id", "record_id", "distance_km", "minutes", "updated_at"},
		ConflictKeys: []string{"table_id", "record_id"},
	}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS panel_options (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS route_summaries (
	table_id    TEXT NOT NULL,
	record_id   BIGINT NOT NULL,
	distance_km DOUBLE PRECISION NOT NULL,
	minutes     DOUBLE PRECISION NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (table_id, record_id)
);
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SetOption(ctx context.Context, key string, value any) error {
	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	return eris.Wrapf(db.Upsert(ctx, s.pool, optionUpsert, key, enc, time.Now().UTC()), "postgres: set option %s", key)
}

func (s *PostgresStore) GetOption(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT value::text FROM panel_options WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: get option %s", key)
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *PostgresStore) Options(ctx context.Context) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value::text FROM panel_options`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list options")
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan option")
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate options")
}

func (s *PostgresStore) SaveRoute(ctx context.Context, tableID string, id model.RecordID, r routing.Summary) error {
	err := db.Upsert(ctx, s.pool, routeUpsert, tableID, int64(id), r.DistanceKm, r.Minutes, time.Now().UTC())
	return eris.Wrapf(err, "postgres: save route %s/%d", tableID, id)
}

func (s *PostgresStore) Routes(ctx context.Context, tableID string) (map[model.RecordID]routing.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_id, distance_km, minutes FROM route_summaries WHERE table_id = $1`, tableID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list routes %s", tableID)
	}
	defer rows.Close()

	out := make(map[model.RecordID]routing.Summary)
	for rows.Next() {
		var id int64
		var r routing.Summary
		if err := rows.Scan(&id, &r.DistanceKm, &r.Minutes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan route")
		}
		out[model.RecordID(id)] = r
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate routes")
}
