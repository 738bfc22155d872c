// Package store persists panel options and route summaries.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/pkg/routing"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store defines the persistence interface for the panel.
type Store interface {
	// Options
	SetOption(ctx context.Context, key string, value any) error
	GetOption(ctx context.Context, key string) (any, bool, error)
	Options(ctx context.Context) (map[string]any, error)

	// Route summaries
	SaveRoute(ctx context.Context, tableID string, id model.RecordID, s routing.Summary) error
	Routes(ctx context.Context, tableID string) (map[model.RecordID]routing.Summary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured driver and runs migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		st, err = NewSQLite(dsn)
	case DriverPostgres, "pgx":
		st, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal option")
	}
	return string(b), nil
}

func decodeValue(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal option")
	}
	return v, nil
}
