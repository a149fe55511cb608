package repository

import (
	"context"
	"fmt"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open returns a Store for driver. dsn is a connection string for postgres
// and a file path for sqlite.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case DriverPostgres:
		return OpenPostgres(ctx, dsn, opts...)
	case DriverSQLite:
		return OpenSQLite(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
