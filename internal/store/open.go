package store

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Opener constructs a Store for drivers that live outside this package.
type Opener func(ctx context.Context, dsn string) (Store, error)

// Open returns the Store for driver. Postgres is supplied by the caller as
// an Opener so this package stays free of the pgx dependency.
func Open(ctx context.Context, driver, path string, postgres Opener) (Store, error) {
	switch driver {
	case "", DriverFile:
		return OpenFileStore(path)
	case DriverSQLite:
		return OpenSQLiteStore(path)
	case DriverPostgres:
		if postgres == nil {
			return nil, fmt.Errorf("store driver %q not available", driver)
		}
		return postgres(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
