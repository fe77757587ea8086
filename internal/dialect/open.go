package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const defaultBusyTimeout = "5000" // 5 seconds

// OpenSQLite opens a database file through the dialect's driver.
//
// Read-only handles refuse writes at the connection level. Writable handles
// are limited to a single connection so that every statement issued while a
// table transaction is open must go through that transaction.
func OpenSQLite(d Dialect, path string, readOnly bool) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}

	db, err := sql.Open(d.DriverName(), d.DSN(path, readOnly))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if readOnly {
		db.SetMaxOpenConns(4)
	} else {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	return db, nil
}
