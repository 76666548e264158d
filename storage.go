package draftflow

import (
	"time"

	"gorm.io/gorm/logger"

	"github.com/mpislabs/draftflow/pkg/storage"
)

// PoolOption configures the database connection pool.
type PoolOption = storage.PoolOption

// Open connects to dsn, configures the pool and returns the storage.
// PostgreSQL DSNs (postgres://, postgresql:// or key=value with host=) use
// the postgres driver; anything else is a SQLite path. Call Migrate before
// first use.
func Open(dsn string, opts ...PoolOption) (*GormStorage, error) {
	db, err := storage.Open(dsn, logger.Warn)
	if err != nil {
		return nil, err
	}
	return storage.NewGormStorageWithPool(db, opts...)
}

// MaxOpenConns sets the maximum number of open connections.
func MaxOpenConns(n int) PoolOption {
	return storage.MaxOpenConns(n)
}

// MaxIdleConns sets the maximum number of idle connections.
func MaxIdleConns(n int) PoolOption {
	return storage.MaxIdleConns(n)
}

// ConnMaxLifetime sets how long a connection may be reused.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return storage.ConnMaxLifetime(d)
}
