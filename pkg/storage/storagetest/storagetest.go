// Package storagetest opens migrated storage for tests.
package storagetest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mpislabs/draftflow/pkg/storage"
)

// tables in delete order.
var tables = []string{
	"memory_chunks",
	"memory_sections",
	"audit_events",
	"run_outcomes",
	"runs",
	"entity_versions",
	"entities",
	"sources",
	"drafts",
	"jobs",
}

// OpenDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL and empties every
// table before and after the test; otherwise it opens a fresh, private
// in-memory SQLite database limited to one connection.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(1)

		cleanup(db)
		t.Cleanup(func() {
			cleanup(db)
			_ = sqlDB.Close()
		})
		return db
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err, "open in-memory sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err, "get underlying sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// New returns a migrated GormStorage backed by OpenDB.
func New(t testing.TB) *storage.GormStorage {
	t.Helper()
	s := storage.NewGormStorage(OpenDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func cleanup(db *gorm.DB) {
	for _, tbl := range tables {
		db.Exec("DELETE FROM " + tbl)
	}
}
