// Package testsupport builds throwaway databases and loggers for package
// tests.
package testsupport

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"membership-erp/config"
)

// NewDB opens a migrated SQLite database in a temp file with foreign keys
// enforced. It is closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := config.ConnectDB(config.DBConfig{
		Driver: "sqlite",
		URL:    fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path),
	})
	require.NoError(t, err)
	require.NoError(t, config.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewLogger returns a logger that writes nowhere.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
