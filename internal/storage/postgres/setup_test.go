package postgres

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/SNU-SE/analysisq/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// SetupTestDB opens a fresh in-memory SQLite database. The shared-cache
// DSN plus a single connection keeps every goroutine on one database, so
// the guarded-update tests exercise real contention.
func SetupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Disable logs during tests
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.AnalysisJob{})
	require.NoError(t, err)

	t.Cleanup(func() { sqlDB.Close() })

	return db
}
