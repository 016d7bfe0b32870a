package database

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkrishnan-dev/textjobs/internal/models"
	"github.com/jkrishnan-dev/textjobs/internal/pool"
)

// SetupTestDB opens a fresh in-memory sqlite database. The shared-cache DSN
// keeps every pooled connection pointed at the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Disable logs during tests
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Job{})
	require.NoError(t, err)

	return db
}

// SetupTestRepo builds a repository over a small handle pool.
func SetupTestRepo(t *testing.T) (*JobRepository, *gorm.DB) {
	t.Helper()

	db := SetupTestDB(t)
	p, err := pool.New(db, 2)
	require.NoError(t, err)

	return NewJobRepository(p), db
}
