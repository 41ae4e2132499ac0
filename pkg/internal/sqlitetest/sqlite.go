// Package sqlitetest opens throwaway in-memory databases for tests that
// need real gorm behaviour without a postgres container.
package sqlitetest

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a private in-memory database with models migrated. The
// database lives until the test ends.
func Open(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	require := require.New(t)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	orm, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err, "open sqlite")

	d, err := orm.DB()
	require.NoError(err, "sqlite handle")
	// a single connection keeps the in-memory database alive and writes serialized
	d.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = d.Close() })

	if len(models) > 0 {
		require.NoError(orm.AutoMigrate(models...), "migrate")
	}
	return orm
}
