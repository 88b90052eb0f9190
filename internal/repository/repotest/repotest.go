// Package repotest opens throwaway in-memory databases for tests.
package repotest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Cheertaboi/bartering-trading-manager/internal/repository"
	"github.com/Cheertaboi/bartering-trading-manager/pkg/db"
)

// Open returns a migrated sqlite database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(db.PostgresConfig{
		Driver: db.DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := repository.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}
