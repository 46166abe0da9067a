// Package storetest opens throwaway in-memory stores for tests.
package storetest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pathakanu/pillMemo/internal/database"
	"github.com/pathakanu/pillMemo/internal/store"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated store backed by a private in-memory SQLite database.
func New(tb testing.TB) (*store.Gorm, *gorm.DB) {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := database.Open(sqlite.Open(dsn), zerolog.Nop())
	if err != nil {
		tb.Fatalf("open sqlite memory: %v", err)
	}
	tb.Cleanup(func() { _ = database.Close(db) })

	return store.NewGorm(db), db
}
