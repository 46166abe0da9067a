package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pathakanu/pillMemo/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func memoryDSN(t *testing.T) string {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
}

func TestOpenMigratesSchema(t *testing.T) {
	db, err := Open(sqlite.Open(memoryDSN(t)), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	assert.True(t, db.Migrator().HasTable(&model.Reminder{}))
	assert.True(t, db.Migrator().HasTable(&model.HistoryEntry{}))
	assert.NoError(t, Ping(context.Background(), db))
}

func TestQueryLoggerSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	db, err := Open(sqlite.Open(memoryDSN(t)), zerolog.New(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	buf.Reset()

	var r model.Reminder
	err = db.First(&r, 42).Error
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Empty(t, buf.String())

	err = db.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "no_such_table")
}

func TestQueryLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newQueryLogger(zerolog.New(&buf))
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), sql, nil)
	l.Info(ctx, "hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Empty(t, buf.String())
}
