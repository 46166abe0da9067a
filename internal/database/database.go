package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/pathakanu/pillMemo/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New creates a GORM database connection.
// When databaseURL is provided PostgreSQL is used, otherwise SQLite at sqlitePath.
func New(databaseURL, sqlitePath string, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(sqlitePath)
	}
	return Open(dialector, log)
}

// Open connects through the given dialector and migrates the schema.
func Open(dialector gorm.Dialector, log zerolog.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: newQueryLogger(log),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logBackend(db, log)
	return db, nil
}

// Migrate creates or updates the reminder and history tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Reminder{}, &model.HistoryEntry{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Ping checks that the underlying connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func logBackend(db *gorm.DB, log zerolog.Logger) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		log.Info().Msg("database: connected to PostgreSQL")
	case "sqlite":
		log.Info().Msg("database: using SQLite")
	default:
		log.Info().Str("dialector", dialector).Msg("database: connected")
	}
}
