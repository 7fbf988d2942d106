package database

import (
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/catalog"
	"github.com/MarcoPoloResearchLab/basecamp/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const memoryPath = ":memory:"

var errMissingPath = errors.New("database path is required")

// OpenSQLite opens the development database at path, brings the schema up to
// date and runs pending data migrations. ":memory:" yields a throwaway database.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errMissingPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dataSourceName(path)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection keeps the in-memory
	// database alive and serializes writes.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	schema := append(catalog.Models(), &users.Profile{}, &migrationRecord{})
	if err := db.AutoMigrate(schema...); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database ready", zap.String("path", path), zap.Int("tables", len(schema)))
	return db, nil
}

func dataSourceName(path string) string {
	if path == memoryPath {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
