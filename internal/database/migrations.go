package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationRecord is the ledger row written once a data migration has run.
type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migration struct {
	name string
	run  func(*gorm.DB) error
}

// migrations run in order, each at most once per database.
var migrations = []migration{
	{name: "2024-05-01_prune_orphaned_likes", run: pruneOrphaned(&catalog.Like{})},
	{name: "2024-05-01_prune_orphaned_comments", run: pruneOrphaned(&catalog.Comment{})},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, pending := range migrations {
		applied, err := isApplied(db, pending.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := pending.run(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: pending.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", pending.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", pending.name))
	}
	return nil
}

func isApplied(db *gorm.DB, name string) (bool, error) {
	err := db.Where("name = ?", name).Take(&migrationRecord{}).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// pruneOrphaned removes child rows whose entity no longer exists.
func pruneOrphaned(model interface{}) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		return db.Where("entity_id NOT IN (?)", db.Model(&catalog.Entity{}).Select("entity_id")).
			Delete(model).Error
	}
}
