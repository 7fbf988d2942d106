package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/basecamp/internal/catalog"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsPrunesOrphanedRows(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	models := append(catalog.Models(), &migrationRecord{})
	if err := database.AutoMigrate(models...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	entity := catalog.Entity{
		EntityID:       "entity-1",
		Collection:     "adventures",
		UserID:         "user-1",
		Kind:           "fishing",
		PayloadJSON:    `{"type":"fishing"}`,
		CreatedAtNanos: 1,
		UpdatedAtNanos: 1,
	}
	if err := database.Create(&entity).Error; err != nil {
		testContext.Fatalf("failed to insert entity: %v", err)
	}
	likes := []catalog.Like{
		{EntityID: "entity-1", UserID: "user-2", CreatedAtNanos: 2},
		{EntityID: "entity-gone", UserID: "user-2", CreatedAtNanos: 2},
	}
	if err := database.Create(&likes).Error; err != nil {
		testContext.Fatalf("failed to insert likes: %v", err)
	}
	orphan := catalog.Comment{CommentID: "comment-1", EntityID: "entity-gone", UserID: "user-2", Text: "hi", CreatedAtNanos: 3}
	if err := database.Create(&orphan).Error; err != nil {
		testContext.Fatalf("failed to insert comment: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var remainingLikes []catalog.Like
	if err := database.Find(&remainingLikes).Error; err != nil {
		testContext.Fatalf("failed to reload likes: %v", err)
	}
	if len(remainingLikes) != 1 || remainingLikes[0].EntityID != "entity-1" {
		testContext.Fatalf("expected only the attached like to remain, got %+v", remainingLikes)
	}
	var commentCount int64
	if err := database.Model(&catalog.Comment{}).Count(&commentCount).Error; err != nil {
		testContext.Fatalf("failed to count comments: %v", err)
	}
	if commentCount != 0 {
		testContext.Fatalf("expected orphaned comment to be pruned, got %d", commentCount)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrations[0].name).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteMigratesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "basecamp.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"entities", "entity_likes", "entity_comments", "uploaded_images", "user_profiles", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected empty path to be rejected")
	}
}
