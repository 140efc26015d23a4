package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillEntryTitles = "2026-07-21_backfill_entry_titles"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillEntryTitles, apply: backfillEntryTitles},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillEntryTitles repairs rows persisted before empty titles were
// defaulted at submission time.
func backfillEntryTitles(db *gorm.DB) error {
	return db.Model(&contest.Entry{}).
		Where("title = ''").
		Update("title", "Untitled").Error
}
