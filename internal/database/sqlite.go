package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection, performs schema migrations, and
// seeds the singleton contest row when absent.
func OpenSQLite(path string, seed contest.Defaults, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&contest.Contest{}, &contest.Entry{}, &contest.Vote{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := ensureContestSingleton(db, seed); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func ensureContestSingleton(db *gorm.DB, seed contest.Defaults) error {
	var count int64
	if err := db.Model(&contest.Contest{}).Where("id = ?", contest.SingletonID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&contest.Contest{
		ID:            contest.SingletonID,
		Title:         seed.Title,
		Status:        contest.StatusSubmission,
		MaxEntries:    seed.MaxEntries,
		VotesPerVoter: seed.VotesPerVoter,
	}).Error
}
