package results

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrResultsNotAvailable indicates the contest has not closed yet.
var ErrResultsNotAvailable = errors.New("results: not available until the contest closes")

var errMissingDatabase = errors.New("results: database handle is required")

// AggregatorConfig describes the dependencies of the results aggregator.
type AggregatorConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Aggregator computes ranked tallies from vote records. It is a pure read and
// never mutates contest state.
type Aggregator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAggregator constructs the aggregator.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{db: cfg.Database, logger: logger}, nil
}

// RankedEntry pairs an entry with its vote count.
type RankedEntry struct {
	EntryID          int64  `gorm:"column:id"`
	Title            string `gorm:"column:title"`
	ImageRef         string `gorm:"column:image_ref"`
	CreatorID        string `gorm:"column:creator_id"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s"`
	VoteCount        int64  `gorm:"column:vote_count"`
}

// Ranking returns every entry with its vote count, ordered by votes descending
// with ties broken by earlier submission, then by entry id. Zero-vote entries
// are included. The ordering is total, so repeated calls with no intervening
// writes return an identical sequence.
func (a *Aggregator) Ranking(ctx context.Context) ([]RankedEntry, error) {
	var current contest.Contest
	if err := a.db.WithContext(ctx).First(&current, contest.SingletonID).Error; err != nil {
		return nil, err
	}
	if current.Status != contest.StatusClosed {
		return nil, ErrResultsNotAvailable
	}

	var ranking []RankedEntry
	err := a.db.WithContext(ctx).
		Table("contest_entries AS e").
		Select("e.id, e.title, e.image_ref, e.creator_id, e.created_at_s, COUNT(v.id) AS vote_count").
		Joins("LEFT JOIN contest_votes v ON v.entry_id = e.id").
		Where("e.contest_id = ?", contest.SingletonID).
		Group("e.id").
		Order("vote_count DESC, e.created_at_s ASC, e.id ASC").
		Scan(&ranking).Error
	if err != nil {
		a.logger.Error("ranking query failed", zap.Error(err))
		return nil, err
	}
	return ranking, nil
}

// TopThree returns the leading prefix of a ranking.
func TopThree(ranking []RankedEntry) []RankedEntry {
	if len(ranking) <= 3 {
		return ranking
	}
	return ranking[:3]
}
