package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/storage"
	"go.uber.org/zap"
)

var (
	errMissingContestService = errors.New("admin: contest service is required")
	errMissingStorage        = errors.New("admin: storage is required")
)

// ServiceConfig describes the dependencies of the admin controller.
type ServiceConfig struct {
	Contest *contest.Service
	Storage storage.Store
	Logger  *zap.Logger
}

// Service exposes the privileged contest operations. Deletions remove
// database rows first and release stored images afterwards; a failed image
// release is reported as a warning, never rolled back.
type Service struct {
	contest *contest.Service
	storage storage.Store
	logger  *zap.Logger
}

// NewService constructs the admin controller.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Contest == nil {
		return nil, errMissingContestService
	}
	if cfg.Storage == nil {
		return nil, errMissingStorage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{contest: cfg.Contest, storage: cfg.Storage, logger: logger}, nil
}

// ForceStartVoting opens the voting window from the submission phase.
func (s *Service) ForceStartVoting(ctx context.Context) error {
	return s.contest.StartVoting(ctx)
}

// ForceClose closes the contest regardless of the current phase.
func (s *Service) ForceClose(ctx context.Context) error {
	return s.contest.Close(ctx)
}

// Status returns the contest row with entry and vote totals.
func (s *Service) Status(ctx context.Context) (contest.Stats, error) {
	if err := s.contest.Tick(ctx); err != nil {
		return contest.Stats{}, err
	}
	return s.contest.Stats(ctx)
}

// CleanupReport summarizes a destructive admin operation. StorageWarnings
// lists images that could not be released; the corresponding rows are still
// gone.
type CleanupReport struct {
	Deleted         int
	StorageWarnings []string
}

// DeleteEntry removes one entry with its votes and releases its image.
func (s *Service) DeleteEntry(ctx context.Context, entryID int64) (CleanupReport, error) {
	entry, err := s.contest.Entry(ctx, entryID)
	if err != nil {
		return CleanupReport{}, err
	}
	if err := s.contest.DeleteEntry(ctx, entryID); err != nil {
		return CleanupReport{}, err
	}
	report := CleanupReport{Deleted: 1}
	s.releaseImage(ctx, &report, entry)
	s.logger.Info("entry deleted", zap.Int64("entry_id", entryID))
	return report, nil
}

// DeleteAllEntries removes every entry with its votes and releases the images.
func (s *Service) DeleteAllEntries(ctx context.Context) (CleanupReport, error) {
	entries, err := s.contest.Entries(ctx)
	if err != nil {
		return CleanupReport{}, err
	}
	if err := s.contest.DeleteAllEntries(ctx); err != nil {
		return CleanupReport{}, err
	}
	report := CleanupReport{Deleted: len(entries)}
	for _, entry := range entries {
		s.releaseImage(ctx, &report, entry)
	}
	s.logger.Info("all entries deleted", zap.Int("count", len(entries)))
	return report, nil
}

// ResetContest releases all stored images, deletes votes then entries, and
// restores the contest to the submission phase with its defaults.
func (s *Service) ResetContest(ctx context.Context) (CleanupReport, error) {
	entries, err := s.contest.Entries(ctx)
	if err != nil {
		return CleanupReport{}, err
	}
	if err := s.contest.Reset(ctx); err != nil {
		return CleanupReport{}, err
	}
	report := CleanupReport{Deleted: len(entries)}
	for _, entry := range entries {
		s.releaseImage(ctx, &report, entry)
	}
	s.logger.Info("contest reset by admin", zap.Int("entries_removed", len(entries)))
	return report, nil
}

func (s *Service) releaseImage(ctx context.Context, report *CleanupReport, entry contest.Entry) {
	if err := s.storage.Delete(ctx, entry.ImageRef); err != nil {
		s.logger.Warn("stored image release failed",
			zap.Int64("entry_id", entry.ID),
			zap.String("image_ref", entry.ImageRef),
			zap.Error(err))
		report.StorageWarnings = append(report.StorageWarnings,
			fmt.Sprintf("entry %d: image release failed: %v", entry.ID, err))
	}
}
