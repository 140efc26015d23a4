package contest

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultVotingPeriod = 5 * 24 * time.Hour

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies and policy of the contest state machine.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	Location     *time.Location
	VotingPeriod time.Duration
	VoteWindow   VoteWindow
	Defaults     Defaults
	Logger       *zap.Logger
}

// Service owns phase transitions and validates every submission and vote
// against the current phase, capacity, and per-voter limits. The contest row
// is the sole point of truth; it is never cached across requests.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	location     *time.Location
	votingPeriod time.Duration
	voteWindow   VoteWindow
	defaults     Defaults
	logger       *zap.Logger
}

// NewService constructs the contest state machine with sane defaults.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	votingPeriod := cfg.VotingPeriod
	if votingPeriod <= 0 {
		votingPeriod = defaultVotingPeriod
	}
	voteWindow := cfg.VoteWindow
	if voteWindow == "" {
		voteWindow = VoteWindowDaily
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:           cfg.Database,
		clock:        clock,
		location:     location,
		votingPeriod: votingPeriod,
		voteWindow:   voteWindow,
		defaults:     cfg.Defaults,
		logger:       logger,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().In(s.location)
}

// Tick closes voting when the window has elapsed. It runs at the top of every
// phase-sensitive operation instead of a background timer. The update is
// conditional on the current status so concurrent requests cannot both apply
// the transition.
func (s *Service) Tick(ctx context.Context) error {
	var current Contest
	if err := s.db.WithContext(ctx).First(&current, SingletonID).Error; err != nil {
		return err
	}
	if current.Status != StatusVoting || current.VotingEndsAtSeconds == nil {
		return nil
	}
	if s.now().Unix() < *current.VotingEndsAtSeconds {
		return nil
	}
	result := s.db.WithContext(ctx).Model(&Contest{}).
		Where("id = ? AND status = ?", SingletonID, StatusVoting).
		Update("status", StatusClosed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.Info("voting window elapsed, contest closed",
			zap.Int64("voting_ends_at_s", *current.VotingEndsAtSeconds))
	}
	return nil
}

// Current returns the contest row as stored.
func (s *Service) Current(ctx context.Context) (Contest, error) {
	var current Contest
	if err := s.db.WithContext(ctx).First(&current, SingletonID).Error; err != nil {
		return Contest{}, err
	}
	return current, nil
}

// IndexState is the phase-dependent view served to every visitor.
type IndexState struct {
	Contest        Contest
	Entries        []Entry
	VotesUsed      int
	VotesRemaining int
}

// Snapshot applies the lazy close check and returns the current contest,
// entries newest first, and the caller's remaining votes in the active window.
func (s *Service) Snapshot(ctx context.Context, voterID VoterID) (IndexState, error) {
	if err := s.Tick(ctx); err != nil {
		return IndexState{}, err
	}
	current, err := s.Current(ctx)
	if err != nil {
		return IndexState{}, err
	}
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("contest_id = ?", SingletonID).
		Order("id DESC").
		Find(&entries).Error; err != nil {
		return IndexState{}, err
	}
	used, err := s.votesUsed(s.db.WithContext(ctx), voterID, s.now())
	if err != nil {
		return IndexState{}, err
	}
	remaining := current.VotesPerVoter - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return IndexState{
		Contest:        current,
		Entries:        entries,
		VotesUsed:      int(used),
		VotesRemaining: remaining,
	}, nil
}

// SubmitEntry registers one entry for the voter during the submission phase.
// When the accepted entry count reaches the configured capacity the contest
// transitions to voting immediately.
func (s *Service) SubmitEntry(ctx context.Context, voterID VoterID, title, imageRef string) (Entry, error) {
	if err := s.Tick(ctx); err != nil {
		return Entry{}, err
	}
	now := s.now()
	var created Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Contest
		if err := tx.First(&current, SingletonID).Error; err != nil {
			return err
		}
		if current.Status != StatusSubmission {
			return ErrWrongPhase
		}
		var entryCount int64
		if err := tx.Model(&Entry{}).Where("contest_id = ?", SingletonID).Count(&entryCount).Error; err != nil {
			return err
		}
		if current.MaxEntries != nil && entryCount >= int64(*current.MaxEntries) {
			return ErrCapacityReached
		}
		var owned int64
		if err := tx.Model(&Entry{}).
			Where("contest_id = ? AND creator_id = ?", SingletonID, voterID.String()).
			Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return ErrDuplicateSubmission
		}
		if strings.TrimSpace(imageRef) == "" {
			return ErrInvalidImage
		}
		entryTitle := strings.TrimSpace(title)
		if entryTitle == "" {
			entryTitle = defaultEntryTitle
		}
		created = Entry{
			ContestID:        SingletonID,
			Title:            entryTitle,
			ImageRef:         imageRef,
			CreatorID:        voterID.String(),
			CreatedAtSeconds: now.Unix(),
		}
		if err := tx.Create(&created).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSubmission
			}
			return err
		}
		if current.MaxEntries != nil && entryCount+1 >= int64(*current.MaxEntries) {
			// Capacity reached: flip to voting. A concurrent winner of the
			// same conditional update is not an error here.
			if err := s.openVoting(tx, now); err != nil && !errors.Is(err, ErrInvalidPhaseTransition) {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}
	s.logger.Info("entry submitted",
		zap.Int64("entry_id", created.ID),
		zap.String("creator_id", created.CreatorID))
	return created, nil
}

// CastVote records one ballot for the voter during the voting window.
func (s *Service) CastVote(ctx context.Context, voterID VoterID, entryID int64) error {
	if err := s.Tick(ctx); err != nil {
		return err
	}
	now := s.now()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Contest
		if err := tx.First(&current, SingletonID).Error; err != nil {
			return err
		}
		if current.Status != StatusVoting {
			return ErrWrongPhase
		}
		opened, ends, ok := current.VotingWindow()
		if !ok || now.Before(opened) || !now.Before(ends) {
			return ErrWrongPhase
		}
		used, err := s.votesUsed(tx, voterID, now)
		if err != nil {
			return err
		}
		if used >= int64(current.VotesPerVoter) {
			return ErrVoteLimitReached
		}
		var entry Entry
		err = tx.Where("contest_id = ? AND id = ?", SingletonID, entryID).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		if entry.CreatorID == voterID.String() {
			return ErrSelfVoteForbidden
		}
		vote := Vote{
			EntryID:          entryID,
			VoterID:          voterID.String(),
			CreatedAtSeconds: now.Unix(),
		}
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateVote
			}
			return err
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	s.logger.Info("vote recorded",
		zap.Int64("entry_id", entryID),
		zap.String("voter_id", voterID.String()))
	return nil
}

// StartVoting performs the submission-to-voting transition, stamping the
// voting window from the configured period.
func (s *Service) StartVoting(ctx context.Context) error {
	if err := s.Tick(ctx); err != nil {
		return err
	}
	if err := s.openVoting(s.db.WithContext(ctx), s.now()); err != nil {
		return err
	}
	s.logger.Info("voting started", zap.Duration("voting_period", s.votingPeriod))
	return nil
}

// Close transitions the contest to closed regardless of the current phase.
func (s *Service) Close(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&Contest{}).
		Where("id = ?", SingletonID).
		Update("status", StatusClosed).Error
	if err != nil {
		return err
	}
	s.logger.Info("contest closed")
	return nil
}

// Reset deletes all votes and entries and restores the contest row to the
// submission phase with its configured defaults. Stored-image cleanup is the
// admin controller's concern.
func (s *Service) Reset(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM contest_votes").Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM contest_entries WHERE contest_id = ?", SingletonID).Error; err != nil {
			return err
		}
		return tx.Model(&Contest{}).Where("id = ?", SingletonID).
			Updates(map[string]interface{}{
				"status":             StatusSubmission,
				"title":              s.defaults.Title,
				"max_entries":        s.defaults.MaxEntries,
				"votes_per_voter":    s.defaults.VotesPerVoter,
				"voting_opened_at_s": nil,
				"voting_ends_at_s":   nil,
			}).Error
	})
	if err != nil {
		return err
	}
	s.logger.Info("contest reset")
	return nil
}

// Entry returns a single entry or ErrEntryNotFound.
func (s *Service) Entry(ctx context.Context, entryID int64) (Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("contest_id = ? AND id = ?", SingletonID, entryID).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Entries returns every entry in the contest, newest first.
func (s *Service) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("contest_id = ?", SingletonID).
		Order("id DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteEntry removes one entry and its votes.
func (s *Service) DeleteEntry(ctx context.Context, entryID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", entryID).Delete(&Vote{}).Error; err != nil {
			return err
		}
		result := tx.Where("contest_id = ? AND id = ?", SingletonID, entryID).Delete(&Entry{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

// DeleteAllEntries removes every entry in the contest along with all votes.
func (s *Service) DeleteAllEntries(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			"DELETE FROM contest_votes WHERE entry_id IN (SELECT id FROM contest_entries WHERE contest_id = ?)",
			SingletonID).Error
		if err != nil {
			return err
		}
		return tx.Exec("DELETE FROM contest_entries WHERE contest_id = ?", SingletonID).Error
	})
}

// Stats summarizes the contest for the admin status view.
type Stats struct {
	Contest    Contest
	EntryCount int64
	VoteCount  int64
}

// Stats returns the contest row alongside entry and vote totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	current, err := s.Current(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Contest: current}
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("contest_id = ?", SingletonID).
		Count(&stats.EntryCount).Error; err != nil {
		return Stats{}, err
	}
	if err := s.db.WithContext(ctx).Model(&Vote{}).Count(&stats.VoteCount).Error; err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// openVoting applies the conditional submission-to-voting transition. Zero
// rows affected means the phase already changed under a concurrent writer.
func (s *Service) openVoting(db *gorm.DB, now time.Time) error {
	opened := now.Unix()
	ends := now.Add(s.votingPeriod).Unix()
	result := db.Model(&Contest{}).
		Where("id = ? AND status = ?", SingletonID, StatusSubmission).
		Updates(map[string]interface{}{
			"status":             StatusVoting,
			"voting_opened_at_s": opened,
			"voting_ends_at_s":   ends,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidPhaseTransition
	}
	return nil
}

// votesUsed counts the voter's accepted votes inside the active counting
// window. The daily window is bounded by calendar midnights in the contest
// timezone.
func (s *Service) votesUsed(db *gorm.DB, voterID VoterID, now time.Time) (int64, error) {
	query := db.Model(&Vote{}).Where("voter_id = ?", voterID.String())
	if s.voteWindow == VoteWindowDaily {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
		dayEnd := dayStart.AddDate(0, 0, 1)
		query = query.Where("created_at_s >= ? AND created_at_s < ?", dayStart.Unix(), dayEnd.Unix())
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
