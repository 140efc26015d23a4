package contest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates contest phases.
type Status string

const (
	// StatusSubmission accepts new entries.
	StatusSubmission Status = "submission"
	// StatusVoting accepts votes inside the voting window.
	StatusVoting Status = "voting"
	// StatusClosed accepts neither; results become available.
	StatusClosed Status = "closed"
)

// SingletonID pins the one contest row each deployment owns.
const SingletonID uint = 1

const (
	maxIdentifierLength = 190
	defaultEntryTitle   = "Untitled"
)

var (
	// ErrWrongPhase indicates the operation is not legal in the current phase.
	ErrWrongPhase = errors.New("contest: wrong phase")
	// ErrCapacityReached indicates the entry limit has been hit.
	ErrCapacityReached = errors.New("contest: entry capacity reached")
	// ErrDuplicateSubmission indicates the voter already owns an entry.
	ErrDuplicateSubmission = errors.New("contest: voter already submitted an entry")
	// ErrDuplicateVote indicates the voter already voted for this entry.
	ErrDuplicateVote = errors.New("contest: duplicate vote")
	// ErrVoteLimitReached indicates the voter used up the per-window vote cap.
	ErrVoteLimitReached = errors.New("contest: vote limit reached")
	// ErrSelfVoteForbidden indicates a voter tried to vote for their own entry.
	ErrSelfVoteForbidden = errors.New("contest: voting for own entry forbidden")
	// ErrEntryNotFound indicates the referenced entry does not exist.
	ErrEntryNotFound = errors.New("contest: entry not found")
	// ErrInvalidImage indicates a missing or unusable image reference.
	ErrInvalidImage = errors.New("contest: image reference required")
	// ErrInvalidPhaseTransition indicates a transition not legal from the current phase.
	ErrInvalidPhaseTransition = errors.New("contest: invalid phase transition")
	// ErrInvalidVoterID indicates that a voter identifier is empty or exceeds storage bounds.
	ErrInvalidVoterID = errors.New("contest: invalid voter id")
)

// VoterID represents a validated opaque voter identifier.
type VoterID string

// NewVoterID validates raw input and returns a VoterID.
func NewVoterID(rawInput string) (VoterID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVoterID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidVoterID, maxIdentifierLength)
	}
	return VoterID(trimmed), nil
}

// String returns the underlying string identifier.
func (id VoterID) String() string {
	return string(id)
}

// VoteWindow selects the span over which a voter's vote usage is capped.
type VoteWindow string

const (
	// VoteWindowDaily caps votes per calendar day in the contest timezone.
	VoteWindowDaily VoteWindow = "daily"
	// VoteWindowContest caps votes over the whole contest lifetime.
	VoteWindowContest VoteWindow = "contest"
)

// ParseVoteWindow validates a configured vote window policy.
func ParseVoteWindow(value string) (VoteWindow, error) {
	switch VoteWindow(strings.ToLower(strings.TrimSpace(value))) {
	case VoteWindowDaily:
		return VoteWindowDaily, nil
	case VoteWindowContest:
		return VoteWindowContest, nil
	default:
		return "", fmt.Errorf("contest: unknown vote window %q", value)
	}
}

// Contest models the singleton contest row.
type Contest struct {
	ID                    uint   `gorm:"column:id;primaryKey"`
	Title                 string `gorm:"column:title;size:190;not null"`
	Status                Status `gorm:"column:status;size:32;not null"`
	MaxEntries            *int   `gorm:"column:max_entries"`
	VotesPerVoter         int    `gorm:"column:votes_per_voter;not null"`
	VotingOpenedAtSeconds *int64 `gorm:"column:voting_opened_at_s"`
	VotingEndsAtSeconds   *int64 `gorm:"column:voting_ends_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Contest) TableName() string {
	return "contest"
}

// VotingWindow returns the half-open voting interval when both bounds are set.
func (c Contest) VotingWindow() (time.Time, time.Time, bool) {
	if c.VotingOpenedAtSeconds == nil || c.VotingEndsAtSeconds == nil {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(*c.VotingOpenedAtSeconds, 0), time.Unix(*c.VotingEndsAtSeconds, 0), true
}

// Entry models one contest submission.
type Entry struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ContestID        uint   `gorm:"column:contest_id;not null;uniqueIndex:idx_entries_contest_creator,priority:1"`
	Title            string `gorm:"column:title;size:190;not null"`
	ImageRef         string `gorm:"column:image_ref;size:512;not null"`
	CreatorID        string `gorm:"column:creator_id;size:190;not null;uniqueIndex:idx_entries_contest_creator,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "contest_entries"
}

// Vote models one ballot cast by a voter for one entry.
type Vote struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	EntryID          int64  `gorm:"column:entry_id;not null;uniqueIndex:idx_votes_entry_voter,priority:1"`
	VoterID          string `gorm:"column:voter_id;size:190;not null;uniqueIndex:idx_votes_entry_voter,priority:2;index:idx_votes_voter_time,priority:1"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_votes_voter_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "contest_votes"
}

// Defaults captures the contest row values restored on first boot and reset.
type Defaults struct {
	Title         string
	MaxEntries    *int
	VotesPerVoter int
}
