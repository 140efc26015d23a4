package contest

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testDefaults = Defaults{
	Title:         "Outfit Contest",
	VotesPerVoter: 2,
}

func newContestFixture(t *testing.T, defaults Defaults, cfg ServiceConfig) (*Service, *fakeClock) {
	t.Helper()
	db := openTestDatabase(t)
	seedContest(t, db, defaults)
	clock := &fakeClock{current: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	cfg.Database = db
	cfg.Clock = clock.Now
	cfg.Defaults = defaults
	return newTestService(t, cfg), clock
}

func TestSubmitEntryAutoStartsVotingAtCapacity(t *testing.T) {
	defaults := testDefaults
	defaults.MaxEntries = intPtr(2)
	service, _ := newContestFixture(t, defaults, ServiceConfig{VotingPeriod: 5 * 24 * time.Hour})
	ctx := context.Background()

	if _, err := service.SubmitEntry(ctx, mustVoterID(t, "voter-1"), "look one", "https://img.example/1.png"); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	current, err := service.Current(ctx)
	if err != nil {
		t.Fatalf("failed to load contest: %v", err)
	}
	if current.Status != StatusSubmission {
		t.Fatalf("expected submission phase after first entry, got %s", current.Status)
	}

	if _, err := service.SubmitEntry(ctx, mustVoterID(t, "voter-2"), "look two", "https://img.example/2.png"); err != nil {
		t.Fatalf("second submission failed: %v", err)
	}
	current, err = service.Current(ctx)
	if err != nil {
		t.Fatalf("failed to load contest: %v", err)
	}
	if current.Status != StatusVoting {
		t.Fatalf("expected voting phase at capacity, got %s", current.Status)
	}
	opened, ends, ok := current.VotingWindow()
	if !ok {
		t.Fatalf("expected voting window to be set")
	}
	if got := ends.Sub(opened); got != 5*24*time.Hour {
		t.Fatalf("unexpected voting window length: %s", got)
	}

	_, err = service.SubmitEntry(ctx, mustVoterID(t, "voter-3"), "late", "https://img.example/3.png")
	if !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase for late submission, got %v", err)
	}
}

func TestSubmitEntryRejectsDuplicateCreator(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	if _, err := service.SubmitEntry(ctx, mustVoterID(t, "voter-1"), "first", "https://img.example/1.png"); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	_, err := service.SubmitEntry(ctx, mustVoterID(t, "voter-1"), "second", "https://img.example/2.png")
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestSubmitEntryDefaultsEmptyTitle(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})

	entry, err := service.SubmitEntry(context.Background(), mustVoterID(t, "voter-1"), "   ", "https://img.example/1.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if entry.Title != "Untitled" {
		t.Fatalf("expected placeholder title, got %q", entry.Title)
	}
}

func TestSubmitEntryRequiresImageRef(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})

	_, err := service.SubmitEntry(context.Background(), mustVoterID(t, "voter-1"), "no image", "   ")
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestSubmitEntryReportsCapacityBeforeDuplicate(t *testing.T) {
	defaults := testDefaults
	defaults.MaxEntries = intPtr(2)
	service, _ := newContestFixture(t, defaults, ServiceConfig{})
	ctx := context.Background()

	// Fill the contest directly so the phase never auto-flips and the
	// capacity check itself is observable.
	for i, creator := range []string{"voter-1", "voter-2"} {
		entry := Entry{ContestID: SingletonID, Title: "seed", ImageRef: "https://img.example/seed.png", CreatorID: creator, CreatedAtSeconds: int64(1700000000 + i)}
		if err := service.db.Create(&entry).Error; err != nil {
			t.Fatalf("failed to seed entry: %v", err)
		}
	}

	_, err := service.SubmitEntry(ctx, mustVoterID(t, "voter-1"), "again", "https://img.example/x.png")
	if !errors.Is(err, ErrCapacityReached) {
		t.Fatalf("expected ErrCapacityReached, got %v", err)
	}
}

func TestCastVoteEnforcesLimitThenDuplicate(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	entryA, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	entryB, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-b"), "B", "https://img.example/b.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	entryC, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-c"), "C", "https://img.example/c.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	voter := mustVoterID(t, "voter-1")
	if err := service.CastVote(ctx, voter, entryA.ID); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if err := service.CastVote(ctx, voter, entryB.ID); err != nil {
		t.Fatalf("second vote failed: %v", err)
	}
	if err := service.CastVote(ctx, voter, entryC.ID); !errors.Is(err, ErrVoteLimitReached) {
		t.Fatalf("expected ErrVoteLimitReached for third vote, got %v", err)
	}
	// At the cap the limit check fires before the duplicate check.
	if err := service.CastVote(ctx, voter, entryA.ID); !errors.Is(err, ErrVoteLimitReached) {
		t.Fatalf("expected ErrVoteLimitReached when re-voting at the cap, got %v", err)
	}
}

func TestCastVoteRejectsDuplicateBelowLimit(t *testing.T) {
	defaults := testDefaults
	defaults.VotesPerVoter = 3
	service, _ := newContestFixture(t, defaults, ServiceConfig{})
	ctx := context.Background()

	entry, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	voter := mustVoterID(t, "voter-1")
	if err := service.CastVote(ctx, voter, entry.ID); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if err := service.CastVote(ctx, voter, entry.ID); !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
}

func TestCastVoteForbidsSelfVote(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	creator := mustVoterID(t, "creator-a")
	entry, err := service.SubmitEntry(ctx, creator, "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	if err := service.CastVote(ctx, creator, entry.ID); !errors.Is(err, ErrSelfVoteForbidden) {
		t.Fatalf("expected ErrSelfVoteForbidden, got %v", err)
	}
}

func TestCastVoteUnknownEntry(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	if _, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png"); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	if err := service.CastVote(ctx, mustVoterID(t, "voter-1"), 9999); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestCastVoteRequiresVotingPhase(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	entry, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.CastVote(ctx, mustVoterID(t, "voter-1"), entry.ID); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase during submission phase, got %v", err)
	}
}

func TestTickClosesElapsedVotingWindow(t *testing.T) {
	service, clock := newContestFixture(t, testDefaults, ServiceConfig{VotingPeriod: 3 * 24 * time.Hour})
	ctx := context.Background()

	entry, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	clock.Advance(3*24*time.Hour + time.Minute)

	// Any phase-sensitive operation must observe the close before acting.
	if err := service.CastVote(ctx, mustVoterID(t, "voter-1"), entry.ID); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase after window elapsed, got %v", err)
	}
	current, err := service.Current(ctx)
	if err != nil {
		t.Fatalf("failed to load contest: %v", err)
	}
	if current.Status != StatusClosed {
		t.Fatalf("expected closed contest, got %s", current.Status)
	}
}

func TestDailyVoteWindowResetsAtMidnight(t *testing.T) {
	defaults := testDefaults
	defaults.VotesPerVoter = 1
	service, clock := newContestFixture(t, defaults, ServiceConfig{
		VoteWindow:   VoteWindowDaily,
		VotingPeriod: 7 * 24 * time.Hour,
	})
	ctx := context.Background()

	entryA, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	entryB, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-b"), "B", "https://img.example/b.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	voter := mustVoterID(t, "voter-1")
	if err := service.CastVote(ctx, voter, entryA.ID); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if err := service.CastVote(ctx, voter, entryB.ID); !errors.Is(err, ErrVoteLimitReached) {
		t.Fatalf("expected ErrVoteLimitReached on the same day, got %v", err)
	}

	clock.Advance(24 * time.Hour)
	if err := service.CastVote(ctx, voter, entryB.ID); err != nil {
		t.Fatalf("expected vote to succeed on the next day, got %v", err)
	}
}

func TestContestVoteWindowNeverResets(t *testing.T) {
	defaults := testDefaults
	defaults.VotesPerVoter = 1
	service, clock := newContestFixture(t, defaults, ServiceConfig{
		VoteWindow:   VoteWindowContest,
		VotingPeriod: 7 * 24 * time.Hour,
	})
	ctx := context.Background()

	entryA, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	entryB, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-b"), "B", "https://img.example/b.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}

	voter := mustVoterID(t, "voter-1")
	if err := service.CastVote(ctx, voter, entryA.ID); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	clock.Advance(24 * time.Hour)
	if err := service.CastVote(ctx, voter, entryB.ID); !errors.Is(err, ErrVoteLimitReached) {
		t.Fatalf("expected whole-contest cap to hold across days, got %v", err)
	}
}

func TestStartVotingRequiresSubmissionPhase(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}
	if err := service.StartVoting(ctx); !errors.Is(err, ErrInvalidPhaseTransition) {
		t.Fatalf("expected ErrInvalidPhaseTransition, got %v", err)
	}
}

func TestResetRestoresSubmissionDefaults(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	entry, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}
	if err := service.CastVote(ctx, mustVoterID(t, "voter-1"), entry.ID); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	if err := service.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to load stats: %v", err)
	}
	if stats.EntryCount != 0 || stats.VoteCount != 0 {
		t.Fatalf("expected empty contest after reset, got %d entries and %d votes", stats.EntryCount, stats.VoteCount)
	}
	if stats.Contest.Status != StatusSubmission {
		t.Fatalf("expected submission phase after reset, got %s", stats.Contest.Status)
	}
	if stats.Contest.VotingOpenedAtSeconds != nil || stats.Contest.VotingEndsAtSeconds != nil {
		t.Fatalf("expected cleared voting window after reset")
	}
	if stats.Contest.VotesPerVoter != testDefaults.VotesPerVoter {
		t.Fatalf("expected default votes per voter after reset, got %d", stats.Contest.VotesPerVoter)
	}

	// Round-trip: one submission reproduces the initial submission-phase view.
	if _, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A again", "https://img.example/a2.png"); err != nil {
		t.Fatalf("submission after reset failed: %v", err)
	}
	state, err := service.Snapshot(ctx, mustVoterID(t, "viewer"))
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if state.Contest.Status != StatusSubmission || len(state.Entries) != 1 {
		t.Fatalf("unexpected post-reset view: status=%s entries=%d", state.Contest.Status, len(state.Entries))
	}
}

func TestDeleteEntryCascadesVotes(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	entry, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}
	if err := service.CastVote(ctx, mustVoterID(t, "voter-1"), entry.ID); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	if err := service.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to load stats: %v", err)
	}
	if stats.EntryCount != 0 || stats.VoteCount != 0 {
		t.Fatalf("expected cascading delete, got %d entries and %d votes", stats.EntryCount, stats.VoteCount)
	}

	if err := service.DeleteEntry(ctx, entry.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for repeated delete, got %v", err)
	}
}

func TestSnapshotReportsRemainingVotes(t *testing.T) {
	service, _ := newContestFixture(t, testDefaults, ServiceConfig{})
	ctx := context.Background()

	entry, err := service.SubmitEntry(ctx, mustVoterID(t, "creator-a"), "A", "https://img.example/a.png")
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if err := service.StartVoting(ctx); err != nil {
		t.Fatalf("failed to start voting: %v", err)
	}
	voter := mustVoterID(t, "voter-1")
	if err := service.CastVote(ctx, voter, entry.ID); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	state, err := service.Snapshot(ctx, voter)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if state.VotesUsed != 1 {
		t.Fatalf("expected one used vote, got %d", state.VotesUsed)
	}
	if state.VotesRemaining != testDefaults.VotesPerVoter-1 {
		t.Fatalf("expected %d remaining votes, got %d", testDefaults.VotesPerVoter-1, state.VotesRemaining)
	}
}
