package results

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T, status contest.Status) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&contest.Contest{}, &contest.Entry{}, &contest.Vote{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	row := contest.Contest{ID: contest.SingletonID, Title: "test", Status: status, VotesPerVoter: 2}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed contest: %v", err)
	}
	return db
}

func seedEntry(t *testing.T, db *gorm.DB, creator string, createdAt int64) contest.Entry {
	t.Helper()
	entry := contest.Entry{
		ContestID:        contest.SingletonID,
		Title:            "entry by " + creator,
		ImageRef:         "https://img.example/" + creator + ".png",
		CreatorID:        creator,
		CreatedAtSeconds: createdAt,
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
	return entry
}

func seedVote(t *testing.T, db *gorm.DB, entryID int64, voter string) {
	t.Helper()
	vote := contest.Vote{EntryID: entryID, VoterID: voter, CreatedAtSeconds: 1700000000}
	if err := db.Create(&vote).Error; err != nil {
		t.Fatalf("failed to seed vote: %v", err)
	}
}

func TestRankingRequiresClosedContest(t *testing.T) {
	db := openTestDatabase(t, contest.StatusVoting)
	aggregator, err := NewAggregator(AggregatorConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}

	if _, err := aggregator.Ranking(context.Background()); !errors.Is(err, ErrResultsNotAvailable) {
		t.Fatalf("expected ErrResultsNotAvailable, got %v", err)
	}
}

func TestRankingOrdersByVotesThenAge(t *testing.T) {
	db := openTestDatabase(t, contest.StatusClosed)
	aggregator, err := NewAggregator(AggregatorConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}

	older := seedEntry(t, db, "creator-a", 1700000100)
	newer := seedEntry(t, db, "creator-b", 1700000200)
	popular := seedEntry(t, db, "creator-c", 1700000300)
	zeroVotes := seedEntry(t, db, "creator-d", 1700000400)

	seedVote(t, db, popular.ID, "voter-1")
	seedVote(t, db, popular.ID, "voter-2")
	seedVote(t, db, older.ID, "voter-1")
	seedVote(t, db, newer.ID, "voter-2")

	ranking, err := aggregator.Ranking(context.Background())
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(ranking) != 4 {
		t.Fatalf("expected all entries in ranking, got %d", len(ranking))
	}
	if ranking[0].EntryID != popular.ID {
		t.Fatalf("expected most-voted entry first, got %d", ranking[0].EntryID)
	}
	// One vote each: the earlier submission wins the tie.
	if ranking[1].EntryID != older.ID || ranking[2].EntryID != newer.ID {
		t.Fatalf("unexpected tie break order: %d then %d", ranking[1].EntryID, ranking[2].EntryID)
	}
	if ranking[3].EntryID != zeroVotes.ID || ranking[3].VoteCount != 0 {
		t.Fatalf("expected zero-vote entry last with count 0, got %+v", ranking[3])
	}
}

func TestRankingIsIdempotent(t *testing.T) {
	db := openTestDatabase(t, contest.StatusClosed)
	aggregator, err := NewAggregator(AggregatorConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}

	first := seedEntry(t, db, "creator-a", 1700000100)
	second := seedEntry(t, db, "creator-b", 1700000100)
	seedVote(t, db, first.ID, "voter-1")
	seedVote(t, db, second.ID, "voter-2")

	initial, err := aggregator.Ranking(context.Background())
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	repeat, err := aggregator.Ranking(context.Background())
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(initial) != len(repeat) {
		t.Fatalf("ranking length changed between calls")
	}
	for i := range initial {
		if initial[i].EntryID != repeat[i].EntryID {
			t.Fatalf("ranking order changed between calls at position %d", i)
		}
	}
}

func TestTopThreeTruncates(t *testing.T) {
	ranking := []RankedEntry{{EntryID: 1}, {EntryID: 2}, {EntryID: 3}, {EntryID: 4}}
	top := TopThree(ranking)
	if len(top) != 3 || top[2].EntryID != 3 {
		t.Fatalf("unexpected top three: %+v", top)
	}
	short := []RankedEntry{{EntryID: 1}}
	if got := TopThree(short); len(got) != 1 {
		t.Fatalf("expected short ranking returned as-is, got %+v", got)
	}
}
