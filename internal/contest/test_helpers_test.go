package contest

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(delta time.Duration) {
	c.current = c.current.Add(delta)
}

func openTestDatabase(t *testing.T) *gorm.DB {
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
	if err := db.AutoMigrate(&Contest{}, &Entry{}, &Vote{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedContest(t *testing.T, db *gorm.DB, defaults Defaults) {
	t.Helper()
	row := Contest{
		ID:            SingletonID,
		Title:         defaults.Title,
		Status:        StatusSubmission,
		MaxEntries:    defaults.MaxEntries,
		VotesPerVoter: defaults.VotesPerVoter,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed contest: %v", err)
	}
}

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to build contest service: %v", err)
	}
	return service
}

func mustVoterID(t *testing.T, value string) VoterID {
	t.Helper()
	id, err := NewVoterID(value)
	if err != nil {
		t.Fatalf("unexpected voter id error: %v", err)
	}
	return id
}

func intPtr(value int) *int {
	return &value
}
