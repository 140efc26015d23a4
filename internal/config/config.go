package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"github.com/spf13/viper"
)

const (
	envPrefix                  = "RUNWAY"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "runway.db"
	defaultLogLevel            = "info"
	defaultContestTitle        = "Outfit Contest"
	defaultContestTimezone     = "Asia/Seoul"
	defaultVotesPerVoter       = 2
	defaultVotingPeriodDays    = 5
	defaultVoteWindow          = "daily"
	defaultStorageDirectory    = "uploads"
	defaultStorageBaseURL      = "/uploads"
	defaultMaxUploadBytes      = 8 << 20
	defaultAdminSessionTTLMins = 720
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	AdminKey           string
	AdminSigningSecret string
	AdminSessionTTL    time.Duration
	ContestTitle       string
	ContestTimezone    string
	MaxEntries         int
	VotesPerVoter      int
	VotingPeriod       time.Duration
	VoteWindow         contest.VoteWindow
	StorageDirectory   string
	StorageBaseURL     string
	MaxUploadBytes     int64
}

// MaxEntriesLimit returns the entry capacity, nil meaning unbounded.
func (c AppConfig) MaxEntriesLimit() *int {
	if c.MaxEntries <= 0 {
		return nil
	}
	limit := c.MaxEntries
	return &limit
}

// ContestDefaults derives the seed values for the singleton contest row.
func (c AppConfig) ContestDefaults() contest.Defaults {
	return contest.Defaults{
		Title:         c.ContestTitle,
		MaxEntries:    c.MaxEntriesLimit(),
		VotesPerVoter: c.VotesPerVoter,
	}
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("admin.session_ttl_minutes", defaultAdminSessionTTLMins)
	configViper.SetDefault("contest.title", defaultContestTitle)
	configViper.SetDefault("contest.timezone", defaultContestTimezone)
	configViper.SetDefault("contest.max_entries", 0)
	configViper.SetDefault("contest.votes_per_voter", defaultVotesPerVoter)
	configViper.SetDefault("contest.voting_period_days", defaultVotingPeriodDays)
	configViper.SetDefault("contest.vote_window", defaultVoteWindow)
	configViper.SetDefault("storage.directory", defaultStorageDirectory)
	configViper.SetDefault("storage.base_url", defaultStorageBaseURL)
	configViper.SetDefault("upload.max_bytes", defaultMaxUploadBytes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	voteWindow, err := contest.ParseVoteWindow(configViper.GetString("contest.vote_window"))
	if err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		AdminKey:           configViper.GetString("admin.key"),
		AdminSigningSecret: configViper.GetString("admin.signing_secret"),
		AdminSessionTTL:    time.Duration(configViper.GetInt("admin.session_ttl_minutes")) * time.Minute,
		ContestTitle:       configViper.GetString("contest.title"),
		ContestTimezone:    configViper.GetString("contest.timezone"),
		MaxEntries:         configViper.GetInt("contest.max_entries"),
		VotesPerVoter:      configViper.GetInt("contest.votes_per_voter"),
		VotingPeriod:       time.Duration(configViper.GetInt("contest.voting_period_days")) * 24 * time.Hour,
		VoteWindow:         voteWindow,
		StorageDirectory:   configViper.GetString("storage.directory"),
		StorageBaseURL:     configViper.GetString("storage.base_url"),
		MaxUploadBytes:     configViper.GetInt64("upload.max_bytes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AdminKey) == "" {
		return fmt.Errorf("admin.key is required")
	}
	if strings.TrimSpace(c.AdminSigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.VotesPerVoter <= 0 {
		return fmt.Errorf("contest.votes_per_voter must be positive")
	}
	if c.VotingPeriod <= 0 {
		return fmt.Errorf("contest.voting_period_days must be positive")
	}
	if _, err := time.LoadLocation(c.ContestTimezone); err != nil {
		return fmt.Errorf("contest.timezone is invalid: %w", err)
	}
	if strings.TrimSpace(c.StorageDirectory) == "" {
		return fmt.Errorf("storage.directory is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}
