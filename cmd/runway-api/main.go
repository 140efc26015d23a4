package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/runway/backend/internal/admin"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/config"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/contest"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/database"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/results"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/server"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/storage"
	"github.com/MarcoPoloResearchLab/runway/backend/internal/voter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "runway-api",
		Short: "Runway outfit contest backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("contest-title", defaults.GetString("contest.title"), "Contest title seeded on first start")
	cmd.PersistentFlags().String("contest-timezone", defaults.GetString("contest.timezone"), "IANA timezone for vote windows")
	cmd.PersistentFlags().Int("max-entries", defaults.GetInt("contest.max_entries"), "Entry capacity, 0 for unbounded")
	cmd.PersistentFlags().Int("votes-per-voter", defaults.GetInt("contest.votes_per_voter"), "Votes each voter may cast per window")
	cmd.PersistentFlags().Int("voting-period-days", defaults.GetInt("contest.voting_period_days"), "Length of the voting phase in days")
	cmd.PersistentFlags().String("vote-window", defaults.GetString("contest.vote_window"), "Vote budget window (daily or contest)")
	cmd.PersistentFlags().String("storage-dir", defaults.GetString("storage.directory"), "Directory for uploaded images")
	cmd.PersistentFlags().String("storage-base-url", defaults.GetString("storage.base_url"), "Public base URL for uploaded images")
	cmd.PersistentFlags().Int64("max-upload-bytes", defaults.GetInt64("upload.max_bytes"), "Maximum accepted upload size in bytes")
	cmd.PersistentFlags().String("admin-key", "", "Shared admin key (overrides env)")
	cmd.PersistentFlags().String("admin-signing-secret", "", "Admin session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "contest.title", "contest-title")
	bindFlag(cmd, "contest.timezone", "contest-timezone")
	bindFlag(cmd, "contest.max_entries", "max-entries")
	bindFlag(cmd, "contest.votes_per_voter", "votes-per-voter")
	bindFlag(cmd, "contest.voting_period_days", "voting-period-days")
	bindFlag(cmd, "contest.vote_window", "vote-window")
	bindFlag(cmd, "storage.directory", "storage-dir")
	bindFlag(cmd, "storage.base_url", "storage-base-url")
	bindFlag(cmd, "upload.max_bytes", "max-upload-bytes")
	bindFlag(cmd, "admin.key", "admin-key")
	bindFlag(cmd, "admin.signing_secret", "admin-signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location, err := time.LoadLocation(appConfig.ContestTimezone)
	if err != nil {
		return err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, appConfig.ContestDefaults(), logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	contestService, err := contest.NewService(contest.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		Location:     location,
		VotingPeriod: appConfig.VotingPeriod,
		VoteWindow:   appConfig.VoteWindow,
		Defaults:     appConfig.ContestDefaults(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	aggregator, err := results.NewAggregator(results.AggregatorConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	imageStore, err := storage.NewLocalStore(storage.LocalStoreConfig{
		Directory: appConfig.StorageDirectory,
		BaseURL:   appConfig.StorageBaseURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	adminService, err := admin.NewService(admin.ServiceConfig{
		Contest: contestService,
		Storage: imageStore,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	adminSessions, err := auth.NewAdminSessions(auth.AdminSessionsConfig{
		AdminKey:      appConfig.AdminKey,
		SigningSecret: []byte(appConfig.AdminSigningSecret),
		SessionTTL:    appConfig.AdminSessionTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ContestService: contestService,
		Results:        aggregator,
		AdminService:   adminService,
		AdminSessions:  adminSessions,
		VoterIdentity:  voter.NewService(nil),
		Storage:        imageStore,
		StaticUploads: server.StaticUploads{
			Route:     appConfig.StorageBaseURL,
			Directory: appConfig.StorageDirectory,
		},
		MaxUploadBytes: appConfig.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
