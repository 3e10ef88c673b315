package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"winequiz/auth"
	"winequiz/billing"
	"winequiz/config"
	"winequiz/content"
	"winequiz/game"
	httpserver "winequiz/http"
	"winequiz/ocr"
	"winequiz/points"
	"winequiz/quiz"
	"winequiz/store"
	"winequiz/ws"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "winequiz",
		Short:         "Wine education game backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd())
	return root
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level string) *slog.Logger {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
	slog.SetDefault(logger)
	return logger
}

// setup loads config, builds the logger and opens the store, which also
// applies the schema.
func setup() (*config.Config, *slog.Logger, *store.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, logger, db, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("schema applied", "db", cfg.DBPath)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a content bundle (vocab, quizzes, swirdle, guess what, badges)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open bundle: %w", err)
			}
			defer f.Close()

			bundle, err := content.Decode(f)
			if err != nil {
				return err
			}
			summary, err := content.Load(cmd.Context(), db, bundle)
			if err != nil {
				return err
			}
			logger.Info("content loaded",
				"file", file,
				"vocab", summary.Vocab,
				"trial_quizzes", summary.TrialQuizzes,
				"swirdle", summary.Swirdle,
				"guess_what", summary.GuessWhat,
				"badges", summary.Badges,
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the content bundle JSON")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			return serve(cfg, logger, db)
		},
	}
}

func serve(cfg *config.Config, logger *slog.Logger, db *store.SQLiteStore) error {
	for _, name := range cfg.GeneratedSecrets {
		logger.Warn("secret not configured, generated a random one for this run", "env", name)
	}
	if cfg.VisionAPIKey == "" {
		logger.Warn("VISION_API_KEY not set, label reading is disabled")
	}
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, billing is disabled")
	}

	// Realtime
	sessions := ws.NewManager(db, logger)
	users := ws.NewUserHub(logger)

	// Services
	authService := auth.NewService(db, auth.NewTokenIssuer(cfg.JWTSecret))
	pointsService := points.NewService(db, users, logger)
	server := httpserver.NewServer(httpserver.Deps{
		Auth:           authService,
		Guest:          auth.NewGuestCookie(cfg.GuestHashKey, cfg.GuestBlockKey),
		Lobby:          game.NewLobby(db, sessions, logger),
		Engine:         game.NewEngine(db, sessions, logger),
		Points:         pointsService,
		Quiz:           quiz.NewService(db, pointsService, cfg.GuestPointsCap, logger),
		Labels:         ocr.NewReader(ocr.NewVisionClient(cfg.VisionEndpoint, cfg.VisionAPIKey, logger), cfg.OCRMaxEdge, logger),
		Billing:        billing.NewService(db, billing.NewStripeCustomers(cfg.StripeSecretKey), logger),
		Sessions:       sessions,
		Users:          users,
		Store:          db,
		Logger:         logger,
		AnonKey:        cfg.AnonKey,
		ServiceRoleKey: cfg.ServiceRoleKey,
		TrialLength:    cfg.TrialLength,
	})
	defer server.Close()
	srv := server.GetHTTPServer(cfg.ServerPort)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ServerPort, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	sessions.Close()

	logger.Info("server stopped")
	return nil
}
