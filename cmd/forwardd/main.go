package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mkosawa/mailforward/internal/config"
	"github.com/mkosawa/mailforward/internal/database"
	"github.com/mkosawa/mailforward/internal/notify"
	"github.com/mkosawa/mailforward/internal/server"
	"github.com/mkosawa/mailforward/internal/task"
	"github.com/mkosawa/mailforward/internal/vault"
	"github.com/mkosawa/mailforward/internal/verify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mail forwarder")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// A stale run flag from a crashed process would block every future run
	if err := db.ReleaseRun(ctx); err != nil {
		logger.Error("failed to reset run state", "error", err)
		os.Exit(1)
	}

	// Create components
	creds, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to create credential vault", "error", err)
		os.Exit(1)
	}
	tokens, err := vault.New(cfg.TokenKey)
	if err != nil {
		logger.Error("failed to create token vault", "error", err)
		os.Exit(1)
	}

	var operator notify.OperatorSink = notify.NopSink{}
	if cfg.TelegramEnabled() {
		sink, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramBroadcastTopic, logger)
		if err != nil {
			logger.Error("failed to create telegram sink", "error", err)
			os.Exit(1)
		}
		operator = sink
		logger.Info("telegram operator notifications enabled", "chat_id", cfg.TelegramChatID)
	}

	mailer := notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, logger)

	runner := task.NewRunner(db, creds, nil, operator, mailer, task.Options{
		RetryCount:  cfg.RetryCount,
		HistoryKeep: cfg.HistoryKeep,
		DialTimeout: cfg.IMAPDialTimeout,
		OpTimeout:   cfg.MailboxOpTimeout,
		InWindow:    cfg.InOperatingWindow,
	}, logger)

	verifier := verify.NewService(db, tokens, mailer, cfg.VerifyTokenTTL, cfg.ConfirmBaseURL, logger)

	srv := server.New(runner, verifier, db, cfg.TaskAuthKey, logger)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Listen(cfg.HTTPAddr); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")
		cancel()
	}()

	// Run the batch on every tick until shutdown
	logger.Info("scheduler running", "interval", cfg.RunInterval)
	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	runBatch(ctx, runner, logger)
	for {
		select {
		case <-ctx.Done():
			if err := srv.Shutdown(); err != nil {
				logger.Error("failed to shut down http server", "error", err)
			}
			logger.Info("mail forwarder stopped")
			return
		case <-ticker.C:
			runBatch(ctx, runner, logger)
		}
	}
}

func runBatch(ctx context.Context, runner *task.Runner, logger *slog.Logger) {
	err := runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, task.ErrOutsideWindow):
		logger.Info("run skipped, outside operating window")
	case errors.Is(err, database.ErrBusy):
		logger.Warn("run skipped, previous run still in progress")
	default:
		logger.Error("run failed", "error", err)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
