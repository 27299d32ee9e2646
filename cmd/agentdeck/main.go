// Command agentdeck serves the agentdeck HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hupe1980/agentdeck"
	"github.com/hupe1980/agentdeck/api"
	"github.com/hupe1980/agentdeck/internal/config"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/store"
	"github.com/hupe1980/agentdeck/workspace"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config.load.failed", "error", err)
		os.Exit(1)
	}

	logger, sl := logging.New(cfg.Logging())
	slog.SetDefault(sl)

	if envErr != nil {
		logger.Debug("config.dotenv.missing")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server.failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	db, err := store.NewSQLite(cfg.DBPath, func(o *store.SQLiteOptions) {
		o.Logger = logging.With(logger, "component", "store")
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("store.close.failed", "error", closeErr)
		}
	}()

	if err := db.Ping(context.Background()); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	root, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return err
	}

	deck, err := agentdeck.New(func(o *agentdeck.Options) {
		o.Store = db
		o.Workspace = workspace.NewDir(root)
		o.WorkspaceRoot = root
		o.EnvAPIKey = cfg.Backend.AnthropicAPIKey
		if cfg.Backend.CredentialsPath != "" {
			o.CredentialsPath = cfg.Backend.CredentialsPath
		}
		o.ClaudeBin = cfg.Backend.ClaudeBin
		o.BackendTimeout = cfg.Backend.Timeout
		o.AckProvider = cfg.Backend.AckProvider
		o.OpenAIAPIKey = cfg.Backend.OpenAIAPIKey
		o.OpenAIModel = cfg.Backend.OpenAIModel
		o.ScheduleTick = cfg.ScheduleTick
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := deck.Start(ctx); err != nil {
		return err
	}
	defer deck.Stop()

	handler := deck.Handler(func(o *api.Options) {
		o.RelaySecret = cfg.RelaySecret
		o.RelayTimeout = cfg.Backend.Timeout + time.Minute
		o.AllowedOrigins = cfg.AllowedOrigins
	})

	// Streams stay open indefinitely, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", srv.Addr, "relay", cfg.RelayEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	stop()

	logger.Info("server.shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server.stopped")

	return nil
}
