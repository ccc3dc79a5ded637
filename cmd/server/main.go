// Package main is the entry point for the book recommendation web client.
//
// main only reads configuration, builds the dependencies and starts the
// server. All actual logic lives in internal/.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/config"
	"github.com/sakif/bookshelf/internal/repository"
	"github.com/sakif/bookshelf/internal/repository/httpapi"
	"github.com/sakif/bookshelf/internal/repository/memory"
	"github.com/sakif/bookshelf/internal/repository/redisstore"
	"github.com/sakif/bookshelf/internal/repository/sqlite"
	"github.com/sakif/bookshelf/internal/server"
	"github.com/sakif/bookshelf/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if cfg.UsesDevSecret() {
		logger.Warn("SESSION_SECRET not set, session cookies are signed with the public development secret")
	}

	sessions, closer, err := openSessionStore(cfg.Session)
	if err != nil {
		logger.Error("failed to open session store",
			slog.String("store", cfg.Session.Store),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	books, err := httpapi.New(cfg.API.BaseURL, cfg.API.Timeout, logger)
	if err != nil {
		logger.Error("invalid book service address", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(cfg.Session.Secret, cfg.Session.TokenTTL)
	if err != nil {
		logger.Error("invalid session secret", slog.String("error", err.Error()))
		os.Exit(1)
	}

	browser := service.NewBrowseService(books, sessions, logger,
		service.WithSettler(service.After(cfg.Modal.CloseSettle)),
	)

	srv, err := server.New(cfg, server.Deps{
		Browser:  browser,
		Sessions: sessions,
		Tokens:   tokens,
		Closer:   closer,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openSessionStore builds the configured session backend. The returned
// closer is nil for the in-memory store.
func openSessionStore(cfg config.SessionConfig) (repository.SessionRepository, io.Closer, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		// os.MkdirAll is a no-op when the directory already exists.
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating database directory: %w", err)
		}
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil

	case config.StoreRedis:
		// Redis expires idle keys itself; the janitor's sweep is a no-op there.
		store, err := redisstore.NewSessionStore(cfg.RedisAddr, cfg.RedisDB, cfg.IdleTimeout)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	default:
		return memory.NewSessionStore(), nil, nil
	}
}
