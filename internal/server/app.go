// Package server wires the backend together and runs the HTTP listener with
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/server/api"
	"github.com/g1mliii/anchored/internal/server/auth"
	"github.com/g1mliii/anchored/internal/server/config"
	"github.com/g1mliii/anchored/internal/server/repository"
	"github.com/g1mliii/anchored/internal/server/service"
)

const shutdownGrace = 10 * time.Second

type App struct {
	config *config.Config
	log    logging.Logger
	repo   repository.Repository
	server *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	zl := newZerolog(cfg)
	log := logging.NewZerologLogger(zl)

	var repo repository.Repository
	var err error
	if cfg.DatabaseDSN != "" {
		repo, err = repository.NewPostgresRepository(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	} else {
		log.Warn(ctx, "no database configured, using in-memory store")
		repo = repository.NewMemoryRepository()
	}

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		repo.Close()
		return nil, err
	}

	notes := service.NewNoteService(repo, log)
	handler := api.NewHandler(notes, verifier, log)

	return &App{
		config: cfg,
		log:    log,
		repo:   repo,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "starting server", "addr", a.config.Addr, "env", a.config.Environment)
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.repo.Close()
		return err
	case <-ctx.Done():
	}

	a.log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := a.server.Shutdown(shutdownCtx)
	if closeErr := a.repo.Close(); err == nil {
		err = closeErr
	}
	return err
}

func newZerolog(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
