// Package cli is the Anchored client command line: sign-in, local note CRUD,
// manual sync, conflict resolution, and collection export/import.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/g1mliii/anchored/internal/client/backend"
	"github.com/g1mliii/anchored/internal/client/cache"
	"github.com/g1mliii/anchored/internal/client/config"
	"github.com/g1mliii/anchored/internal/client/session"
	"github.com/g1mliii/anchored/internal/client/syncq"
	"github.com/g1mliii/anchored/internal/kv"
	"github.com/g1mliii/anchored/internal/logging"
)

// App owns the wired client components. Construction order matters: store,
// then session (key provider), then backend, then queue, then cache.
type App struct {
	Config  *config.Config
	Log     logging.Logger
	Store   kv.Store
	Session *session.Manager
	Backend *backend.Client
	Queue   *syncq.Queue
	Cache   *cache.NoteCache
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	store, err := kv.OpenSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(store)
	client := backend.New(cfg.ServerEndpointURL, sessions, log)
	queue := syncq.New(store, client, sessions, log)
	notes := cache.New(store, client, sessions, queue, log)

	return &App{
		Config:  cfg,
		Log:     log,
		Store:   store,
		Session: sessions,
		Backend: client,
		Queue:   queue,
		Cache:   notes,
	}, nil
}

// Close mirrors the page-unload path: one best-effort flush, then release
// the store.
func (a *App) Close() error {
	a.Queue.FlushBestEffort()
	return a.Store.Close()
}
