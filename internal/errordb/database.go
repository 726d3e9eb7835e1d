// Package errordb is the single entry point to the error store. It picks one
// backend from configuration when opened and forwards every call to it.
package errordb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/errorblob/internal/config"
	"github.com/kalambet/errorblob/internal/model"
	"github.com/kalambet/errorblob/internal/remote"
	"github.com/kalambet/errorblob/internal/storage"
)

// Backend is the contract shared by every store implementation.
type Backend interface {
	Commit(ctx context.Context, d model.Draft) (model.Record, error)
	Look(ctx context.Context, query string, limit int) ([]model.Match, error)
	List(ctx context.Context) ([]model.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Status(ctx context.Context) (model.Status, error)
	Close() error
}

var (
	_ Backend = (*storage.FileStore)(nil)
	_ Backend = (*storage.SQLiteStore)(nil)
	_ Backend = (*remote.Store)(nil)
)

// Database forwards to exactly one Backend chosen at construction.
type Database struct {
	backend Backend
}

// New wraps an existing backend.
func New(b Backend) *Database {
	return &Database{backend: b}
}

// Open selects and constructs the backend named by cfg.Storage.Mode.
func Open(ctx context.Context, cfg config.Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}

	var (
		b   Backend
		err error
	)
	switch cfg.Storage.Mode {
	case config.ModeLocal:
		b = storage.NewFileStore(cfg.Storage.Path, storage.WithLockTimeout(cfg.Storage.LockTimeout))
	case config.ModeSQLite:
		b, err = storage.OpenSQLite(cfg.Storage.Path)
	case config.ModeRemote:
		b, err = remote.Open(ctx, remote.Config{
			URL:            cfg.Remote.URL,
			APIKey:         cfg.Remote.APIKey,
			Namespace:      cfg.Remote.Namespace,
			Timeout:        cfg.Remote.Timeout,
			EmbeddingModel: cfg.Remote.EmbeddingModel,
			OpenAIAPIKey:   cfg.Remote.OpenAIAPIKey,
			OpenAIBaseURL:  cfg.Remote.EmbeddingBaseURL,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Storage.Mode, err)
	}

	slog.Debug("error database opened", "backend", cfg.Storage.Mode)
	return New(b), nil
}

// Commit stores a new record built from d.
func (db *Database) Commit(ctx context.Context, d model.Draft) (model.Record, error) {
	return db.backend.Commit(ctx, d)
}

// Look returns at most limit records relevant to query, best first.
func (db *Database) Look(ctx context.Context, query string, limit int) ([]model.Match, error) {
	return db.backend.Look(ctx, query, limit)
}

// List returns every record.
func (db *Database) List(ctx context.Context) ([]model.Record, error) {
	return db.backend.List(ctx)
}

// Delete removes the record with id and reports whether it existed.
func (db *Database) Delete(ctx context.Context, id string) (bool, error) {
	return db.backend.Delete(ctx, id)
}

// Status describes the active backend.
func (db *Database) Status(ctx context.Context) (model.Status, error) {
	return db.backend.Status(ctx)
}

func (db *Database) Close() error {
	return db.backend.Close()
}
