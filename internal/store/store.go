// Package store persists library snapshots. A Store is an external
// collaborator of the library manager: the whole library is read at startup
// and written back on demand.
package store

import (
	"context"
	"fmt"

	"github.com/drallgood/book-manager/internal/config"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
)

// Store loads and saves complete library snapshots
type Store interface {
	// Load returns the stored snapshot, or an empty one if nothing was saved yet
	Load(ctx context.Context) (library.Snapshot, error)
	// Save replaces the stored snapshot
	Save(ctx context.Context, snap library.Snapshot) error
	// Close releases the store's resources
	Close() error
}

// Open creates the store selected by cfg.Type
func Open(cfg config.Storage, log *logger.Logger) (Store, error) {
	switch cfg.Type {
	case config.StorageTypeFile, "":
		return NewFileStore(cfg.Path, log), nil
	case config.StorageTypeSQL:
		s, err := NewSQLStore(&cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageTypeRedis:
		return NewRedisStore(cfg.Redis, log), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// LoadManager builds a manager populated from s
func LoadManager(ctx context.Context, s Store, opts ...library.Option) (*library.Manager, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}

	m := library.NewManager(opts...)
	if err := m.Restore(snap); err != nil {
		return nil, fmt.Errorf("failed to restore library: %w", err)
	}
	return m, nil
}

// SaveManager writes m's current state to s
func SaveManager(ctx context.Context, s Store, m *library.Manager) error {
	if err := s.Save(ctx, m.Snapshot()); err != nil {
		return fmt.Errorf("failed to save library: %w", err)
	}
	return nil
}
