package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/config"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
)

// bookRecord is the row layout of the books table
type bookRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Position  int    `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	Author    string `gorm:"not null"`
	Status    string `gorm:"size:16;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (bookRecord) TableName() string { return "books" }

// libraryMeta holds library-wide state in a single row
type libraryMeta struct {
	ID        uint `gorm:"primaryKey"`
	NextID    int64
	UpdatedAt time.Time
}

func (libraryMeta) TableName() string { return "library_meta" }

const metaRowID = 1

// sqlBatchSize bounds the rows written or deleted per statement
var sqlBatchSize = 100

// SQLStore keeps the library in a SQL database through gorm
type SQLStore struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewSQLStore connects to the configured database and migrates the schema
func NewSQLStore(cfg *config.DatabaseConfig, log *logger.Logger) (*SQLStore, error) {
	log = log.With(map[string]interface{}{
		"component": "sql_store",
		"type":      cfg.Type,
	})

	db, err := Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewSQLStoreFromDB(db, log)
}

// NewSQLStoreFromDB wraps an open gorm connection and migrates the schema
func NewSQLStoreFromDB(db *gorm.DB, log *logger.Logger) (*SQLStore, error) {
	if err := db.AutoMigrate(&bookRecord{}, &libraryMeta{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return &SQLStore{db: db, logger: log}, nil
}

// Load reads all books in insertion order along with the next identifier
func (s *SQLStore) Load(ctx context.Context) (library.Snapshot, error) {
	db := s.db.WithContext(ctx)

	var records []bookRecord
	if err := db.Order("position").Find(&records).Error; err != nil {
		return library.Snapshot{}, fmt.Errorf("failed to query books: %w", err)
	}

	snap := library.Snapshot{NextID: 1, Books: make([]book.Book, 0, len(records))}

	var meta libraryMeta
	err := db.First(&meta, metaRowID).Error
	switch {
	case err == nil:
		snap.NextID = book.ID(meta.NextID)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return library.Snapshot{}, fmt.Errorf("failed to query library metadata: %w", err)
	}

	for _, r := range records {
		snap.Books = append(snap.Books, book.Book{
			ID:     book.ID(r.ID),
			Title:  r.Title,
			Author: r.Author,
			Status: book.Status(r.Status),
		})
	}

	s.logger.Debug("Library loaded from database", map[string]interface{}{
		"books":   len(snap.Books),
		"next_id": snap.NextID,
	})
	return snap, nil
}

// Save replaces the stored library in a single transaction. Rows for books
// that still exist are updated in place so their creation time survives.
func (s *SQLStore) Save(ctx context.Context, snap library.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keep := make(map[int64]struct{}, len(snap.Books))
		records := make([]bookRecord, 0, len(snap.Books))
		for i, b := range snap.Books {
			keep[int64(b.ID)] = struct{}{}
			records = append(records, bookRecord{
				ID:       int64(b.ID),
				Position: i,
				Title:    b.Title,
				Author:   b.Author,
				Status:   string(b.Status),
			})
		}

		var existing []int64
		if err := tx.Model(&bookRecord{}).Pluck("id", &existing).Error; err != nil {
			return fmt.Errorf("failed to query stored books: %w", err)
		}
		var stale []int64
		for _, id := range existing {
			if _, ok := keep[id]; !ok {
				stale = append(stale, id)
			}
		}
		// Bounded so a single statement stays under the driver's bind
		// parameter limit
		for len(stale) > 0 {
			n := min(len(stale), sqlBatchSize)
			if err := tx.Where("id IN ?", stale[:n]).Delete(&bookRecord{}).Error; err != nil {
				return fmt.Errorf("failed to delete removed books: %w", err)
			}
			stale = stale[n:]
		}

		if len(records) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"position", "title", "author", "status", "updated_at"}),
			}).CreateInBatches(records, sqlBatchSize).Error
			if err != nil {
				return fmt.Errorf("failed to upsert books: %w", err)
			}
		}

		meta := libraryMeta{ID: metaRowID, NextID: int64(snap.NextID)}
		if err := tx.Save(&meta).Error; err != nil {
			return fmt.Errorf("failed to save library metadata: %w", err)
		}

		s.logger.Debug("Library saved to database", map[string]interface{}{
			"books": len(records),
		})
		return nil
	})
}

// Health pings the database
func (s *SQLStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
