package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
)

const (
	// CurrentVersion is the current version of the library file format
	CurrentVersion = "2.0"
)

// fileDocument is the on-disk layout of a library file
type fileDocument struct {
	Version string      `json:"version" yaml:"version"`
	NextID  book.ID     `json:"next_id" yaml:"next_id"`
	Books   []book.Book `json:"books" yaml:"books"`
}

// FileStore keeps the library in a single JSON or YAML file. The format is
// chosen by extension: .yaml and .yml use YAML, anything else JSON.
type FileStore struct {
	path   string
	logger *logger.Logger
}

// NewFileStore creates a file store for path
func NewFileStore(path string, log *logger.Logger) *FileStore {
	return &FileStore{
		path: path,
		logger: log.With(map[string]interface{}{
			"component": "file_store",
			"path":      path,
		}),
	}
}

// Path returns the library file path
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) isYAML() bool {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func (s *FileStore) unmarshal(data []byte, v interface{}) error {
	if s.isYAML() {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Load reads the library file. A missing file yields an empty snapshot.
// Version 1 files, which hold a bare list of books, are migrated.
func (s *FileStore) Load(ctx context.Context) (library.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return library.Snapshot{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("Library file not found, starting empty")
			return library.Snapshot{NextID: 1}, nil
		}
		return library.Snapshot{}, fmt.Errorf("failed to read library file %q: %w", s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return library.Snapshot{NextID: 1}, nil
	}

	var shape interface{}
	if err := s.unmarshal(data, &shape); err != nil {
		return library.Snapshot{}, fmt.Errorf("invalid library file format: %w", err)
	}

	if _, isList := shape.([]interface{}); isList {
		var books []book.Book
		if err := s.unmarshal(data, &books); err != nil {
			return library.Snapshot{}, fmt.Errorf("failed to parse v1 library file: %w", err)
		}
		s.logger.Info("Migrating v1 library file", map[string]interface{}{
			"books": len(books),
		})
		return migrateV1(books), nil
	}

	var doc fileDocument
	if err := s.unmarshal(data, &doc); err != nil {
		return library.Snapshot{}, fmt.Errorf("failed to parse library file: %w", err)
	}

	switch doc.Version {
	case "", CurrentVersion:
	default:
		return library.Snapshot{}, fmt.Errorf("unsupported library file version: %s", doc.Version)
	}

	s.logger.Debug("Library file loaded", map[string]interface{}{
		"books":   len(doc.Books),
		"next_id": doc.NextID,
	})
	return library.Snapshot{NextID: doc.NextID, Books: doc.Books}, nil
}

// migrateV1 converts a v1 book list. v1 files did not record the next
// identifier, so it is derived from the stored books.
func migrateV1(books []book.Book) library.Snapshot {
	var next book.ID = 1
	for _, b := range books {
		if b.ID >= next {
			next = b.ID + 1
		}
	}
	return library.Snapshot{NextID: next, Books: books}
}

// Save writes the snapshot atomically through a temp file in the same
// directory
func (s *FileStore) Save(ctx context.Context, snap library.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := fileDocument{
		Version: CurrentVersion,
		NextID:  snap.NextID,
		Books:   snap.Books,
	}
	if doc.Books == nil {
		doc.Books = []book.Book{}
	}

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}

	targetDir := filepath.Dir(s.path)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create library directory %q: %w", targetDir, err)
	}

	tmpFile, err := os.CreateTemp(targetDir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", targetDir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		if _, err := os.Stat(tmpPath); err == nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write library: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync library file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on library file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", s.path, err)
	}

	s.logger.Debug("Library file saved", map[string]interface{}{
		"books": len(doc.Books),
	})
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
