// Package library manages an ordered, in-memory collection of books.
//
// A Manager is not safe for concurrent use. Callers that share one across
// goroutines must serialize access themselves.
package library

import (
	"fmt"
	"iter"
	"strings"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/logger"
)

// Manager owns the book collection and exposes CRUD operations on it
type Manager struct {
	books  []book.Book
	nextID book.ID
	logger *logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for mutation events
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log.With(map[string]interface{}{
				"component": "library",
			})
		}
	}
}

// NewManager creates an empty manager. The first book added gets ID 1.
func NewManager(opts ...Option) *Manager {
	m := &Manager{nextID: 1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add validates and stores a new book and returns its identifier
func (m *Manager) Add(title, author string, status book.Status) (book.ID, error) {
	b, err := book.New(title, author, status)
	if err != nil {
		return 0, err
	}

	b.ID = m.nextID
	m.nextID++
	m.books = append(m.books, b)

	m.logger.Debug("Book added", map[string]interface{}{
		"book_id": b.ID,
		"title":   b.Title,
		"author":  b.Author,
		"status":  b.Status,
	})
	return b.ID, nil
}

// Remove deletes the book with the given identifier
func (m *Manager) Remove(id book.ID) error {
	i := m.indexOf(id)
	if i < 0 {
		return &NotFoundError{ID: id}
	}

	m.books = append(m.books[:i], m.books[i+1:]...)

	m.logger.Debug("Book removed", map[string]interface{}{
		"book_id": id,
	})
	return nil
}

// Update applies a partial update to an existing book and returns the
// updated record. The collection is left unchanged on error.
func (m *Manager) Update(id book.ID, patch book.Patch) (book.Book, error) {
	i := m.indexOf(id)
	if i < 0 {
		return book.Book{}, &NotFoundError{ID: id}
	}

	updated, err := m.books[i].Apply(patch)
	if err != nil {
		return book.Book{}, err
	}
	m.books[i] = updated

	m.logger.Debug("Book updated", map[string]interface{}{
		"book_id": id,
		"status":  updated.Status,
	})
	return updated, nil
}

// Get returns a copy of the book with the given identifier
func (m *Manager) Get(id book.ID) (book.Book, error) {
	i := m.indexOf(id)
	if i < 0 {
		return book.Book{}, &NotFoundError{ID: id}
	}
	return m.books[i], nil
}

// List returns the books matching filter in insertion order.
// The sequence is lazy and can be ranged over any number of times; each
// iteration observes the collection as it is when the iteration runs.
func (m *Manager) List(filter Filter) iter.Seq[book.Book] {
	return func(yield func(book.Book) bool) {
		for _, b := range m.books {
			if !filter.Match(b) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Count returns the number of stored books
func (m *Manager) Count() int {
	return len(m.books)
}

func (m *Manager) indexOf(id book.ID) int {
	for i, b := range m.books {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Filter restricts the books produced by List. The zero Filter matches
// every book.
type Filter struct {
	// Status keeps only books with this status when non-empty
	Status book.Status
	// Query keeps only books whose title or author contains it, ignoring case
	Query string
}

// Match reports whether b passes the filter
func (f Filter) Match(b book.Book) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Author), q)
}

// Snapshot is the persisted form of a manager's state
type Snapshot struct {
	// NextID is the identifier the next added book will receive
	NextID book.ID     `json:"next_id" yaml:"next_id"`
	Books  []book.Book `json:"books" yaml:"books"`
}

// Snapshot returns a copy of the manager's state
func (m *Manager) Snapshot() Snapshot {
	books := make([]book.Book, len(m.books))
	copy(books, m.books)
	return Snapshot{NextID: m.nextID, Books: books}
}

// Restore replaces the manager's state with snap. Every book is normalized
// and validated, and identifiers must be positive and unique. The next identifier is
// raised above the largest stored one if the snapshot lags behind.
func (m *Manager) Restore(snap Snapshot) error {
	seen := make(map[book.ID]struct{}, len(snap.Books))
	next := snap.NextID
	if next < 1 {
		next = 1
	}

	books := make([]book.Book, 0, len(snap.Books))
	for _, b := range snap.Books {
		if b.ID < 1 {
			return fmt.Errorf("restore book %q: invalid identifier %d", b.Title, b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("restore book %q: duplicate identifier %d", b.Title, b.ID)
		}
		b = b.Normalize()
		if err := b.Validate(); err != nil {
			return fmt.Errorf("restore book %d: %w", b.ID, err)
		}
		seen[b.ID] = struct{}{}
		if b.ID >= next {
			next = b.ID + 1
		}
		books = append(books, b)
	}

	m.books = books
	m.nextID = next

	m.logger.Debug("Library restored", map[string]interface{}{
		"books":   len(books),
		"next_id": next,
	})
	return nil
}
