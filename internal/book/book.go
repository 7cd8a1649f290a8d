// Package book defines the book record tracked by the library manager.
package book

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ID identifies a book within a library. IDs are assigned by the library
// manager and are never reused.
type ID int64

// Status is the reading status of a book
type Status string

const (
	StatusUnread   Status = "unread"
	StatusReading  Status = "reading"
	StatusFinished Status = "finished"
)

// Statuses lists every allowed status in display order
var Statuses = []Status{StatusUnread, StatusReading, StatusFinished}

// StatusNames returns the allowed statuses as a comma separated list
func StatusNames() string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the allowed statuses
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// ParseStatus parses a status name case-insensitively.
// The empty string parses as StatusUnread.
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusUnread, nil
	}
	return parseStatus(s)
}

// ParseStatusStrict is like ParseStatus but rejects the empty string
func ParseStatusStrict(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", &ValidationError{Field: "status", Msg: "must not be empty"}
	}
	return parseStatus(s)
}

func parseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", &ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("must be one of %s (got %q)", StatusNames(), s),
		}
	}
	return status, nil
}

// Book holds the metadata for a single book.
// Values are copied in and out of the library manager, so a Book obtained
// from the manager can be modified freely without affecting the stored one.
type Book struct {
	ID     ID     `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author" yaml:"author"`
	Status Status `json:"status" yaml:"status"`
}

// New creates a validated book without an identifier.
// Title and author are trimmed of surrounding whitespace. An empty status
// defaults to StatusUnread.
func New(title, author string, status Status) (Book, error) {
	b := Book{Title: title, Author: author, Status: status}.Normalize()
	if err := b.Validate(); err != nil {
		return Book{}, err
	}
	return b, nil
}

// Normalize returns a copy of b with title and author trimmed of
// surrounding whitespace and an empty status set to StatusUnread
func (b Book) Normalize() Book {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	if b.Status == "" {
		b.Status = StatusUnread
	}
	return b
}

// Validate checks the title, author and status fields
func (b Book) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return &ValidationError{Field: "title", Msg: "must not be empty"}
	}
	if strings.TrimSpace(b.Author) == "" {
		return &ValidationError{Field: "author", Msg: "must not be empty"}
	}
	if !b.Status.Valid() {
		return &ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("must be one of %s (got %q)", StatusNames(), b.Status),
		}
	}
	return nil
}

// String returns a short human readable description
func (b Book) String() string {
	return fmt.Sprintf("#%d %q by %s [%s]", b.ID, b.Title, b.Author, b.Status)
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Status == nil
}

// Apply returns a copy of b with the patch applied and re-validated.
// b itself is never modified.
func (b Book) Apply(p Patch) (Book, error) {
	updated := b
	if p.Title != nil {
		updated.Title = *p.Title
	}
	if p.Author != nil {
		updated.Author = *p.Author
	}
	if p.Status != nil {
		updated.Status = *p.Status
		if updated.Status == "" {
			return b, &ValidationError{Field: "status", Msg: "must not be empty"}
		}
	}
	updated = updated.Normalize()
	if err := updated.Validate(); err != nil {
		return b, err
	}
	return updated, nil
}

// ValidationError is returned when a book field violates its constraints
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Msg
}

// IsValidation reports whether err is or wraps a *ValidationError
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
