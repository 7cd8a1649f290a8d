package metadata

import (
	"errors"
	"fmt"
)

// ErrNoResults is returned when the provider knows no book with the given id
var ErrNoResults = errors.New("no results found")

// ProviderError is returned when the metadata provider fails or answers
// with something unusable
type ProviderError struct {
	// BookID is the looked-up provider id
	BookID int64
	// StatusCode is the HTTP status, if the failure was an HTTP error
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("metadata provider error (book ID: %d, status %d): %v", e.BookID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("metadata provider error (book ID: %d): %v", e.BookID, e.Err)
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is or wraps a *ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
