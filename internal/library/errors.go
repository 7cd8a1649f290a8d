package library

import (
	"errors"
	"fmt"

	"github.com/drallgood/book-manager/internal/book"
)

// NotFoundError is returned when an operation references an identifier
// that is not in the library
type NotFoundError struct {
	ID book.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book not found (book ID: %d)", e.ID)
}

// IsNotFound reports whether err is or wraps a *NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
