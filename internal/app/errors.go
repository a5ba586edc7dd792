package app

import (
	"errors"
	"fmt"

	"biblioteca/pkg/domain"
)

// Business-rule error kinds. All are recoverable and map to user-facing
// responses; anything else bubbling out of the store is treated as a fatal
// storage failure.
var (
	// ErrInvalidISBN indicates an identifier that is not 10 or 13 digits.
	ErrInvalidISBN = errors.New("isbn must be 10 or 13 digits")
	// ErrDuplicateISBN indicates the identifier is already registered.
	ErrDuplicateISBN = errors.New("isbn already registered")
	// ErrOutOfStock indicates no available copy of the book.
	ErrOutOfStock = errors.New("no copies available")
	// ErrInvalidTransition indicates a loan operation from the wrong state.
	ErrInvalidTransition = errors.New("invalid loan transition")
	// ErrForbidden indicates the actor's roles do not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a duplicate create (username, author pair).
	ErrAlreadyExists = errors.New("already exists")
	// ErrReferentialConflict indicates a delete blocked by dependent rows.
	ErrReferentialConflict = errors.New("has dependent records")
)

// TransitionError reports the current state and the attempted action so the
// caller can render a precise message.
type TransitionError struct {
	LoanID string
	From   domain.LoanState
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("loan %s: cannot %s from state %q", e.LoanID, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
