package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirinyoku/tix-wizard/internal/validation"
)

var (
	ErrInvalidTransition     = errors.New("operation not allowed at the current step")
	ErrUnknownTicketType     = errors.New("unknown ticket type")
	ErrInvalidQuantity       = errors.New("quantity must be between 1 and 5")
	ErrInsufficientInventory = errors.New("not enough tickets remaining")
	ErrUploadPending         = errors.New("photo upload still in progress")
	ErrPhotoMissing          = errors.New("profile photo is required")
	ErrUploadSuperseded      = errors.New("upload superseded by a newer one")
	ErrBusy                  = errors.New("operation already in progress")
	ErrNotReady              = errors.New("ticket is not ready")
)

// ValidationError carries per-field messages for rejected details.
// It matches ErrPhotoMissing when no photo was supplied at all.
type ValidationError struct {
	Fields       validation.Errors
	PhotoMissing bool
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields.Fields() {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrPhotoMissing && e.PhotoMissing
}

// UploadError is a failed photo upload. The draft photo is left unset and
// the user may retry with a new selection.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload image: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ExportError is a failed ticket render. The wizard stays READY.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export ticket: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
