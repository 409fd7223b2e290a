package shared

import (
	"errors"
	"fmt"

	"github.com/orderdesk/orderdesk/internal/platform/httpx"
)

var (
	// ErrNotFound indicates a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrMissingActor indicates a request without a resolved org/user identity.
	ErrMissingActor = errors.New("request identity missing")
)

// Validationf builds a validation error that maps to HTTP 400. Validation
// failures are raised before any write and are always safe to retry.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", httpx.ErrValidation, fmt.Sprintf(format, args...))
}

// UserSafeMessage extracts a message suitable for end users. Internal errors
// collapse to a generic message so storage details never leak to the dashboard.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrConflict),
		errors.Is(err, httpx.ErrUnprocessable),
		errors.Is(err, httpx.ErrDuplicate),
		errors.Is(err, ErrNotFound):
		return err.Error()
	default:
		return "something went wrong, please try again"
	}
}
