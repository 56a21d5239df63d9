package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("resource not found")
	ErrUnavailable     = errors.New("storage unavailable")
	ErrUnauthorized    = errors.New("unauthorized access")
)

// PublicMessage returns the text a client may see for err. Storage details
// never leave the process.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "service temporarily unavailable, please retry"
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return "internal server error"
	}
}
