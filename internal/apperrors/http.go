package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
// The outermost *Error decides, so Internal("store.put", Unavailable(...))
// is a 500 even though the cause still matches ErrUnavailable.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return statusOf(appErr.Sentinel)
	}
	return statusOf(err)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
