// Package apperr defines the error taxonomy shared by the gateway, the
// pipeline, and the store, and maps error kinds to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput marks malformed or empty submissions. A client
	// problem, never logged as a system fault.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a lookup by id that found nothing.
	ErrNotFound = errors.New("id not found")
	// ErrStorage marks a failed read or write against the durable store.
	ErrStorage = errors.New("storage failure")
	// ErrParsing marks durable bytes that failed to decode. Distinct from
	// ErrNotFound: corruption must never read as absence.
	ErrParsing = errors.New("could not parse stored bytes")
	// ErrChannel marks a document-ingestion channel that could not accept
	// an item (closed, or full past the send deadline).
	ErrChannel = errors.New("ingestion channel unavailable")
)

// Wrap annotates err with a sentinel kind so callers can classify it with
// errors.Is while keeping the underlying detail.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps an error to the status code the gateway responds with.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorage), errors.Is(err, ErrParsing), errors.Is(err, ErrChannel):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
