// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/clinovault/clinovault/internal/shared"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Authentication and authorization failures deliberately carry fixed, generic
// bodies: the response never reveals which check rejected the request or
// whether the target exists.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "not authenticated")
	case errors.Is(err, shared.ErrNotPermitted), errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "not permitted")
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrAuditUnavailable):
		// If the decision could not be audited its result must not be
		// disclosed either way.
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
