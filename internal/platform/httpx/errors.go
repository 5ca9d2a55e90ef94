// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/smt-trading/crm/internal/shared"
)

// RespondError maps the shared error taxonomy to RFC7807 responses. It reports whether
// the error was an expected one so callers can decide to log.
func RespondError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrTxConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Transaction Conflict", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return false
	}
	return true
}

// Fail writes err as a problem response and logs it under msg when it is unexpected.
func Fail(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	if !RespondError(w, err) {
		logger.Error(msg, slog.Any("error", err))
	}
}
