package http

import (
	"errors"
	"net/http"

	"counsel/internal/app/agent/coordinator"
	domain "counsel/internal/domain/task"
)

// mapDomainError translates a domain/service error into an HTTP status code
// and a user-facing message. Returns (0, "") if the error is not a
// recognized domain error, letting the caller decide on a default.
func mapDomainError(err error) (status int, message string) {
	if err == nil {
		return 0, ""
	}

	switch {
	case errors.Is(err, coordinator.ErrValidation), errors.Is(err, domain.ErrInvalidRating):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "task not found"

	case errors.Is(err, coordinator.ErrConflict),
		errors.Is(err, domain.ErrTaskNotTerminal),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrPlanLocked):
		return http.StatusConflict, err.Error()

	case errors.Is(err, coordinator.ErrShuttingDown):
		return http.StatusServiceUnavailable, "service is shutting down"

	default:
		return 0, ""
	}
}
