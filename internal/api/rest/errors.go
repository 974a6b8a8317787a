package rest

import (
	"errors"
	"net/http"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/service"
	"github.com/flowloom/fabric/internal/storage"
)

// statusFor maps a domain/service/storage error to the HTTP status §7's
// error-kind table assigns it: not-found kinds to 404, authoring/validation
// failures to 400, a not-running/not-paused state conflict to 409, anything
// else to 500.
func statusFor(err error) int {
	var notFound *storage.ErrNotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		switch domErr.Code {
		case domain.ErrCodeNotFound:
			return http.StatusNotFound
		case domain.ErrCodeInvalidInput, domain.ErrCodeValidationFailed, domain.ErrCodeInvalidType:
			return http.StatusBadRequest
		case domain.ErrCodeAlreadyExists, domain.ErrCodeInvalidState, domain.ErrCodeInvariantViolated, domain.ErrCodeCyclicDependency:
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
	var notRunning *service.ErrNotRunning
	if errors.As(err, &notRunning) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
