package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/solatis/decider/internal/core/store"
	"github.com/solatis/decider/internal/types"
)

// Fixed response details.
const (
	detailUnavailable   = "Database temporarily unavailable. Please retry."
	detailTableNotFound = "Table not found"
	detailBadTableID    = "table_id must be a valid UUID"
	detailInternal      = "Internal server error"
)

// apiError is the {"detail": ...} error envelope.
type apiError struct {
	status int
	Detail string `json:"detail"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Detail }

func newAPIError(status int, detail string) huma.StatusError {
	return &apiError{status: status, Detail: detail}
}

// huma keeps these hooks in package state, so they are set once here
// rather than per API. Huma's own errors (malformed parameters, oversized
// bodies) go through apiError and request validation failures are 400.
func init() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(normalizeStatus(status), errorDetail(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(normalizeStatus(status), errorDetail(msg, errs))
	}
}

func normalizeStatus(status int) int {
	if status == http.StatusUnprocessableEntity {
		return http.StatusBadRequest
	}
	return status
}

func errorDetail(msg string, errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(parts, "; ")
}

// errorStatus selects the status for the domain-neutral cases. Callers
// override it for ConfigurationError and DataError, whose meaning depends
// on the endpoint.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case types.IsValidation(err):
		return http.StatusBadRequest
	case types.IsConflict(err):
		return http.StatusConflict
	case types.IsConfiguration(err):
		return http.StatusBadRequest
	case types.IsData(err):
		return http.StatusNotFound
	case store.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps err onto the error envelope.
func (s *service) handleError(err error) huma.StatusError {
	return s.handleErrorAs(err, 0, 0)
}

// handleErrorAs is handleError with explicit statuses for configuration
// and data errors; zero keeps the default.
func (s *service) handleErrorAs(err error, configStatus, dataStatus int) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}

	status := errorStatus(err)
	switch {
	case configStatus != 0 && types.IsConfiguration(err):
		status = configStatus
	case dataStatus != 0 && types.IsData(err):
		status = dataStatus
	}

	switch status {
	case http.StatusServiceUnavailable:
		s.logger.Warn("database unavailable", "error", err)
		return newAPIError(status, detailUnavailable)
	case http.StatusNotFound:
		if errors.Is(err, types.ErrNotFound) {
			return newAPIError(status, detailTableNotFound)
		}
	case http.StatusInternalServerError:
		if !types.IsConfiguration(err) {
			s.logger.Error("request failed", "error", err)
			return newAPIError(status, detailInternal)
		}
	}
	return newAPIError(status, err.Error())
}
