package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/store"
)

// asDiffError returns err as a DiffError, wrapping unknown errors as
// INTERNAL_ERROR and store.ErrNotFound as NOT_FOUND.
func asDiffError(err error) *models.DiffError {
	var de *models.DiffError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.NewDiffError(models.ErrCodeNotFound, "not found", err)
	}
	return models.NewDiffError(models.ErrCodeInternal, "internal error", err)
}

// respondError maps err to its HTTP status and writes the structured error.
// Clients only get the generic "Bad request" / "Server error" message plus
// the error code; internal details stay in the logs.
func respondError(c *gin.Context, err error) {
	de := asDiffError(err)
	status := mapErrorToStatus(de)
	c.JSON(status, models.ErrorResponse{
		Message: models.StatusMessage(status),
		Error:   de.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.DiffError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeCapture:
		return http.StatusBadGateway // 502
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
