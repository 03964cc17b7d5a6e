package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagediff/models"
)

// DiffRunner runs one comparison. *differ.Differ implements it.
type DiffRunner interface {
	Run(ctx context.Context, req *models.DiffRequest) (*models.DiffResult, error)
}

// PostDiff returns a handler for POST /api/v1/diff.
//
//  1. Bind & validate {beforeUrl, afterUrl}; malformed input is a 400
//     before any capture starts.
//  2. Run the comparison.
//  3. Map failures to 400/5xx; the placeholder id is not returned.
func PostDiff(runner DiffRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.DiffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.DiffResponse{
				Message: "Bad request",
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Run ──────────────────────────────────────────────────
		res, err := runner.Run(c.Request.Context(), &req)

		// ── 3. Respond ──────────────────────────────────────────────
		if err != nil {
			de := asDiffError(err)
			status := mapErrorToStatus(de)
			c.JSON(status, models.DiffResponse{
				Message: models.StatusMessage(status),
				Error:   de.ToDetail(),
			})
			return
		}

		timing, similarity := res.Timing, res.Similarity
		c.JSON(http.StatusOK, models.DiffResponse{
			ID:           res.ID,
			VisualDiff:   res.VisualDiff,
			MetadataDiff: res.MetadataDiff,
			BodyDiff:     res.BodyDiff,
			Similarity:   &similarity,
			Message:      "Comparison completed",
			Timing:       &timing,
		})
	}
}
