package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/webhook"
)

// Snapshotter runs one capture batch.
type Snapshotter interface {
	Run(ctx context.Context, urls []string, timeout time.Duration) (*models.SnapshotResponse, error)
}

// PostSnapshots returns a handler for POST /api/v1/snapshots.
//
// The request blocks until the batch deadline at most. The mapping always
// has one entry per distinct URL; URLs that could not be captured carry an
// error entry and do not fail the request. When callback_url is set the
// same body is also delivered as a snapshot.completed webhook.
func PostSnapshots(svc Snapshotter, webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SnapshotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		timeout := time.Duration(req.Timeout) * time.Second
		resp, err := svc.Run(c.Request.Context(), req.URLs, timeout)
		if err != nil {
			respondError(c, err)
			return
		}

		if req.CallbackURL != "" {
			webhook.DeliverAsync(req.CallbackURL, webhookSecret, &webhook.Event{
				Type:      webhook.EventSnapshotCompleted,
				BatchID:   resp.ID,
				Timestamp: time.Now().Unix(),
				Data:      resp,
			})
		}

		c.JSON(http.StatusOK, resp)
	}
}

// respondError writes a typed error response; untyped errors become 500s.
func respondError(c *gin.Context, err error) {
	snapErr, ok := err.(*models.SnapshotError)
	if !ok {
		snapErr = models.NewSnapshotError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(snapErr), models.ErrorResponse{Error: snapErr.ToDetail()})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.SnapshotError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNavigation, models.ErrCodeExtension, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
