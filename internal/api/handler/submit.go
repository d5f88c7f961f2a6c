package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/observability"
	"github.com/mizuki/formflow/internal/relay"
)

// SubmitHandler handles intake form submissions.
type SubmitHandler struct {
	submitter *relay.Submitter
	metrics   *observability.Metrics
}

// NewSubmitHandler creates a submit handler. metrics may be nil.
func NewSubmitHandler(submitter *relay.Submitter, metrics *observability.Metrics) *SubmitHandler {
	return &SubmitHandler{
		submitter: submitter,
		metrics:   metrics,
	}
}

// Submit handles POST /api/v1/submit. The body is the validated form payload;
// its fields are application-defined and stored on the job row as-is.
// Responses: 200 {ok:true, jobId}; 502 {ok:false, jobId, error} when the
// worker rejected the dispatch (the job row exists, marked error); 500
// {ok:false, error} on store or configuration failure.
func (h *SubmitHandler) Submit(c *gin.Context) {
	var payload domain.JSONMap
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	jobID, err := h.submitter.Submit(c.Request.Context(), payload)

	var dispatchErr *relay.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		if h.metrics != nil {
			h.metrics.DispatchFailuresTotal.Inc()
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":    false,
			"jobId": dispatchErr.JobID,
			"error": dispatchErr.Detail,
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": err.Error(),
		})
	default:
		if h.metrics != nil {
			h.metrics.SubmissionsTotal.Inc()
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":    true,
			"jobId": jobID,
		})
	}
}
