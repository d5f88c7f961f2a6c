package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mizuki/formflow/internal/store"
)

// JobHandler exposes read-only job inspection.
type JobHandler struct {
	store store.JobStore
}

// NewJobHandler creates a job inspection handler.
func NewJobHandler(jobStore store.JobStore) *JobHandler {
	return &JobHandler{store: jobStore}
}

// Get handles GET /api/v1/jobs/:id. Debugging aid; the stream is the
// intended consumption path.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}
