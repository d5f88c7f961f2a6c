package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mizuki/formflow/internal/observability"
	"github.com/mizuki/formflow/internal/relay"
	"github.com/mizuki/formflow/internal/store"
)

// CallbackHandler receives progress/result updates from the external worker.
type CallbackHandler struct {
	callback *relay.Callback
	metrics  *observability.Metrics
}

// NewCallbackHandler creates a callback handler. metrics may be nil.
func NewCallbackHandler(callback *relay.Callback, metrics *observability.Metrics) *CallbackHandler {
	return &CallbackHandler{
		callback: callback,
		metrics:  metrics,
	}
}

// Callback handles POST /api/v1/callback. Body fields are merged partially:
// absent fields never touch the row. Responses: 200 {ok:true}; 401 bad
// secret; 400 missing jobId or invalid field; 404 unknown job; 409 job
// already terminal; 500 store write failure.
func (h *CallbackHandler) Callback(c *gin.Context) {
	var req relay.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.count("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	_, err := h.callback.Handle(c.Request.Context(), &req)
	switch {
	case err == nil:
		h.count("applied")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, relay.ErrUnauthorized):
		h.count("unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
	case errors.Is(err, relay.ErrMissingJobID), errors.Is(err, relay.ErrInvalidStatus):
		h.count("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		h.count("not_found")
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
	case errors.Is(err, store.ErrTerminal):
		h.count("terminal")
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "job already finished"})
	default:
		h.count("store_error")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
	}
}

func (h *CallbackHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.CallbacksTotal.WithLabelValues(outcome).Inc()
	}
}
