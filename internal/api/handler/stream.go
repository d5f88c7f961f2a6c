package handler

import (
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/mizuki/formflow/internal/observability"
	"github.com/mizuki/formflow/internal/relay"
)

// StreamHandler serves the live job event stream over SSE.
type StreamHandler struct {
	streamer *relay.Streamer
	metrics  *observability.Metrics
}

// NewStreamHandler creates a stream handler. metrics may be nil.
func NewStreamHandler(streamer *relay.Streamer, metrics *observability.Metrics) *StreamHandler {
	return &StreamHandler{
		streamer: streamer,
		metrics:  metrics,
	}
}

// Stream handles GET /api/v1/stream?jobId=... as text/event-stream. The
// connection stays open until the streamer emits a terminal event or the
// client goes away; the request context carries the disconnect signal down
// into the streamer.
func (h *StreamHandler) Stream(c *gin.Context) {
	jobID := c.Query("jobId")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "Query parameter 'jobId' is required",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	if h.metrics != nil {
		h.metrics.StreamsActive.Inc()
		defer h.metrics.StreamsActive.Dec()
	}

	emit := func(ev relay.Event) error {
		if err := sse.Encode(c.Writer, sse.Event{
			Event: string(ev.Type),
			Data:  ev.Data,
		}); err != nil {
			return err
		}
		c.Writer.Flush()
		if h.metrics != nil {
			h.metrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		}
		return nil
	}

	// Emit errors mean the transport died mid-write; nothing left to tell
	// the client, the streamer has already released its subscription.
	_ = h.streamer.Run(c.Request.Context(), jobID, emit)
}
