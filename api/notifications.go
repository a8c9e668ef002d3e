package api

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/mnemo-app/mnemo/notifications"
)

// StreamEvents handles GET /api/events, an SSE stream of catalog and
// digest notifications
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := h.notifier.Subscribe()
	defer unsubscribe()

	c.SSEvent("message", notifications.Event{Type: notifications.EventConnected})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
