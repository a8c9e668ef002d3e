package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches all API routes to the router
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/digest/digesters", h.GetDigesters)
	api.GET("/digest/stats", h.GetDigestStats)
	api.GET("/digest/file/*path", h.GetDigestsForFile)
	api.POST("/digest/file/*path", h.TriggerDigest)
	api.GET("/digest/blob/:id", h.GetDigestBlob)

	api.GET("/files/*path", h.GetFile)

	api.GET("/search", h.Search)

	api.GET("/events", h.StreamEvents)
}
