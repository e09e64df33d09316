// router.go - gin-gonic route table for the HTTP/OpenAPI Adapter (C12),
// grounded on the teacher's cmd/api/main.go router setup: the same CORS
// middleware shape and the same "/" + "/health" probe endpoints, generalized
// from a two-route receipt API to the five-route inspection RPC surface of
// spec.md §6.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/visualaoi/inspector/configs"
)

// NewRouter builds the gin.Engine exposing s's handlers under /api/v1.
func NewRouter(s *Server) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", configs.ALLOWED_ORIGINS)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "visual-aoi-inspector",
			"version": "1.0.0",
		})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/sessions", s.CreateSession)
	v1.DELETE("/sessions/:id", s.DestroySession)
	v1.POST("/sessions/:id/inspect", s.Inspect)
	v1.POST("/process_grouped_inspection", s.GroupedInspect)
	v1.GET("/products/:id/golden", s.ListGolden)

	return router
}
