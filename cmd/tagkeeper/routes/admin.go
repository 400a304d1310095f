package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/cmd/tagkeeper/handlers"
)

// RegisterAdminRoutes registers operational routes
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAdminHandler(c)

	api := e.Group("/api/v1")
	{
		api.GET("/consistency", h.Validate)   // GET  /api/v1/consistency
		api.POST("/push", h.Push)             // POST /api/v1/push
		api.POST("/commits", h.IngestCommit)  // POST /api/v1/commits
		api.POST("/findings", h.IngestFinding) // POST /api/v1/findings
	}
}
