package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/cmd/tagkeeper/handlers"
)

// RegisterDeploymentRoutes registers deployment record routes
func RegisterDeploymentRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewDeploymentHandler(c)

	deployments := e.Group("/api/v1/deployments")
	{
		deployments.POST("", h.CreateDeployment)          // POST  /api/v1/deployments
		deployments.GET("", h.ListDeployments)            // GET   /api/v1/deployments?environment=staging
		deployments.GET("/:id", h.GetDeployment)          // GET   /api/v1/deployments/run-42
		deployments.POST("/:id/status", h.SetStatus)      // POST  /api/v1/deployments/run-42/status
		deployments.PATCH("/:id/metadata", h.PatchMetadata) // PATCH /api/v1/deployments/run-42/metadata
	}
}
