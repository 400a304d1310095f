package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/cmd/tagkeeper/handlers"
)

// RegisterRollbackRoutes registers rollback routes
func RegisterRollbackRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRollbackHandler(c)

	e.POST("/api/v1/deployments/:id/rollback", h.Rollback) // POST /api/v1/deployments/run-42/rollback
}
