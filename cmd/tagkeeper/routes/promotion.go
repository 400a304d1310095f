package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/cmd/tagkeeper/handlers"
)

// RegisterPromotionRoutes registers promotion gate routes
func RegisterPromotionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPromotionHandler(c)

	e.POST("/api/v1/promotions/check", h.CanPromote) // POST /api/v1/promotions/check
}
