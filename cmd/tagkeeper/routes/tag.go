package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/cmd/tagkeeper/handlers"
)

// RegisterTagRoutes registers all tag namespace routes. Tag names contain
// slashes, so detail routes use wildcard parameters.
func RegisterTagRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTagHandler(c)

	api := e.Group("/api/v1")
	{
		api.GET("/tags", h.ListTags)            // GET  /api/v1/tags?prefix=env/
		api.POST("/tags", h.MoveTag)            // POST /api/v1/tags
		api.GET("/tags/*", h.GetTag)            // GET  /api/v1/tags/env/staging
		api.GET("/history/*", h.GetHistory)     // GET  /api/v1/history/env/staging?limit=10
		api.GET("/validate/*", h.ValidateTag)   // GET  /api/v1/validate/v1.2.0
	}
}
