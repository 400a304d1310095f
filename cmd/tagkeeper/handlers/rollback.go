package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/common/recorder"
	"github.com/shipstream/tagkeeper/common/rollback"
	"github.com/shipstream/tagkeeper/common/store"
)

// RollbackHandler executes rollback strategies
type RollbackHandler struct {
	container *container.Container
}

// NewRollbackHandler creates a new rollback handler
func NewRollbackHandler(c *container.Container) *RollbackHandler {
	return &RollbackHandler{container: c}
}

// RollbackRequest is the body of POST /api/v1/deployments/:id/rollback
type RollbackRequest struct {
	Strategy string `json:"strategy"`
}

// Rollback rolls back a deployment using the requested strategy
// POST /api/v1/deployments/:id/rollback
func (h *RollbackHandler) Rollback(c echo.Context) error {
	id := c.Param("id")

	var req RollbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	strategy, err := rollback.ParseStrategy(req.Strategy)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.container.Rollback.Rollback(c.Request().Context(), id, strategy)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "deployment not found")
	case errors.Is(err, recorder.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, rollback.ErrStrategyUnavailable):
		// Degraded to manual intervention; the outcome says so.
		return c.JSON(http.StatusOK, outcome)
	case err != nil:
		h.container.Components.Logger.Error("rollback failed",
			"deployment_id", id, "strategy", strategy, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "rollback failed")
	}

	return c.JSON(http.StatusOK, outcome)
}
