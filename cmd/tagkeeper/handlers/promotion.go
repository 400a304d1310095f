package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/common/store"
)

// PromotionHandler answers promotion gate checks
type PromotionHandler struct {
	container *container.Container
}

// NewPromotionHandler creates a new promotion handler
func NewPromotionHandler(c *container.Container) *PromotionHandler {
	return &PromotionHandler{container: c}
}

// CanPromoteRequest is the body of POST /api/v1/promotions/check
type CanPromoteRequest struct {
	Commit  string `json:"commit"`
	FromEnv string `json:"from_env"`
	ToEnv   string `json:"to_env"`
}

// CanPromote evaluates the promotion gate for a commit between environments
// POST /api/v1/promotions/check
func (h *PromotionHandler) CanPromote(c echo.Context) error {
	var req CanPromoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Commit == "" || req.FromEnv == "" || req.ToEnv == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "commit, from_env and to_env are required")
	}

	cfg := h.container.Components.Config
	if !cfg.KnownEnvironment(req.FromEnv) || !cfg.KnownEnvironment(req.ToEnv) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown environment")
	}

	decision, err := h.container.Gate.CanPromote(c.Request().Context(), req.Commit, req.FromEnv, req.ToEnv)
	switch {
	case errors.Is(err, store.ErrCommitNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		h.container.Components.Logger.Error("promotion check failed",
			"commit", req.Commit, "from", req.FromEnv, "to", req.ToEnv, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "promotion check failed")
	}

	return c.JSON(http.StatusOK, decision)
}
