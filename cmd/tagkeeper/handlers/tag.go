package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/common/mover"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

// TagHandler handles tag namespace operations
type TagHandler struct {
	container *container.Container
}

// NewTagHandler creates a new tag handler
func NewTagHandler(c *container.Container) *TagHandler {
	return &TagHandler{container: c}
}

// MoveTagRequest is the body of POST /api/v1/tags
type MoveTagRequest struct {
	Name         string `json:"name"`
	Target       string `json:"target"`
	Message      string `json:"message"`
	Force        bool   `json:"force"`
	DeploymentID string `json:"deployment_id"`
	Environment  string `json:"environment"`
	Region       string `json:"region"`
	MovedBy      string `json:"moved_by"`
}

// ListTags lists tags, optionally filtered by prefix
// GET /api/v1/tags?prefix=env/
func (h *TagHandler) ListTags(c echo.Context) error {
	prefix := c.QueryParam("prefix")

	tags, err := h.container.TagRepo.List(c.Request().Context(), prefix)
	if err != nil {
		h.container.Components.Logger.Error("failed to list tags", "prefix", prefix, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tags")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tags":  tags,
		"count": len(tags),
	})
}

// GetTag retrieves a specific tag. Tag names contain slashes, so the
// route uses a wildcard parameter.
// GET /api/v1/tags/env/staging
func (h *TagHandler) GetTag(c echo.Context) error {
	name := c.Param("*")

	tag, err := h.container.TagRepo.Get(c.Request().Context(), name)
	if errors.Is(err, store.ErrTagNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tag not found")
	}
	if err != nil {
		h.container.Components.Logger.Error("failed to get tag", "tag", name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get tag")
	}

	return c.JSON(http.StatusOK, tag)
}

// MoveTag creates a tag or moves it to a new commit
// POST /api/v1/tags
func (h *TagHandler) MoveTag(c echo.Context) error {
	var req MoveTagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and target are required")
	}

	class, err := taxonomy.Parse(req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	commit, err := h.container.Mover.CreateOrMove(c.Request().Context(), mover.Request{
		Name:         req.Name,
		Class:        class,
		Target:       req.Target,
		Message:      req.Message,
		Force:        req.Force,
		DeploymentID: req.DeploymentID,
		Environment:  req.Environment,
		Region:       req.Region,
		MovedBy:      req.MovedBy,
	})
	switch {
	case errors.Is(err, taxonomy.ErrInvalidName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrCommitNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, mover.ErrAlreadyExistsImmutable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, mover.ErrRetryExhausted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		h.container.Components.Logger.Error("failed to move tag", "tag", req.Name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to move tag")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tag":    req.Name,
		"class":  class,
		"commit": commit,
	})
}

// GetHistory retrieves the movement history of a tag, oldest first
// GET /api/v1/history/env/staging?limit=10
func (h *TagHandler) GetHistory(c echo.Context) error {
	name := c.Param("*")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	history, err := h.container.MovementRepo.History(c.Request().Context(), name, limit)
	if err != nil {
		h.container.Components.Logger.Error("failed to get tag history", "tag", name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get tag history")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tag":     name,
		"history": history,
		"count":   len(history),
	})
}

// ValidateTag checks a tag name against its class format without touching
// storage
// GET /api/v1/validate/env/staging
func (h *TagHandler) ValidateTag(c echo.Context) error {
	name := c.Param("*")

	class, err := taxonomy.Parse(name)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"name":  name,
			"valid": false,
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":    name,
		"valid":   true,
		"class":   class,
		"movable": class.IsMovable(),
	})
}
