package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/recorder"
	"github.com/shipstream/tagkeeper/common/store"
)

// DeploymentHandler handles deployment record operations
type DeploymentHandler struct {
	container *container.Container
}

// NewDeploymentHandler creates a new deployment handler
func NewDeploymentHandler(c *container.Container) *DeploymentHandler {
	return &DeploymentHandler{container: c}
}

// CreateDeploymentRequest is the body of POST /api/v1/deployments
type CreateDeploymentRequest struct {
	DeploymentID string `json:"deployment_id"`
	Environment  string `json:"environment"`
	Region       string `json:"region"`
	Commit       string `json:"commit"`
}

// SetStatusRequest is the body of POST /api/v1/deployments/:id/status
type SetStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateDeployment records a deployment attempt and its deployment tag
// POST /api/v1/deployments
func (h *DeploymentHandler) CreateDeployment(c echo.Context) error {
	var req CreateDeploymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DeploymentID == "" || req.Environment == "" || req.Commit == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "deployment_id, environment and commit are required")
	}
	if !h.container.Components.Config.KnownEnvironment(req.Environment) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown environment: "+req.Environment)
	}

	rec, err := h.container.Recorder.CreateRecord(c.Request().Context(),
		req.DeploymentID, req.Environment, req.Region, req.Commit)
	switch {
	case errors.Is(err, store.ErrCommitNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		h.container.Components.Logger.Error("failed to create deployment",
			"deployment_id", req.DeploymentID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create deployment")
	}

	return c.JSON(http.StatusCreated, rec)
}

// GetDeployment retrieves a deployment record
// GET /api/v1/deployments/:id
func (h *DeploymentHandler) GetDeployment(c echo.Context) error {
	id := c.Param("id")

	rec, err := h.container.Recorder.Get(c.Request().Context(), id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "deployment not found")
	}
	if err != nil {
		h.container.Components.Logger.Error("failed to get deployment", "deployment_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get deployment")
	}

	return c.JSON(http.StatusOK, rec)
}

// ListDeployments lists deployment records for an environment, newest first
// GET /api/v1/deployments?environment=staging&limit=20
func (h *DeploymentHandler) ListDeployments(c echo.Context) error {
	env := c.QueryParam("environment")
	if env == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "environment query parameter is required")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	records, err := h.container.Recorder.ListByEnvironment(c.Request().Context(), env, limit)
	if err != nil {
		h.container.Components.Logger.Error("failed to list deployments", "environment", env, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list deployments")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"environment": env,
		"deployments": records,
		"count":       len(records),
	})
}

// SetStatus transitions a deployment through its status machine
// POST /api/v1/deployments/:id/status
func (h *DeploymentHandler) SetStatus(c echo.Context) error {
	id := c.Param("id")

	var req SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.container.Recorder.SetStatus(c.Request().Context(), id, status, req.Message)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "deployment not found")
	case errors.Is(err, recorder.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		h.container.Components.Logger.Error("failed to set deployment status",
			"deployment_id", id, "status", status, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set deployment status")
	}

	return c.JSON(http.StatusOK, rec)
}

// PatchMetadata applies an RFC 7386 merge patch to the record metadata
// PATCH /api/v1/deployments/:id/metadata
func (h *DeploymentHandler) PatchMetadata(c echo.Context) error {
	id := c.Param("id")

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil || len(patch) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "merge patch body is required")
	}

	rec, err := h.container.Recorder.PatchMetadata(c.Request().Context(), id, patch)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "deployment not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, rec)
}
