package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/cmd/tagkeeper/container"
	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/publish"
)

// AdminHandler serves operational endpoints: consistency checks, remote
// pushes, and ingest of commits and findings from upstream systems.
type AdminHandler struct {
	container *container.Container
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(c *container.Container) *AdminHandler {
	return &AdminHandler{container: c}
}

// PushRequest is the body of POST /api/v1/push
type PushRequest struct {
	Pattern string `json:"pattern"`
	Remote  string `json:"remote"`
}

// IngestCommitRequest is the body of POST /api/v1/commits
type IngestCommitRequest struct {
	Hash    string   `json:"hash"`
	Branch  string   `json:"branch"`
	Message string   `json:"message"`
	Refs    []string `json:"refs"`
}

// IngestFindingRequest is the body of POST /api/v1/findings
type IngestFindingRequest struct {
	Commit      string `json:"commit"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Validate runs the consistency checker over the whole tag graph
// GET /api/v1/consistency
func (h *AdminHandler) Validate(c echo.Context) error {
	report, err := h.container.Checker.Validate(c.Request().Context())
	if err != nil {
		h.container.Components.Logger.Error("consistency check failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "consistency check failed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":       report.Ok(),
		"errors":   report.Errors,
		"warnings": report.Warnings,
	})
}

// Push publishes matching tags to a remote
// POST /api/v1/push
func (h *AdminHandler) Push(c echo.Context) error {
	if h.container.Publisher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "remote publication is disabled")
	}

	var req PushRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// An omitted pattern pushes every tag.
	if req.Remote == "" {
		req.Remote = h.container.Components.Config.Tags.DefaultRemote
	}

	count, err := h.container.Publisher.Push(c.Request().Context(), req.Pattern, req.Remote)
	if errors.Is(err, publish.ErrPushInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		h.container.Components.Logger.Error("push failed",
			"pattern", req.Pattern, "remote", req.Remote, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "push failed")
	}

	if err := h.container.Audit.Record(c.Request().Context(), audit.CategoryMovements,
		audit.VerbPush, req.Pattern, "", "", "", ""); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "push audit failed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"pattern": req.Pattern,
		"remote":  req.Remote,
		"pushed":  count,
	})
}

// IngestCommit registers a commit (and optional refs) from the source
// repository mirror
// POST /api/v1/commits
func (h *AdminHandler) IngestCommit(c echo.Context) error {
	var req IngestCommitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Hash == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "hash is required")
	}

	commit := &models.Commit{
		Hash:      models.CommitHash(req.Hash),
		Branch:    req.Branch,
		Message:   req.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.container.CommitRepo.Record(c.Request().Context(), commit, req.Refs...); err != nil {
		h.container.Components.Logger.Error("commit ingest failed", "hash", req.Hash, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "commit ingest failed")
	}

	return c.JSON(http.StatusCreated, commit)
}

// IngestFinding registers a security finding against a commit
// POST /api/v1/findings
func (h *AdminHandler) IngestFinding(c echo.Context) error {
	var req IngestFindingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Commit == "" || req.Severity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "commit and severity are required")
	}

	switch models.FindingSeverity(req.Severity) {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown severity: "+req.Severity)
	}

	finding := &models.Finding{
		Commit:      models.CommitHash(req.Commit),
		Severity:    models.FindingSeverity(req.Severity),
		Description: req.Description,
	}
	if err := h.container.FindingRepo.Record(c.Request().Context(), finding); err != nil {
		h.container.Components.Logger.Error("finding ingest failed", "commit", req.Commit, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "finding ingest failed")
	}

	return c.JSON(http.StatusCreated, finding)
}
