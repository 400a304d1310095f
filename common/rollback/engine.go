// Package rollback executes rollback strategies against the tag namespace
// and records the outcome on the deployment record.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/mover"
	"github.com/shipstream/tagkeeper/common/recorder"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

// Strategy selects how a failed deployment is rolled back.
type Strategy string

const (
	StrategyPreviousTag         Strategy = "previous_tag"
	StrategyGitRevert           Strategy = "git_revert"
	StrategyBlueGreenSwitchback Strategy = "blue_green_switchback"
	StrategyEmergencyRollback   Strategy = "emergency_rollback"
	StrategyManualIntervention  Strategy = "manual_intervention"
)

// Strategies lists every valid strategy, for error messages.
func Strategies() []Strategy {
	return []Strategy{
		StrategyPreviousTag,
		StrategyGitRevert,
		StrategyBlueGreenSwitchback,
		StrategyEmergencyRollback,
		StrategyManualIntervention,
	}
}

// ParseStrategy validates a strategy string.
func ParseStrategy(raw string) (Strategy, error) {
	for _, s := range Strategies() {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown rollback strategy %q (valid: %v)", raw, Strategies())
}

// ErrStrategyUnavailable is returned when a strategy cannot produce a
// rollback target (e.g. no backup for blue-green). The deployment degrades
// to manual_intervention instead of guessing.
var ErrStrategyUnavailable = errors.New("rollback strategy unavailable")

// Outcome describes what a rollback did.
type Outcome struct {
	DeploymentID string                  `json:"deployment_id"`
	Strategy     Strategy                `json:"strategy"`
	Status       models.DeploymentStatus `json:"status"`
	Target       models.CommitHash       `json:"target,omitempty"`
	Detail       string                  `json:"detail,omitempty"`
}

// Engine dispatches rollback strategies.
type Engine struct {
	tags     store.TagStore
	moves    store.MovementLog
	commits  store.CommitResolver
	recorder *recorder.Recorder
	mover    *mover.Mover
	audit    *audit.Writer
	log      *logger.Logger
}

// New creates an engine.
func New(tags store.TagStore, moves store.MovementLog, commits store.CommitResolver, rec *recorder.Recorder, mv *mover.Mover, auditWriter *audit.Writer, log *logger.Logger) *Engine {
	return &Engine{
		tags:     tags,
		moves:    moves,
		commits:  commits,
		recorder: rec,
		mover:    mv,
		audit:    auditWriter,
		log:      log,
	}
}

// Rollback rolls back the named deployment using strategy. Strategies that
// cannot produce a target degrade to manual_intervention and return
// ErrStrategyUnavailable alongside the outcome.
func (e *Engine) Rollback(ctx context.Context, deploymentID string, strategy Strategy) (*Outcome, error) {
	rec, err := e.recorder.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{DeploymentID: deploymentID, Strategy: strategy}

	if strategy == StrategyManualIntervention {
		return e.intervene(ctx, rec, outcome, "manual intervention requested")
	}

	if _, err := e.recorder.SetStatus(ctx, deploymentID, models.StatusRollingBack,
		fmt.Sprintf("rollback via %s", strategy)); err != nil {
		return nil, err
	}

	target, err := e.selectTarget(ctx, rec, strategy)
	if err != nil {
		if errors.Is(err, ErrStrategyUnavailable) {
			out, ierr := e.intervene(ctx, rec, outcome, err.Error())
			if ierr != nil {
				return nil, ierr
			}
			return out, err
		}
		return nil, err
	}
	outcome.Target = target

	// Primary move: environment tag back (or forward, for git_revert) to
	// the rollback target.
	envTag := taxonomy.EnvironmentTag(rec.Environment)
	if _, err := e.moveTag(ctx, rec, envTag, target, fmt.Sprintf("rollback of %s via %s", deploymentID, strategy)); err != nil {
		out, ierr := e.intervene(ctx, rec, outcome, fmt.Sprintf("rollback move failed: %v", err))
		if ierr != nil {
			return nil, ierr
		}
		return out, err
	}

	// Audit-trail tags, independent of the primary environment tag.
	if err := e.writeRollbackMarkers(ctx, rec, target); err != nil {
		return nil, err
	}

	if _, err := e.recorder.SetStatus(ctx, deploymentID, models.StatusRolledBack,
		fmt.Sprintf("rolled back to %s via %s", target, strategy)); err != nil {
		return nil, err
	}

	if err := e.audit.Record(ctx, audit.CategoryMovements, audit.VerbRollback,
		envTag, target.String(), deploymentID, rec.Environment, rec.Region); err != nil {
		return nil, err
	}

	outcome.Status = models.StatusRolledBack
	outcome.Detail = fmt.Sprintf("environment %s rolled back to %s", rec.Environment, target)
	e.log.Info("rollback complete",
		"deployment_id", deploymentID,
		"strategy", strategy,
		"target", target,
	)
	return outcome, nil
}

// selectTarget resolves the commit to roll back to.
func (e *Engine) selectTarget(ctx context.Context, rec *models.DeploymentRecord, strategy Strategy) (models.CommitHash, error) {
	switch strategy {
	case StrategyPreviousTag:
		return e.previousDeploymentTarget(ctx, rec, true)
	case StrategyEmergencyRollback:
		// Emergency mode skips the qualifying-status check: last known
		// position wins.
		return e.previousDeploymentTarget(ctx, rec, false)
	case StrategyGitRevert:
		revert, err := e.commits.CreateRevert(ctx, rec.Commit,
			fmt.Sprintf("revert failed deployment %s", rec.DeploymentID))
		if err != nil {
			return "", fmt.Errorf("create revert commit for %s: %w", rec.Commit, err)
		}
		return revert, nil
	case StrategyBlueGreenSwitchback:
		return e.switchbackTarget(ctx, rec)
	default:
		return "", fmt.Errorf("unknown rollback strategy %q (valid: %v)", strategy, Strategies())
	}
}

// previousDeploymentTarget locates the next-older deployment marker for the
// environment. With requireSuccess, only successful deployments qualify.
func (e *Engine) previousDeploymentTarget(ctx context.Context, rec *models.DeploymentRecord, requireSuccess bool) (models.CommitHash, error) {
	records, err := e.recorder.ListByEnvironment(ctx, rec.Environment, 0)
	if err != nil {
		return "", err
	}

	for _, candidate := range records {
		if candidate.DeploymentID == rec.DeploymentID {
			continue
		}
		if !candidate.CreatedAt.Before(rec.CreatedAt) {
			continue
		}
		if candidate.Commit == rec.Commit {
			continue
		}
		if requireSuccess && candidate.Status != models.StatusSuccess {
			continue
		}
		return candidate.Commit, nil
	}

	return "", fmt.Errorf("%w: no prior qualifying deployment for %s", ErrStrategyUnavailable, rec.Environment)
}

// switchbackTarget restores the backup captured by the mover at the time
// of the failed move.
func (e *Engine) switchbackTarget(ctx context.Context, rec *models.DeploymentRecord) (models.CommitHash, error) {
	envTag := taxonomy.EnvironmentTag(rec.Environment)
	backups, err := e.tags.List(ctx, "backup/"+envTag+"/")
	if err != nil {
		return "", fmt.Errorf("list backups for %s: %w", envTag, err)
	}
	if len(backups) == 0 {
		return "", fmt.Errorf("%w: no backup tag exists for %s", ErrStrategyUnavailable, envTag)
	}

	// Backup names embed a sortable timestamp; the lexically last one is
	// the snapshot taken before the most recent move.
	latest := backups[len(backups)-1]
	if latest.Commit == rec.Commit {
		return "", fmt.Errorf("%w: latest backup of %s still points at the failed commit %s", ErrStrategyUnavailable, envTag, rec.Commit)
	}
	return latest.Commit, nil
}

// writeRollbackMarkers writes state/rollback-initiated and moves the
// dedicated env/rollback-<environment> tag.
func (e *Engine) writeRollbackMarkers(ctx context.Context, rec *models.DeploymentRecord, target models.CommitHash) error {
	if _, err := e.mover.CreateOrMove(ctx, mover.Request{
		Name:         taxonomy.RollbackInitiatedTag,
		Class:        taxonomy.ClassState,
		Target:       target.String(),
		Message:      fmt.Sprintf("rollback of deployment %s", rec.DeploymentID),
		DeploymentID: rec.DeploymentID,
		Environment:  rec.Environment,
		Region:       rec.Region,
		MovedBy:      rec.DeploymentID,
	}); err != nil {
		return fmt.Errorf("write rollback-initiated state: %w", err)
	}

	if _, err := e.mover.CreateOrMove(ctx, mover.Request{
		Name:         taxonomy.RollbackEnvironmentTag(rec.Environment),
		Class:        taxonomy.ClassEnvironment,
		Target:       target.String(),
		Message:      fmt.Sprintf("rollback marker for deployment %s", rec.DeploymentID),
		DeploymentID: rec.DeploymentID,
		Environment:  rec.Environment,
		Region:       rec.Region,
		MovedBy:      rec.DeploymentID,
	}); err != nil {
		return fmt.Errorf("move rollback environment tag: %w", err)
	}

	return nil
}

// moveTag moves an environment tag with deployment context attached.
func (e *Engine) moveTag(ctx context.Context, rec *models.DeploymentRecord, name string, target models.CommitHash, message string) (models.CommitHash, error) {
	return e.mover.CreateOrMove(ctx, mover.Request{
		Name:         name,
		Class:        taxonomy.ClassEnvironment,
		Target:       target.String(),
		Message:      message,
		DeploymentID: rec.DeploymentID,
		Environment:  rec.Environment,
		Region:       rec.Region,
		MovedBy:      rec.DeploymentID,
	})
}

// intervene transitions the deployment to manual_intervention and persists
// an intervention record. Never auto-retried.
func (e *Engine) intervene(ctx context.Context, rec *models.DeploymentRecord, outcome *Outcome, reason string) (*Outcome, error) {
	if _, err := e.recorder.SetStatus(ctx, rec.DeploymentID, models.StatusManualIntervention, reason); err != nil {
		return nil, err
	}

	// The rollback-initiated marker is written for every rollback,
	// including degraded ones; it points at the failed commit since no
	// target exists.
	if _, err := e.mover.CreateOrMove(ctx, mover.Request{
		Name:         taxonomy.RollbackInitiatedTag,
		Class:        taxonomy.ClassState,
		Target:       rec.Commit.String(),
		Message:      fmt.Sprintf("manual intervention for deployment %s", rec.DeploymentID),
		DeploymentID: rec.DeploymentID,
		Environment:  rec.Environment,
		Region:       rec.Region,
		MovedBy:      rec.DeploymentID,
	}); err != nil {
		return nil, fmt.Errorf("write rollback-initiated state: %w", err)
	}

	if err := e.audit.Record(ctx, audit.CategoryMovements, audit.VerbIntervention,
		taxonomy.EnvironmentTag(rec.Environment), rec.Commit.String(),
		rec.DeploymentID, rec.Environment, rec.Region); err != nil {
		return nil, err
	}

	outcome.Status = models.StatusManualIntervention
	outcome.Detail = reason
	e.log.Warn("rollback degraded to manual intervention",
		"deployment_id", rec.DeploymentID,
		"strategy", outcome.Strategy,
		"reason", reason,
	)
	return outcome, nil
}
