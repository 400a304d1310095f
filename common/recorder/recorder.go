// Package recorder tracks per-deployment status and mirrors outcomes into
// state tags. Tags are the durable source of truth; the record store is an
// operational and audit convenience.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/mover"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

// ErrInvalidTransition is returned when a status change is not permitted
// by the deployment state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// Recorder creates deployment records, drives their status machine, and
// writes the matching deployment and state tags.
type Recorder struct {
	records store.DeploymentStore
	commits store.CommitResolver
	mover   *mover.Mover
	audit   *audit.Writer
	log     *logger.Logger
	now     func() time.Time
}

// New creates a recorder.
func New(records store.DeploymentStore, commits store.CommitResolver, mv *mover.Mover, auditWriter *audit.Writer, log *logger.Logger) *Recorder {
	return &Recorder{
		records: records,
		commits: commits,
		mover:   mv,
		audit:   auditWriter,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DeploymentTagName derives the immutable per-attempt tag name. Namespaced
// by date plus identifier so concurrent attempts cannot collide.
func DeploymentTagName(deploymentID string, at time.Time) string {
	return fmt.Sprintf("deploy/%s-%s", at.UTC().Format("2006-01-02"), deploymentID)
}

// CreateRecord starts tracking a deployment attempt: resolves the commit,
// persists a pending record, and creates the immutable deployment tag.
func (r *Recorder) CreateRecord(ctx context.Context, deploymentID, environment, region, commitRef string) (*models.DeploymentRecord, error) {
	commit, err := r.commits.Resolve(ctx, commitRef)
	if err != nil {
		return nil, fmt.Errorf("resolve deployment commit %q: %w", commitRef, err)
	}

	now := r.now()
	rec := &models.DeploymentRecord{
		ID:           uuid.New(),
		DeploymentID: deploymentID,
		Environment:  environment,
		Region:       region,
		Commit:       commit,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.records.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create deployment record %s: %w", deploymentID, err)
	}

	_, err = r.mover.CreateOrMove(ctx, mover.Request{
		Name:         DeploymentTagName(deploymentID, now),
		Class:        taxonomy.ClassDeployment,
		Target:       commit.String(),
		Message:      fmt.Sprintf("deployment %s to %s", deploymentID, environment),
		DeploymentID: deploymentID,
		Environment:  environment,
		Region:       region,
		MovedBy:      deploymentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create deployment tag for %s: %w", deploymentID, err)
	}

	r.log.Info("deployment recorded",
		"deployment_id", deploymentID,
		"environment", environment,
		"commit", commit,
	)
	return rec, nil
}

// Get returns the record for deploymentID.
func (r *Recorder) Get(ctx context.Context, deploymentID string) (*models.DeploymentRecord, error) {
	return r.records.GetRecord(ctx, deploymentID)
}

// ListByEnvironment returns records for env, newest first.
func (r *Recorder) ListByEnvironment(ctx context.Context, env string, limit int) ([]*models.DeploymentRecord, error) {
	return r.records.ListRecordsByEnvironment(ctx, env, limit)
}

// SetStatus transitions the record and mirrors terminal deploy outcomes
// into state tags, so promotion and rollback decisions can be answered
// purely from the tag graph.
func (r *Recorder) SetStatus(ctx context.Context, deploymentID string, status models.DeploymentStatus, message string) (*models.DeploymentRecord, error) {
	rec, err := r.records.GetRecord(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if !rec.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w for %s: %s -> %s", ErrInvalidTransition, deploymentID, rec.Status, status)
	}

	rec.Status = status
	rec.StatusMessage = message
	rec.UpdatedAt = r.now()

	if err := r.records.UpdateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("update deployment record %s: %w", deploymentID, err)
	}

	switch status {
	case models.StatusSuccess:
		err = r.mirrorState(ctx, rec, "success")
	case models.StatusFailed:
		err = r.mirrorState(ctx, rec, "failed")
	case models.StatusManualIntervention:
		err = r.audit.Record(ctx, audit.CategoryStates, audit.VerbIntervention,
			"", rec.Commit.String(), rec.DeploymentID, rec.Environment, rec.Region)
	}
	if err != nil {
		return nil, err
	}

	r.log.Info("deployment status changed",
		"deployment_id", deploymentID,
		"status", status,
		"message", message,
	)
	return rec, nil
}

// PatchMetadata applies an RFC 7386 merge patch to the record's metadata
// document.
func (r *Recorder) PatchMetadata(ctx context.Context, deploymentID string, patch []byte) (*models.DeploymentRecord, error) {
	rec, err := r.records.GetRecord(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	base := rec.Metadata
	if len(base) == 0 {
		base = []byte(`{}`)
	}

	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return nil, fmt.Errorf("merge metadata patch for %s: %w", deploymentID, err)
	}

	rec.Metadata = merged
	rec.UpdatedAt = r.now()
	if err := r.records.UpdateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("update deployment record %s: %w", deploymentID, err)
	}

	return rec, nil
}

// mirrorState writes state/<environment>-<outcome>, overwriting whatever
// the previous attempt left there.
func (r *Recorder) mirrorState(ctx context.Context, rec *models.DeploymentRecord, outcome string) error {
	_, err := r.mover.CreateOrMove(ctx, mover.Request{
		Name:         taxonomy.StateTag(rec.Environment, outcome),
		Class:        taxonomy.ClassState,
		Target:       rec.Commit.String(),
		Message:      fmt.Sprintf("deployment %s %s", rec.DeploymentID, outcome),
		DeploymentID: rec.DeploymentID,
		Environment:  rec.Environment,
		Region:       rec.Region,
		MovedBy:      rec.DeploymentID,
	})
	if err != nil {
		return fmt.Errorf("mirror %s state for %s: %w", outcome, rec.DeploymentID, err)
	}
	return nil
}
