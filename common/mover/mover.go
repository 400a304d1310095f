// Package mover implements atomic create-or-move over the tag namespace:
// resolve-first, backup on every movable-tag change, bounded retry on
// contention, movement log append on success.
package mover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

var (
	// ErrAlreadyExistsImmutable is returned when a move targets an existing
	// version/deployment/backup tag without force.
	ErrAlreadyExistsImmutable = errors.New("tag exists and is immutable")

	// ErrRetryExhausted is returned when the retry budget is spent on
	// ref-update contention. Fatal at this layer; the caller's own retry
	// policy may re-run the whole operation.
	ErrRetryExhausted = errors.New("tag move retry budget exhausted")
)

// RetryPolicy bounds CAS retries. Fixed backoff between attempts; tests
// inject zero backoff for determinism.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy tolerates transient contention from concurrent CI
// runners without masking persistent conflicts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 200 * time.Millisecond}
}

// Request describes one create-or-move operation.
type Request struct {
	Name    string
	Class   taxonomy.Class
	Target  string // ref or commit hash, resolved before any mutation
	Message string

	// Force permits repointing an immutable tag. Forced overrides are
	// audited separately with the OVERRIDE verb.
	Force bool

	// Deployment context carried into the movement log and audit trail.
	DeploymentID string
	Environment  string
	Region       string
	MovedBy      string
}

// Mover performs validated, recoverable tag movements.
type Mover struct {
	tags    store.TagStore
	commits store.CommitResolver
	moves   store.MovementLog
	audit   *audit.Writer
	retry   RetryPolicy
	log     *logger.Logger
	now     func() time.Time
}

// New creates a mover. All dependencies are ports; retry is injected so
// tests run with zero backoff.
func New(tags store.TagStore, commits store.CommitResolver, moves store.MovementLog, auditWriter *audit.Writer, retry RetryPolicy, log *logger.Logger) *Mover {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Mover{
		tags:    tags,
		commits: commits,
		moves:   moves,
		audit:   auditWriter,
		retry:   retry,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrMove creates the named tag at the target commit, or moves it
// there if it exists and is movable (or force is set). Idempotent: a tag
// already at the target succeeds without a new backup or movement entry.
func (m *Mover) CreateOrMove(ctx context.Context, req Request) (models.CommitHash, error) {
	// Defensive re-validation: callers should pre-validate, the mover
	// always re-checks before touching storage.
	if err := taxonomy.ValidateName(req.Name, req.Class); err != nil {
		return "", err
	}

	// Resolve first. A tag is never created pointing at a non-existent
	// object.
	target, err := m.commits.Resolve(ctx, req.Target)
	if err != nil {
		return "", fmt.Errorf("resolve target %q: %w", req.Target, err)
	}

	for attempt := 1; ; attempt++ {
		existing, err := m.tags.Get(ctx, req.Name)
		switch {
		case errors.Is(err, store.ErrTagNotFound):
			created, err := m.create(ctx, req, target)
			if err != nil {
				if errors.Is(err, store.ErrTagExists) && attempt < m.retry.MaxAttempts {
					// Lost a creation race; re-read and fall through to the
					// move path.
					time.Sleep(m.retry.Backoff)
					continue
				}
				return "", err
			}
			return created, nil

		case err != nil:
			return "", fmt.Errorf("read tag %s: %w", req.Name, err)
		}

		if existing.Commit == target {
			m.log.Debug("tag already at target", "tag", req.Name, "commit", target)
			return target, nil
		}

		if !existing.Movable() && !req.Force {
			return "", fmt.Errorf("%w: %s (%s) already points at %s; immutable classes: version, deployment, backup",
				ErrAlreadyExistsImmutable, req.Name, existing.Class, existing.Commit)
		}

		swapped, err := m.tags.CompareAndSwap(ctx, req.Name, existing.Version, target, req.Message, req.MovedBy)
		if err != nil {
			return "", fmt.Errorf("move tag %s: %w", req.Name, err)
		}
		if swapped {
			return target, m.finishMove(ctx, req, existing, target)
		}

		if attempt >= m.retry.MaxAttempts {
			return "", fmt.Errorf("%w: %s after %d attempts", ErrRetryExhausted, req.Name, m.retry.MaxAttempts)
		}

		m.log.Warn("tag move contention, retrying",
			"tag", req.Name,
			"attempt", attempt,
			"max_attempts", m.retry.MaxAttempts,
		)
		time.Sleep(m.retry.Backoff)
	}
}

// create handles the tag-does-not-exist path.
func (m *Mover) create(ctx context.Context, req Request, target models.CommitHash) (models.CommitHash, error) {
	now := m.now()
	tag := &models.Tag{
		Name:      req.Name,
		Class:     req.Class,
		Commit:    target,
		Version:   1,
		Message:   req.Message,
		MovedBy:   req.MovedBy,
		CreatedAt: now,
		MovedAt:   now,
	}

	if err := m.tags.Create(ctx, tag); err != nil {
		return "", err
	}

	if err := m.appendMovement(ctx, req, "", target); err != nil {
		return "", err
	}

	if err := m.audit.Record(ctx, categoryFor(req.Class), audit.VerbCreate,
		req.Name, target.String(), req.DeploymentID, req.Environment, req.Region); err != nil {
		return "", err
	}

	m.log.Info("created tag", "tag", req.Name, "class", req.Class, "commit", target)
	return target, nil
}

// finishMove runs the post-swap bookkeeping: backup of the verified
// from-commit, movement log entry, audit line. The swap's version check
// guarantees fromTag.Commit is exactly the value we displaced, so one
// backup exists per actual move even under contention.
func (m *Mover) finishMove(ctx context.Context, req Request, fromTag *models.Tag, target models.CommitHash) error {
	if err := m.writeBackup(ctx, req, fromTag); err != nil {
		return err
	}

	if err := m.appendMovement(ctx, req, fromTag.Commit, target); err != nil {
		return err
	}

	verb := audit.VerbMove
	if req.Force && !fromTag.Movable() {
		verb = audit.VerbOverride
		m.log.Warn("forced move of immutable tag",
			"tag", req.Name,
			"class", fromTag.Class,
			"from", fromTag.Commit,
			"to", target,
		)
	}

	if err := m.audit.Record(ctx, categoryFor(req.Class), verb,
		req.Name, target.String(), req.DeploymentID, req.Environment, req.Region); err != nil {
		return err
	}

	m.log.Info("moved tag", "tag", req.Name, "from", fromTag.Commit, "to", target)
	return nil
}

// writeBackup snapshots the displaced (name, commit) pair into an
// immutable backup tag, uniquely named by timestamp.
func (m *Mover) writeBackup(ctx context.Context, req Request, fromTag *models.Tag) error {
	now := m.now()
	name := BackupTagName(fromTag.Name, now)

	backup := &models.Tag{
		Name:      name,
		Class:     taxonomy.ClassBackup,
		Commit:    fromTag.Commit,
		Version:   1,
		Message:   fmt.Sprintf("backup of %s before move", fromTag.Name),
		MovedBy:   req.MovedBy,
		CreatedAt: now,
		MovedAt:   now,
	}

	if err := m.tags.Create(ctx, backup); err != nil {
		return fmt.Errorf("write backup for %s: %w", fromTag.Name, err)
	}

	if err := m.audit.Record(ctx, audit.CategoryMovements, audit.VerbBackup,
		name, fromTag.Commit.String(), req.DeploymentID, req.Environment, req.Region); err != nil {
		return err
	}

	return nil
}

func (m *Mover) appendMovement(ctx context.Context, req Request, from, to models.CommitHash) error {
	move := &models.TagMovement{
		ID:           uuid.New(),
		TagName:      req.Name,
		FromCommit:   from,
		ToCommit:     to,
		DeploymentID: req.DeploymentID,
		Environment:  req.Environment,
		Region:       req.Region,
		MovedBy:      req.MovedBy,
		MovedAt:      m.now(),
	}

	if err := m.moves.Append(ctx, move); err != nil {
		return fmt.Errorf("append movement for %s: %w", req.Name, err)
	}
	return nil
}

// BackupTagName builds the backup tag name for a protected tag at a point
// in time: backup/<name>/<yyyymmdd>T<hhmmss><nanos>. Nanosecond precision
// keeps names unique across rapid successive moves of the same tag.
func BackupTagName(protected string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("backup/%s/%sT%s%09d",
		protected,
		at.Format("20060102"),
		at.Format("150405"),
		at.Nanosecond(),
	)
}

func categoryFor(class taxonomy.Class) audit.Category {
	switch class {
	case taxonomy.ClassVersion:
		return audit.CategoryVersions
	case taxonomy.ClassState:
		return audit.CategoryStates
	case taxonomy.ClassDeployment:
		return audit.CategoryDeployments
	default:
		return audit.CategoryMovements
	}
}
