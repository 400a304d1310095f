// Package store defines the ports the tag subsystem depends on. All
// components depend on these interfaces, never on a concrete binding:
// production wires the Postgres adapters in common/repository, tests wire
// the in-memory fake in this package.
package store

import (
	"context"
	"errors"

	"github.com/shipstream/tagkeeper/common/models"
)

var (
	// ErrTagNotFound is returned when a tag name does not exist.
	ErrTagNotFound = errors.New("tag not found")

	// ErrTagExists is returned by Create when the tag name is taken.
	ErrTagExists = errors.New("tag already exists")

	// ErrCommitNotFound is returned when a ref or hash cannot be resolved.
	// A tag is never created pointing at an unresolvable commit.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrRecordNotFound is returned when a deployment record is missing.
	ErrRecordNotFound = errors.New("deployment record not found")
)

// TagStore is the port over the shared tag namespace. Get/List are the
// TagReader side; Create and CompareAndSwap are the only mutations, and
// CompareAndSwap is the single-ref atomic primitive everything else is
// built on.
type TagStore interface {
	// Get returns the tag or ErrTagNotFound.
	Get(ctx context.Context, name string) (*models.Tag, error)

	// List returns all tags whose name starts with prefix, ordered by name.
	// Empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]*models.Tag, error)

	// Create inserts a new tag; ErrTagExists if the name is taken.
	Create(ctx context.Context, tag *models.Tag) error

	// CompareAndSwap repoints the tag iff its optimistic-lock version still
	// equals expectedVersion. Returns false (no error) on contention.
	CompareAndSwap(ctx context.Context, name string, expectedVersion int64, to models.CommitHash, message, movedBy string) (bool, error)
}

// MovementLog is the append-only audit trail of record for tag movements.
type MovementLog interface {
	// Append records one movement. Entries are never mutated or deleted.
	Append(ctx context.Context, move *models.TagMovement) error

	// History returns movements of tagName, oldest first. limit <= 0 means
	// no limit.
	History(ctx context.Context, tagName string, limit int) ([]*models.TagMovement, error)

	// FindByCommit returns the most recent movement of tagName whose
	// ToCommit equals commit, or ErrRecordNotFound.
	FindByCommit(ctx context.Context, tagName string, commit models.CommitHash) (*models.TagMovement, error)
}

// CommitResolver resolves refs to commits and synthesizes revert commits.
type CommitResolver interface {
	// Resolve maps a ref (hash, branch name, or tag-like alias) to a
	// commit hash, or ErrCommitNotFound.
	Resolve(ctx context.Context, ref string) (models.CommitHash, error)

	// Describe returns commit details, or ErrCommitNotFound.
	Describe(ctx context.Context, hash models.CommitHash) (*models.Commit, error)

	// CreateRevert records an inverse commit of hash on the same branch
	// and returns its hash.
	CreateRevert(ctx context.Context, hash models.CommitHash, message string) (models.CommitHash, error)
}

// DeploymentStore persists deployment records. Method names carry the
// Record suffix so a single fake can implement every port.
type DeploymentStore interface {
	CreateRecord(ctx context.Context, rec *models.DeploymentRecord) error

	// GetRecord returns the record for deploymentID or ErrRecordNotFound.
	GetRecord(ctx context.Context, deploymentID string) (*models.DeploymentRecord, error)

	// UpdateRecord persists status, status message and metadata changes.
	UpdateRecord(ctx context.Context, rec *models.DeploymentRecord) error

	// ListRecordsByEnvironment returns records for env, newest first.
	// limit <= 0 means no limit.
	ListRecordsByEnvironment(ctx context.Context, env string, limit int) ([]*models.DeploymentRecord, error)
}

// FindingsStore answers promotion-gate questions about security and
// compliance findings.
type FindingsStore interface {
	// OpenBlocking returns the number of unresolved high-severity findings
	// attached to commit.
	OpenBlocking(ctx context.Context, commit models.CommitHash) (int, error)
}

// RemotePublisher pushes tags to a named remote. Semantics are identical
// across all tag classes.
type RemotePublisher interface {
	// Push publishes every tag matching pattern (glob over tag names) to
	// remote and returns how many were published.
	Push(ctx context.Context, pattern, remote string) (int, error)
}
