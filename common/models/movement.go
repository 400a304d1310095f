package models

import (
	"time"

	"github.com/google/uuid"
)

// TagMovement is an audit log entry for tag movements. Append-only: rows
// are never mutated or deleted. Environment-tag history is reconstructed
// from these entries.
// Maps to: tag_movement table
type TagMovement struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Tag that was created or moved
	TagName string `db:"tag_name" json:"tag_name"`

	// Previous commit (empty on first creation)
	FromCommit CommitHash `db:"from_commit" json:"from_commit,omitempty"`

	// New commit
	ToCommit CommitHash `db:"to_commit" json:"to_commit"`

	// Deployment context, empty for moves outside a deployment
	DeploymentID string `db:"deployment_id" json:"deployment_id,omitempty"`
	Environment  string `db:"environment" json:"environment,omitempty"`
	Region       string `db:"region" json:"region,omitempty"`

	MovedBy string    `db:"moved_by" json:"moved_by,omitempty"`
	MovedAt time.Time `db:"moved_at" json:"moved_at"`
}
