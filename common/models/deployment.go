package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus is the per-deployment state machine.
type DeploymentStatus string

const (
	StatusPending            DeploymentStatus = "pending"
	StatusInProgress         DeploymentStatus = "in_progress"
	StatusSuccess            DeploymentStatus = "success"
	StatusFailed             DeploymentStatus = "failed"
	StatusRollingBack        DeploymentStatus = "rolling_back"
	StatusRolledBack         DeploymentStatus = "rolled_back"
	StatusManualIntervention DeploymentStatus = "manual_intervention"
)

// validTransitions encodes the deployment state machine:
// pending -> in_progress|failed; in_progress -> success|failed;
// failed -> rolling_back|manual_intervention;
// rolling_back -> rolled_back|manual_intervention.
var validTransitions = map[DeploymentStatus][]DeploymentStatus{
	StatusPending:     {StatusInProgress, StatusFailed},
	StatusInProgress:  {StatusSuccess, StatusFailed},
	StatusFailed:      {StatusRollingBack, StatusManualIntervention},
	StatusRollingBack: {StatusRolledBack, StatusManualIntervention},
}

// CanTransition reports whether moving from s to next is legal.
func (s DeploymentStatus) CanTransition(next DeploymentStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s DeploymentStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// ParseStatus validates a status string against the closed set.
func ParseStatus(raw string) (DeploymentStatus, error) {
	switch s := DeploymentStatus(raw); s {
	case StatusPending, StatusInProgress, StatusSuccess, StatusFailed,
		StatusRollingBack, StatusRolledBack, StatusManualIntervention:
		return s, nil
	default:
		return "", fmt.Errorf("unknown deployment status %q", raw)
	}
}

// DeploymentRecord tracks one deployment attempt. Single writer per
// DeploymentID; mutated in place by status transitions. The tag graph is
// the durable source of truth, the record store is an operational and
// audit convenience.
// Maps to: deployment table
type DeploymentRecord struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	DeploymentID string           `db:"deployment_id" json:"deployment_id"`
	Environment  string           `db:"environment" json:"environment"`
	Region       string           `db:"region" json:"region,omitempty"`
	Commit       CommitHash       `db:"commit_hash" json:"commit"`
	Status       DeploymentStatus `db:"status" json:"status"`

	// Free-form operational metadata, merge-patchable over the API
	Metadata []byte `db:"metadata" json:"metadata,omitempty"`

	// Last status message (failure detail, intervention note)
	StatusMessage string `db:"status_message" json:"status_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
