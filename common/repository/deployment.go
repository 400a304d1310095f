package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
)

// DeploymentRepository handles database operations for deployment records
type DeploymentRepository struct {
	db *db.DB
}

// NewDeploymentRepository creates a new deployment repository
func NewDeploymentRepository(db *db.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// CreateRecord inserts a new deployment record
func (r *DeploymentRepository) CreateRecord(ctx context.Context, rec *models.DeploymentRecord) error {
	query := `
		INSERT INTO deployment (id, deployment_id, environment, region, commit_hash, status, status_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.DeploymentID,
		rec.Environment,
		rec.Region,
		rec.Commit,
		rec.Status,
		rec.StatusMessage,
		rec.Metadata,
		rec.CreatedAt,
		rec.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create deployment record: %w", err)
	}

	return nil
}

// GetRecord retrieves a deployment record by deployment ID
func (r *DeploymentRepository) GetRecord(ctx context.Context, deploymentID string) (*models.DeploymentRecord, error) {
	query := `
		SELECT id, deployment_id, environment, region, commit_hash, status, status_message, metadata, created_at, updated_at
		FROM deployment
		WHERE deployment_id = $1
	`

	rec := &models.DeploymentRecord{}
	err := r.db.QueryRow(ctx, query, deploymentID).Scan(
		&rec.ID,
		&rec.DeploymentID,
		&rec.Environment,
		&rec.Region,
		&rec.Commit,
		&rec.Status,
		&rec.StatusMessage,
		&rec.Metadata,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment record: %w", err)
	}

	return rec, nil
}

// UpdateRecord persists status, status message and metadata changes
func (r *DeploymentRepository) UpdateRecord(ctx context.Context, rec *models.DeploymentRecord) error {
	query := `
		UPDATE deployment
		SET status = $2, status_message = $3, metadata = $4, updated_at = $5
		WHERE deployment_id = $1
	`

	result, err := r.db.Exec(ctx, query,
		rec.DeploymentID,
		rec.Status,
		rec.StatusMessage,
		rec.Metadata,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update deployment record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrRecordNotFound
	}

	return nil
}

// ListRecordsByEnvironment retrieves deployment records for an environment,
// newest first
func (r *DeploymentRepository) ListRecordsByEnvironment(ctx context.Context, env string, limit int) ([]*models.DeploymentRecord, error) {
	query := `
		SELECT id, deployment_id, environment, region, commit_hash, status, status_message, metadata, created_at, updated_at
		FROM deployment
		WHERE environment = $1
		ORDER BY created_at DESC
	`
	args := []any{env}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployment records: %w", err)
	}
	defer rows.Close()

	var records []*models.DeploymentRecord
	for rows.Next() {
		rec := &models.DeploymentRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.DeploymentID,
			&rec.Environment,
			&rec.Region,
			&rec.Commit,
			&rec.Status,
			&rec.StatusMessage,
			&rec.Metadata,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployment records: %w", err)
	}

	return records, nil
}
