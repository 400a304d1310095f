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

// MovementRepository handles database operations for the tag movement log
type MovementRepository struct {
	db *db.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *db.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Append records one movement. Rows are never updated or deleted.
func (r *MovementRepository) Append(ctx context.Context, move *models.TagMovement) error {
	query := `
		INSERT INTO tag_movement (id, tag_name, from_commit, to_commit, deployment_id, environment, region, moved_by, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		move.ID,
		move.TagName,
		move.FromCommit,
		move.ToCommit,
		move.DeploymentID,
		move.Environment,
		move.Region,
		move.MovedBy,
		move.MovedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append tag movement: %w", err)
	}

	return nil
}

// History retrieves movements of a tag, oldest first. With a positive
// limit the most recent entries are returned, still oldest first.
func (r *MovementRepository) History(ctx context.Context, tagName string, limit int) ([]*models.TagMovement, error) {
	query := `
		SELECT id, tag_name, from_commit, to_commit, deployment_id, environment, region, moved_by, moved_at
		FROM tag_movement
		WHERE tag_name = $1
		ORDER BY moved_at ASC
	`
	args := []any{tagName}

	if limit > 0 {
		query = `
			SELECT id, tag_name, from_commit, to_commit, deployment_id, environment, region, moved_by, moved_at
			FROM (
				SELECT id, tag_name, from_commit, to_commit, deployment_id, environment, region, moved_by, moved_at
				FROM tag_movement
				WHERE tag_name = $1
				ORDER BY moved_at DESC
				LIMIT $2
			) recent
			ORDER BY moved_at ASC
		`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get tag history: %w", err)
	}
	defer rows.Close()

	var history []*models.TagMovement
	for rows.Next() {
		move := &models.TagMovement{}
		err := rows.Scan(
			&move.ID,
			&move.TagName,
			&move.FromCommit,
			&move.ToCommit,
			&move.DeploymentID,
			&move.Environment,
			&move.Region,
			&move.MovedBy,
			&move.MovedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag movement: %w", err)
		}
		history = append(history, move)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tag history: %w", err)
	}

	return history, nil
}

// FindByCommit retrieves the most recent movement of tagName onto commit
func (r *MovementRepository) FindByCommit(ctx context.Context, tagName string, commit models.CommitHash) (*models.TagMovement, error) {
	query := `
		SELECT id, tag_name, from_commit, to_commit, deployment_id, environment, region, moved_by, moved_at
		FROM tag_movement
		WHERE tag_name = $1 AND to_commit = $2
		ORDER BY moved_at DESC
		LIMIT 1
	`

	move := &models.TagMovement{}
	err := r.db.QueryRow(ctx, query, tagName, commit).Scan(
		&move.ID,
		&move.TagName,
		&move.FromCommit,
		&move.ToCommit,
		&move.DeploymentID,
		&move.Environment,
		&move.Region,
		&move.MovedBy,
		&move.MovedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movement by commit: %w", err)
	}

	return move, nil
}
