package repository

import (
	"context"
	"fmt"

	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/models"
)

// FindingRepository handles database operations for security findings
type FindingRepository struct {
	db *db.DB
}

// NewFindingRepository creates a new finding repository
func NewFindingRepository(db *db.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// OpenBlocking counts unresolved promotion-blocking findings on a commit
func (r *FindingRepository) OpenBlocking(ctx context.Context, commit models.CommitHash) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM finding
		WHERE commit_hash = $1 AND NOT resolved AND severity IN ('high', 'critical')
	`

	var count int
	if err := r.db.QueryRow(ctx, query, commit).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocking findings: %w", err)
	}

	return count, nil
}

// Record registers a finding against a commit
func (r *FindingRepository) Record(ctx context.Context, f *models.Finding) error {
	query := `
		INSERT INTO finding (commit_hash, severity, description, resolved, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		f.Commit,
		f.Severity,
		f.Description,
		f.Resolved,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to record finding: %w", err)
	}

	return nil
}
