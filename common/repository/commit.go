package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
)

// CommitRepository resolves refs against the recorded commit graph
type CommitRepository struct {
	db *db.DB
}

// NewCommitRepository creates a new commit repository
func NewCommitRepository(db *db.DB) *CommitRepository {
	return &CommitRepository{db: db}
}

// Resolve maps a ref (commit hash or registered alias such as a branch
// head) to a commit hash
func (r *CommitRepository) Resolve(ctx context.Context, ref string) (models.CommitHash, error) {
	// Exact hash first
	var hash models.CommitHash
	err := r.db.QueryRow(ctx,
		`SELECT commit_hash FROM commit WHERE commit_hash = $1`, ref,
	).Scan(&hash)
	if err == nil {
		return hash, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to resolve ref: %w", err)
	}

	// Fall back to registered refs
	err = r.db.QueryRow(ctx,
		`SELECT commit_hash FROM commit_ref WHERE ref = $1`, ref,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrCommitNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve ref: %w", err)
	}

	return hash, nil
}

// Describe retrieves commit details by hash
func (r *CommitRepository) Describe(ctx context.Context, hash models.CommitHash) (*models.Commit, error) {
	query := `
		SELECT commit_hash, branch, revert_of, message, created_at
		FROM commit
		WHERE commit_hash = $1
	`

	commit := &models.Commit{}
	err := r.db.QueryRow(ctx, query, hash).Scan(
		&commit.Hash,
		&commit.Branch,
		&commit.RevertOf,
		&commit.Message,
		&commit.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrCommitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to describe commit: %w", err)
	}

	return commit, nil
}

// CreateRevert records an inverse commit of hash on the same branch and
// returns its hash
func (r *CommitRepository) CreateRevert(ctx context.Context, hash models.CommitHash, message string) (models.CommitHash, error) {
	original, err := r.Describe(ctx, hash)
	if err != nil {
		return "", err
	}

	revertHash := models.CommitHash(strings.ReplaceAll(uuid.NewString(), "-", ""))

	query := `
		INSERT INTO commit (commit_hash, branch, revert_of, message, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err = r.db.Exec(ctx, query, revertHash, original.Branch, hash, message)
	if err != nil {
		return "", fmt.Errorf("failed to create revert commit: %w", err)
	}

	return revertHash, nil
}

// Record registers a commit and optional refs pointing at it. Used by the
// ingest endpoint that mirrors the source repository.
func (r *CommitRepository) Record(ctx context.Context, commit *models.Commit, refs ...string) error {
	query := `
		INSERT INTO commit (commit_hash, branch, revert_of, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (commit_hash) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		commit.Hash,
		commit.Branch,
		commit.RevertOf,
		commit.Message,
		commit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record commit: %w", err)
	}

	for _, ref := range refs {
		_, err := r.db.Exec(ctx, `
			INSERT INTO commit_ref (ref, commit_hash)
			VALUES ($1, $2)
			ON CONFLICT (ref) DO UPDATE SET commit_hash = EXCLUDED.commit_hash
		`, ref, commit.Hash)
		if err != nil {
			return fmt.Errorf("failed to record ref %s: %w", ref, err)
		}
	}

	return nil
}
