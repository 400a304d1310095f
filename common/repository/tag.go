package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shipstream/tagkeeper/common/db"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
)

// TagRepository handles database operations for tags
type TagRepository struct {
	db *db.DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *db.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Get retrieves a tag by name (exact match)
func (r *TagRepository) Get(ctx context.Context, name string) (*models.Tag, error) {
	query := `
		SELECT tag_name, class, commit_hash, version, message, moved_by, created_at, moved_at
		FROM tag
		WHERE tag_name = $1
	`

	tag := &models.Tag{}
	err := r.db.QueryRow(ctx, query, name).Scan(
		&tag.Name,
		&tag.Class,
		&tag.Commit,
		&tag.Version,
		&tag.Message,
		&tag.MovedBy,
		&tag.CreatedAt,
		&tag.MovedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// List retrieves all tags whose name starts with prefix, ordered by name
func (r *TagRepository) List(ctx context.Context, prefix string) ([]*models.Tag, error) {
	query := `
		SELECT tag_name, class, commit_hash, version, message, moved_by, created_at, moved_at
		FROM tag
		WHERE tag_name LIKE $1 || '%'
		ORDER BY tag_name ASC
	`

	rows, err := r.db.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag := &models.Tag{}
		err := rows.Scan(
			&tag.Name,
			&tag.Class,
			&tag.Commit,
			&tag.Version,
			&tag.Message,
			&tag.MovedBy,
			&tag.CreatedAt,
			&tag.MovedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// Create inserts a new tag
func (r *TagRepository) Create(ctx context.Context, tag *models.Tag) error {
	query := `
		INSERT INTO tag (tag_name, class, commit_hash, version, message, moved_by, created_at, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		tag.Name,
		tag.Class,
		tag.Commit,
		tag.Version,
		tag.Message,
		tag.MovedBy,
		tag.CreatedAt,
		tag.MovedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrTagExists
	}
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}

	return nil
}

// CompareAndSwap performs an optimistic lock update (CAS operation)
func (r *TagRepository) CompareAndSwap(ctx context.Context, name string, expectedVersion int64, to models.CommitHash, message, movedBy string) (bool, error) {
	query := `
		UPDATE tag
		SET commit_hash = $3, message = $4,
		    version = version + 1, moved_by = $5, moved_at = NOW()
		WHERE tag_name = $1 AND version = $2
		RETURNING version
	`

	var newVersion int64
	err := r.db.QueryRow(ctx, query,
		name,
		expectedVersion,
		to,
		message,
		movedBy,
	).Scan(&newVersion)

	if errors.Is(err, pgx.ErrNoRows) {
		// Version changed underneath us, CAS failed
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-swap tag: %w", err)
	}

	return true, nil
}
