package models

import (
	"time"

	"github.com/shipstream/tagkeeper/common/taxonomy"
)

// CommitHash is an opaque commit identifier. Tag operations never interpret
// it; resolution goes through the CommitResolver port.
type CommitHash string

func (h CommitHash) String() string { return string(h) }

// Tag is a named pointer into the commit graph.
// Maps to: tag table
type Tag struct {
	// Tag name, class-prefixed
	// Examples: 'v1.2.0', 'env/staging', 'state/staging-success',
	// 'deploy/2026-08-25-run1', 'backup/env/staging/20260825T101500123456789'
	Name string `db:"tag_name" json:"name"`

	// Class parsed once at creation, carried thereafter
	Class taxonomy.Class `db:"class" json:"class"`

	// Commit the tag currently resolves to
	Commit CommitHash `db:"commit_hash" json:"commit"`

	// Optimistic locking version (for CAS moves)
	Version int64 `db:"version" json:"version"`

	// Annotation message
	Message string `db:"message" json:"message,omitempty"`

	// Audit fields
	MovedBy   string    `db:"moved_by" json:"moved_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	MovedAt   time.Time `db:"moved_at" json:"moved_at"`
}

// Movable reports whether this tag may be repointed after creation.
func (t *Tag) Movable() bool {
	return t.Class.IsMovable()
}
