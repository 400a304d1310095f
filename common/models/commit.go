package models

import "time"

// Commit is the resolver-side view of a commit. Commits are immutable once
// recorded, which is what makes read-through caching of lookups sound.
// Maps to: commit table
type Commit struct {
	Hash   CommitHash `db:"commit_hash" json:"hash"`
	Branch string     `db:"branch" json:"branch"`

	// Non-empty when this commit was synthesized as the inverse of another
	// (git_revert rollback strategy)
	RevertOf CommitHash `db:"revert_of" json:"revert_of,omitempty"`

	Message   string    `db:"message" json:"message,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FindingSeverity classifies security/compliance findings attached to a
// commit.
type FindingSeverity string

const (
	SeverityLow      FindingSeverity = "low"
	SeverityMedium   FindingSeverity = "medium"
	SeverityHigh     FindingSeverity = "high"
	SeverityCritical FindingSeverity = "critical"
)

// Blocking reports whether an unresolved finding of this severity blocks
// promotion.
func (s FindingSeverity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Finding is a security or compliance finding attached to a commit.
// Maps to: finding table
type Finding struct {
	ID          int64           `db:"id" json:"id"`
	Commit      CommitHash      `db:"commit_hash" json:"commit"`
	Severity    FindingSeverity `db:"severity" json:"severity"`
	Description string          `db:"description" json:"description"`
	Resolved    bool            `db:"resolved" json:"resolved"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
