package db

import (
	"context"
	"fmt"
)

// schema is idempotent and applied through the bootstrap DB init hook.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tag (
		tag_name    TEXT PRIMARY KEY,
		class       TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		version     BIGINT NOT NULL DEFAULT 1,
		message     TEXT NOT NULL DEFAULT '',
		moved_by    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		moved_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS tag_class_idx ON tag (class)`,
	`CREATE TABLE IF NOT EXISTS tag_movement (
		id            UUID PRIMARY KEY,
		tag_name      TEXT NOT NULL,
		from_commit   TEXT NOT NULL DEFAULT '',
		to_commit     TEXT NOT NULL,
		deployment_id TEXT NOT NULL DEFAULT '',
		environment   TEXT NOT NULL DEFAULT '',
		region        TEXT NOT NULL DEFAULT '',
		moved_by      TEXT NOT NULL DEFAULT '',
		moved_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS tag_movement_name_idx ON tag_movement (tag_name, moved_at)`,
	`CREATE INDEX IF NOT EXISTS tag_movement_commit_idx ON tag_movement (tag_name, to_commit)`,
	`CREATE TABLE IF NOT EXISTS deployment (
		id             UUID PRIMARY KEY,
		deployment_id  TEXT NOT NULL UNIQUE,
		environment    TEXT NOT NULL,
		region         TEXT NOT NULL DEFAULT '',
		commit_hash    TEXT NOT NULL,
		status         TEXT NOT NULL,
		status_message TEXT NOT NULL DEFAULT '',
		metadata       JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS deployment_env_idx ON deployment (environment, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS commit (
		commit_hash TEXT PRIMARY KEY,
		branch      TEXT NOT NULL DEFAULT '',
		revert_of   TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS commit_ref (
		ref         TEXT PRIMARY KEY,
		commit_hash TEXT NOT NULL REFERENCES commit (commit_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS finding (
		id          BIGSERIAL PRIMARY KEY,
		commit_hash TEXT NOT NULL,
		severity    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		resolved    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS finding_commit_idx ON finding (commit_hash) WHERE NOT resolved`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	db.log.Info("schema up to date")
	return nil
}
