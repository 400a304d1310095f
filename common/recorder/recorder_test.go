package recorder

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/mover"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "error", "json")
}

func newTestRecorder(t *testing.T, mem *store.Memory) *Recorder {
	t.Helper()
	auditWriter, err := audit.NewWriter(t.TempDir(), nil, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { auditWriter.Close() })

	mv := mover.New(mem, mem, mem, auditWriter, mover.RetryPolicy{MaxAttempts: 3}, testLogger())
	return New(mem, mem, mv, auditWriter, testLogger())
}

func TestCreateRecordWritesDeploymentTag(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main", "main")
	rec := newTestRecorder(t, mem)
	ctx := context.Background()

	record, err := rec.CreateRecord(ctx, "run-42", "staging", "us-east-1", "main")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Equal(t, models.CommitHash("abc123"), record.Commit)

	// The immutable per-attempt deployment tag exists at the same commit.
	tagName := DeploymentTagName("run-42", record.CreatedAt)
	tag, err := mem.Get(ctx, tagName)
	require.NoError(t, err)
	assert.Equal(t, taxonomy.ClassDeployment, tag.Class)
	assert.Equal(t, models.CommitHash("abc123"), tag.Commit)
}

func TestCreateRecordRejectsUnresolvableCommit(t *testing.T) {
	mem := store.NewMemory()
	rec := newTestRecorder(t, mem)

	_, err := rec.CreateRecord(context.Background(), "run-42", "staging", "", "missing")
	require.ErrorIs(t, err, store.ErrCommitNotFound)

	_, err = rec.Get(context.Background(), "run-42")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestStatusMachine(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	rec := newTestRecorder(t, mem)
	ctx := context.Background()

	_, err := rec.CreateRecord(ctx, "run-42", "staging", "", "abc123")
	require.NoError(t, err)

	// pending -> success is illegal.
	_, err = rec.SetStatus(ctx, "run-42", models.StatusSuccess, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = rec.SetStatus(ctx, "run-42", models.StatusInProgress, "")
	require.NoError(t, err)

	record, err := rec.SetStatus(ctx, "run-42", models.StatusSuccess, "all checks green")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, record.Status)
	assert.Equal(t, "all checks green", record.StatusMessage)

	// Terminal: nothing moves out of success.
	_, err = rec.SetStatus(ctx, "run-42", models.StatusFailed, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSuccessMirrorsStateTag(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	rec := newTestRecorder(t, mem)
	ctx := context.Background()

	_, err := rec.CreateRecord(ctx, "run-42", "staging", "", "abc123")
	require.NoError(t, err)
	_, err = rec.SetStatus(ctx, "run-42", models.StatusInProgress, "")
	require.NoError(t, err)
	_, err = rec.SetStatus(ctx, "run-42", models.StatusSuccess, "")
	require.NoError(t, err)

	tag, err := mem.Get(ctx, "state/staging-success")
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("abc123"), tag.Commit)
}

func TestFailureMirrorOverwritesPreviousOutcome(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	rec := newTestRecorder(t, mem)
	ctx := context.Background()

	_, err := rec.CreateRecord(ctx, "run-1", "staging", "", "commit-1")
	require.NoError(t, err)
	_, err = rec.SetStatus(ctx, "run-1", models.StatusInProgress, "")
	require.NoError(t, err)
	_, err = rec.SetStatus(ctx, "run-1", models.StatusFailed, "smoke tests failed")
	require.NoError(t, err)

	failed, err := mem.Get(ctx, "state/staging-failed")
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-1"), failed.Commit)

	// A later attempt's failure moves the same tag (last write wins).
	_, err = rec.CreateRecord(ctx, "run-2", "staging", "", "commit-2")
	require.NoError(t, err)
	_, err = rec.SetStatus(ctx, "run-2", models.StatusInProgress, "")
	require.NoError(t, err)
	_, err = rec.SetStatus(ctx, "run-2", models.StatusFailed, "worse")
	require.NoError(t, err)

	failed, err = mem.Get(ctx, "state/staging-failed")
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-2"), failed.Commit)
}

func TestListByEnvironmentNewestFirst(t *testing.T) {
	mem := store.NewMemory()
	rec := newTestRecorder(t, mem)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, mem.CreateRecord(ctx, &models.DeploymentRecord{
			DeploymentID: id,
			Environment:  "staging",
			Commit:       models.CommitHash("c" + id),
			Status:       models.StatusSuccess,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := rec.ListByEnvironment(ctx, "staging", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-3", records[0].DeploymentID)
	assert.Equal(t, "run-2", records[1].DeploymentID)
}

func TestPatchMetadata(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	rec := newTestRecorder(t, mem)
	ctx := context.Background()

	_, err := rec.CreateRecord(ctx, "run-42", "staging", "", "abc123")
	require.NoError(t, err)

	record, err := rec.PatchMetadata(ctx, "run-42", []byte(`{"ticket":"OPS-1","canary":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticket":"OPS-1","canary":true}`, string(record.Metadata))

	// Merge semantics: null deletes, other keys survive.
	record, err = rec.PatchMetadata(ctx, "run-42", []byte(`{"canary":null,"ticket":"OPS-2"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticket":"OPS-2"}`, string(record.Metadata))
}

func TestDeploymentTagName(t *testing.T) {
	at := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	name := DeploymentTagName("run1", at)
	assert.Equal(t, "deploy/2026-08-25-run1", name)
	require.NoError(t, taxonomy.ValidateName(name, taxonomy.ClassDeployment))
}
