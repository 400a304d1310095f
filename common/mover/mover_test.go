package mover

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "error", "json")
}

func testRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 0}
}

func newTestMover(t *testing.T, mem *store.Memory) *Mover {
	t.Helper()
	auditWriter, err := audit.NewWriter(t.TempDir(), nil, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { auditWriter.Close() })
	return New(mem, mem, mem, auditWriter, testRetry(), testLogger())
}

func listBackups(t *testing.T, mem *store.Memory, protected string) []*models.Tag {
	t.Helper()
	backups, err := mem.List(context.Background(), "backup/"+protected+"/")
	require.NoError(t, err)
	return backups
}

func TestCreateTag(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	mv := newTestMover(t, mem)

	commit, err := mv.CreateOrMove(context.Background(), Request{
		Name:   "v1.0.0",
		Class:  taxonomy.ClassVersion,
		Target: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("abc123"), commit)

	tag, err := mem.Get(context.Background(), "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, taxonomy.ClassVersion, tag.Class)
	assert.Equal(t, int64(1), tag.Version)

	// Creation appends a movement with an empty from-commit.
	history, err := mem.History(context.Background(), "v1.0.0", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].FromCommit)
	assert.Equal(t, models.CommitHash("abc123"), history[0].ToCommit)

	// No backup on creation.
	assert.Empty(t, listBackups(t, mem, "v1.0.0"))
}

func TestCreateRejectsUnresolvableTarget(t *testing.T) {
	mem := store.NewMemory()
	mv := newTestMover(t, mem)

	_, err := mv.CreateOrMove(context.Background(), Request{
		Name:   "v1.0.0",
		Class:  taxonomy.ClassVersion,
		Target: "nope",
	})
	require.ErrorIs(t, err, store.ErrCommitNotFound)

	_, err = mem.Get(context.Background(), "v1.0.0")
	assert.ErrorIs(t, err, store.ErrTagNotFound)
}

func TestCreateRejectsInvalidName(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	mv := newTestMover(t, mem)

	_, err := mv.CreateOrMove(context.Background(), Request{
		Name:   "v1.0",
		Class:  taxonomy.ClassVersion,
		Target: "abc123",
	})
	require.ErrorIs(t, err, taxonomy.ErrInvalidName)
}

func TestMoveWritesBackupAndMovement(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	mv := newTestMover(t, mem)
	ctx := context.Background()

	_, err := mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-1",
	})
	require.NoError(t, err)

	_, err = mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-2",
		DeploymentID: "run-7", Environment: "staging", Region: "us-east-1",
	})
	require.NoError(t, err)

	tag, err := mem.Get(ctx, "env/staging")
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-2"), tag.Commit)
	assert.Equal(t, int64(2), tag.Version)

	// Exactly one backup, capturing the displaced commit, immutable.
	backups := listBackups(t, mem, "env/staging")
	require.Len(t, backups, 1)
	assert.Equal(t, models.CommitHash("commit-1"), backups[0].Commit)
	assert.Equal(t, taxonomy.ClassBackup, backups[0].Class)
	require.NoError(t, taxonomy.ValidateName(backups[0].Name, taxonomy.ClassBackup))

	// Movement log carries the deployment context.
	history, err := mem.History(ctx, "env/staging", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	last := history[len(history)-1]
	assert.Equal(t, models.CommitHash("commit-1"), last.FromCommit)
	assert.Equal(t, models.CommitHash("commit-2"), last.ToCommit)
	assert.Equal(t, "run-7", last.DeploymentID)
	assert.Equal(t, "us-east-1", last.Region)
}

func TestMoveIsIdempotentAtTarget(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mv := newTestMover(t, mem)
	ctx := context.Background()

	_, err := mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-1",
	})
	require.NoError(t, err)

	commit, err := mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-1"), commit)

	// No new backup, no new movement.
	assert.Empty(t, listBackups(t, mem, "env/staging"))
	history, err := mem.History(ctx, "env/staging", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestImmutableTagRejectsMove(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	mv := newTestMover(t, mem)
	ctx := context.Background()

	_, err := mv.CreateOrMove(ctx, Request{
		Name: "v1.0.0", Class: taxonomy.ClassVersion, Target: "commit-1",
	})
	require.NoError(t, err)

	_, err = mv.CreateOrMove(ctx, Request{
		Name: "v1.0.0", Class: taxonomy.ClassVersion, Target: "commit-2",
	})
	require.ErrorIs(t, err, ErrAlreadyExistsImmutable)

	// Original position intact.
	tag, err := mem.Get(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-1"), tag.Commit)
}

func TestForcedMoveOfImmutableTag(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	mv := newTestMover(t, mem)
	ctx := context.Background()

	_, err := mv.CreateOrMove(ctx, Request{
		Name: "v1.0.0", Class: taxonomy.ClassVersion, Target: "commit-1",
	})
	require.NoError(t, err)

	commit, err := mv.CreateOrMove(ctx, Request{
		Name: "v1.0.0", Class: taxonomy.ClassVersion, Target: "commit-2", Force: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-2"), commit)

	// Forced overrides still take a backup of the displaced commit.
	backups := listBackups(t, mem, "v1.0.0")
	require.Len(t, backups, 1)
	assert.Equal(t, models.CommitHash("commit-1"), backups[0].Commit)
}

// contendedTags loses the first CAS to a concurrent writer that repoints
// the tag underneath us.
type contendedTags struct {
	*store.Memory
	interfered bool
	other      models.CommitHash
}

func (c *contendedTags) CompareAndSwap(ctx context.Context, name string, expectedVersion int64, to models.CommitHash, message, movedBy string) (bool, error) {
	if !c.interfered {
		c.interfered = true
		swapped, err := c.Memory.CompareAndSwap(ctx, name, expectedVersion, c.other, "concurrent move", "rival")
		if err != nil || !swapped {
			panic("test interference failed")
		}
		// Our caller's version is now stale.
		return c.Memory.CompareAndSwap(ctx, name, expectedVersion, to, message, movedBy)
	}
	return c.Memory.CompareAndSwap(ctx, name, expectedVersion, to, message, movedBy)
}

func TestContendedMoveRetriesAndBacksUpVerifiedCommit(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	mem.AddCommit("commit-3", "main")
	tags := &contendedTags{Memory: mem, other: "commit-3"}

	auditWriter, err := audit.NewWriter(t.TempDir(), nil, testLogger())
	require.NoError(t, err)
	defer auditWriter.Close()
	mv := New(tags, mem, mem, auditWriter, testRetry(), testLogger())
	ctx := context.Background()

	_, err = mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-1",
	})
	require.NoError(t, err)

	commit, err := mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitHash("commit-2"), commit)

	// One backup for our one successful move, and it records the commit we
	// actually displaced (the rival's), not the one we first read.
	backups := listBackups(t, mem, "env/staging")
	require.Len(t, backups, 1)
	assert.Equal(t, models.CommitHash("commit-3"), backups[0].Commit)
}

// stuckTags always fails CAS with no error, as under heavy contention.
type stuckTags struct {
	*store.Memory
	attempts int
}

func (s *stuckTags) CompareAndSwap(ctx context.Context, name string, expectedVersion int64, to models.CommitHash, message, movedBy string) (bool, error) {
	s.attempts++
	return false, nil
}

func TestRetryBudgetExhausted(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	tags := &stuckTags{Memory: mem}

	auditWriter, err := audit.NewWriter(t.TempDir(), nil, testLogger())
	require.NoError(t, err)
	defer auditWriter.Close()
	mv := New(tags, mem, mem, auditWriter, testRetry(), testLogger())
	ctx := context.Background()

	_, err = mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-1",
	})
	require.NoError(t, err)

	_, err = mv.CreateOrMove(ctx, Request{
		Name: "env/staging", Class: taxonomy.ClassEnvironment, Target: "commit-2",
	})
	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, 3, tags.attempts)
}

func TestConcurrentMoversOneBackupPerMove(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("commit-0", "main")
	mem.AddCommit("commit-1", "main")
	mem.AddCommit("commit-2", "main")
	ctx := context.Background()

	auditWriter, err := audit.NewWriter(t.TempDir(), nil, testLogger())
	require.NoError(t, err)
	defer auditWriter.Close()

	_, err = New(mem, mem, mem, auditWriter, testRetry(), testLogger()).CreateOrMove(ctx, Request{
		Name: "env/production", Class: taxonomy.ClassEnvironment, Target: "commit-0",
	})
	require.NoError(t, err)

	// Two movers race for the same tag; the loser's CAS fails and it
	// retries against the fresh position.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, target := range []string{"commit-1", "commit-2"} {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			mv := New(mem, mem, mem, auditWriter, testRetry(), testLogger())
			_, errs[i] = mv.CreateOrMove(ctx, Request{
				Name: "env/production", Class: taxonomy.ClassEnvironment, Target: target,
			})
		}(i, target)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	tag, err := mem.Get(ctx, "env/production")
	require.NoError(t, err)
	assert.Contains(t, []models.CommitHash{"commit-1", "commit-2"}, tag.Commit)

	// One backup per actual move, each recording the commit that move
	// displaced: the starting position and the first winner's target.
	backups := listBackups(t, mem, "env/production")
	require.Len(t, backups, 2)
	displaced := map[models.CommitHash]bool{}
	for _, b := range backups {
		displaced[b.Commit] = true
	}
	assert.True(t, displaced["commit-0"])
	assert.False(t, displaced[tag.Commit], "final position must not be backed up")
	assert.Len(t, displaced, 2)

	history, err := mem.History(ctx, "env/production", 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestBackupTagName(t *testing.T) {
	at := time.Date(2026, 8, 25, 10, 15, 0, 123456789, time.UTC)
	name := BackupTagName("env/staging", at)
	assert.Equal(t, "backup/env/staging/20260825T101500123456789", name)
	require.NoError(t, taxonomy.ValidateName(name, taxonomy.ClassBackup))

	// Names embed a sortable timestamp.
	later := BackupTagName("env/staging", at.Add(time.Second))
	assert.True(t, strings.Compare(name, later) < 0)
}
