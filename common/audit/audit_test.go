package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardLogger struct {
	warns int
}

func (l *discardLogger) Warn(msg string, keysAndValues ...interface{}) { l.warns++ }

type captureMirror struct {
	category Category
	line     string
	err      error
}

func (m *captureMirror) MirrorAuditLine(ctx context.Context, category Category, line string) error {
	m.category = category
	m.line = line
	return m.err
}

func readLog(t *testing.T, dir string, category Category) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, string(category)+".log"))
	require.NoError(t, err)
	return string(data)
}

func TestRecordLineFormat(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, nil, &discardLogger{})
	require.NoError(t, err)
	defer w.Close()
	w.now = func() time.Time {
		return time.Date(2026, 8, 25, 10, 15, 0, 0, time.UTC)
	}

	err = w.Record(context.Background(), CategoryMovements, VerbMove,
		"env/staging", "abc123", "run-42", "staging", "us-east-1")
	require.NoError(t, err)

	assert.Equal(t,
		"2026-08-25T10:15:00Z MOVE env/staging abc123 run-42 staging us-east-1\n",
		readLog(t, dir, CategoryMovements))
}

func TestRecordDashesForEmptyFields(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, nil, &discardLogger{})
	require.NoError(t, err)
	defer w.Close()
	w.now = func() time.Time {
		return time.Date(2026, 8, 25, 10, 15, 0, 0, time.UTC)
	}

	err = w.Record(context.Background(), CategoryVersions, VerbCreate,
		"v1.0.0", "abc123", "", "", "")
	require.NoError(t, err)

	assert.Equal(t,
		"2026-08-25T10:15:00Z CREATE v1.0.0 abc123 - - -\n",
		readLog(t, dir, CategoryVersions))
}

func TestRecordAppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	w, err := NewWriter(dir, nil, &discardLogger{})
	require.NoError(t, err)
	require.NoError(t, w.Record(ctx, CategoryStates, VerbMove, "state/staging-success", "c1", "", "", ""))
	require.NoError(t, w.Close())

	// A fresh writer over the same directory appends, never truncates.
	w, err = NewWriter(dir, nil, &discardLogger{})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Record(ctx, CategoryStates, VerbMove, "state/staging-success", "c2", "", "", ""))

	content := readLog(t, dir, CategoryStates)
	assert.Contains(t, content, "c1")
	assert.Contains(t, content, "c2")
	assert.Equal(t, 2, countLines(content))
}

func TestRecordCategoriesUseSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, nil, &discardLogger{})
	require.NoError(t, err)
	defer w.Close()
	ctx := context.Background()

	require.NoError(t, w.Record(ctx, CategoryMovements, VerbMove, "env/staging", "c1", "", "", ""))
	require.NoError(t, w.Record(ctx, CategoryDeployments, VerbCreate, "deploy/2026-08-25-r1", "c1", "r1", "staging", ""))

	assert.NotContains(t, readLog(t, dir, CategoryMovements), "deploy/")
	assert.NotContains(t, readLog(t, dir, CategoryDeployments), "env/")
}

func TestMirrorReceivesLine(t *testing.T) {
	mirror := &captureMirror{}
	w, err := NewWriter(t.TempDir(), mirror, &discardLogger{})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Record(context.Background(), CategoryMovements, VerbBackup,
		"backup/env/staging/20260825T101500000000000", "c1", "", "", ""))

	assert.Equal(t, CategoryMovements, mirror.category)
	assert.Contains(t, mirror.line, "BACKUP")
	assert.Contains(t, mirror.line, "backup/env/staging/")
}

func TestMirrorFailureDoesNotFailRecord(t *testing.T) {
	mirror := &captureMirror{err: errors.New("stream down")}
	log := &discardLogger{}
	dir := t.TempDir()
	w, err := NewWriter(dir, mirror, log)
	require.NoError(t, err)
	defer w.Close()

	err = w.Record(context.Background(), CategoryMovements, VerbMove, "env/staging", "c1", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, log.warns)

	// The durable line was still written.
	assert.Contains(t, readLog(t, dir, CategoryMovements), "env/staging")
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
