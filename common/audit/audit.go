// Package audit writes the append-only audit files. One file per event
// category; files are only ever appended to, never rewritten.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category selects which audit file an event is appended to.
type Category string

const (
	CategoryMovements   Category = "movements"
	CategoryVersions    Category = "versions"
	CategoryStates      Category = "states"
	CategoryDeployments Category = "deployments"
)

// Audit verbs.
const (
	VerbCreate       = "CREATE"
	VerbMove         = "MOVE"
	VerbOverride     = "OVERRIDE"
	VerbBackup       = "BACKUP"
	VerbRollback     = "ROLLBACK"
	VerbIntervention = "INTERVENTION"
	VerbPush         = "PUSH"
)

// Mirror receives a copy of every audit line, e.g. for publication to a
// Redis stream. Mirror failures never fail the audited operation.
type Mirror interface {
	MirrorAuditLine(ctx context.Context, category Category, line string) error
}

// Logger is the minimal logging interface the writer needs.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

// Writer appends audit lines to per-category files under a directory.
// Line format: ISO8601 <VERB> <tag> <commit> <deploymentId> <environment> <region>
// with "-" for absent fields.
type Writer struct {
	dir    string
	mirror Mirror
	log    Logger

	mu    sync.Mutex
	files map[Category]*os.File
	now   func() time.Time
}

// NewWriter creates a writer rooted at dir, creating it if needed.
// mirror may be nil.
func NewWriter(dir string, mirror Mirror, log Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	return &Writer{
		dir:    dir,
		mirror: mirror,
		log:    log,
		files:  make(map[Category]*os.File),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record appends one event. Empty fields are written as "-" so the column
// layout stays fixed.
func (w *Writer) Record(ctx context.Context, category Category, verb, tag, commit, deploymentID, environment, region string) error {
	line := fmt.Sprintf("%s %s %s %s %s %s %s",
		w.now().Format(time.RFC3339),
		verb,
		orDash(tag),
		orDash(commit),
		orDash(deploymentID),
		orDash(environment),
		orDash(region),
	)

	w.mu.Lock()
	file, err := w.file(category)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	_, err = fmt.Fprintln(file, line)
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("append audit line to %s: %w", category, err)
	}

	if w.mirror != nil {
		if err := w.mirror.MirrorAuditLine(ctx, category, line); err != nil {
			w.log.Warn("audit mirror failed", "category", category, "error", err)
		}
	}

	return nil
}

// Close closes all open audit files.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for category, file := range w.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close audit file %s: %w", category, err)
		}
		delete(w.files, category)
	}
	return firstErr
}

// file returns the open handle for category, opening append-only on first
// use. Caller holds w.mu.
func (w *Writer) file(category Category) (*os.File, error) {
	if file, ok := w.files[category]; ok {
		return file, nil
	}

	path := filepath.Join(w.dir, string(category)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file %s: %w", path, err)
	}
	w.files[category] = file
	return file, nil
}

func orDash(field string) string {
	if field == "" {
		return "-"
	}
	return field
}
