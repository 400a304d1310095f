package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shipstream/tagkeeper/common/models"
)

// Memory is an in-process implementation of every port, for tests and
// local dry runs. Safe for concurrent use; CompareAndSwap has the same
// contention semantics as the Postgres adapter.
type Memory struct {
	mu        sync.RWMutex
	tags      map[string]*models.Tag
	moves     []*models.TagMovement
	commits   map[models.CommitHash]*models.Commit
	refs      map[string]models.CommitHash
	records   map[string]*models.DeploymentRecord
	findings  map[models.CommitHash]int
	published map[string][]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tags:      make(map[string]*models.Tag),
		commits:   make(map[models.CommitHash]*models.Commit),
		refs:      make(map[string]models.CommitHash),
		records:   make(map[string]*models.DeploymentRecord),
		findings:  make(map[models.CommitHash]int),
		published: make(map[string][]string),
	}
}

// AddCommit seeds a resolvable commit. The hash itself always resolves;
// extra refs (branch names, aliases) resolve to it as well.
func (m *Memory) AddCommit(hash models.CommitHash, branch string, refs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commits[hash] = &models.Commit{
		Hash:      hash,
		Branch:    branch,
		CreatedAt: time.Now().UTC(),
	}
	for _, ref := range refs {
		m.refs[ref] = hash
	}
}

// AddBlockingFindings attaches n unresolved high-severity findings to a
// commit.
func (m *Memory) AddBlockingFindings(hash models.CommitHash, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings[hash] = n
}

// Published returns tag names pushed to remote, in push order.
func (m *Memory) Published(remote string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.published[remote]...)
}

// --- TagStore ---

func (m *Memory) Get(ctx context.Context, name string) (*models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tag, ok := m.tags[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	copied := *tag
	return &copied, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]*models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Tag
	for name, tag := range m.tags {
		if strings.HasPrefix(name, prefix) {
			copied := *tag
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Create(ctx context.Context, tag *models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tags[tag.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTagExists, tag.Name)
	}
	copied := *tag
	if copied.Version == 0 {
		copied.Version = 1
	}
	m.tags[tag.Name] = &copied
	return nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, name string, expectedVersion int64, to models.CommitHash, message, movedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tag, ok := m.tags[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	if tag.Version != expectedVersion {
		return false, nil
	}
	tag.Commit = to
	tag.Version++
	tag.Message = message
	tag.MovedBy = movedBy
	tag.MovedAt = time.Now().UTC()
	return true, nil
}

// --- MovementLog ---

func (m *Memory) Append(ctx context.Context, move *models.TagMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *move
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	if copied.MovedAt.IsZero() {
		copied.MovedAt = time.Now().UTC()
	}
	m.moves = append(m.moves, &copied)
	return nil
}

func (m *Memory) History(ctx context.Context, tagName string, limit int) ([]*models.TagMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.TagMovement
	for _, move := range m.moves {
		if move.TagName == tagName {
			copied := *move
			out = append(out, &copied)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) FindByCommit(ctx context.Context, tagName string, commit models.CommitHash) (*models.TagMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.moves) - 1; i >= 0; i-- {
		if m.moves[i].TagName == tagName && m.moves[i].ToCommit == commit {
			copied := *m.moves[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: no movement of %s to %s", ErrRecordNotFound, tagName, commit)
}

// --- CommitResolver ---

func (m *Memory) Resolve(ctx context.Context, ref string) (models.CommitHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.commits[models.CommitHash(ref)]; ok {
		return models.CommitHash(ref), nil
	}
	if hash, ok := m.refs[ref]; ok {
		return hash, nil
	}
	return "", fmt.Errorf("%w: %s", ErrCommitNotFound, ref)
}

func (m *Memory) Describe(ctx context.Context, hash models.CommitHash) (*models.Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commit, ok := m.commits[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, hash)
	}
	copied := *commit
	return &copied, nil
}

func (m *Memory) CreateRevert(ctx context.Context, hash models.CommitHash, message string) (models.CommitHash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.commits[hash]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCommitNotFound, hash)
	}
	revert := models.CommitHash(fmt.Sprintf("revert-%s-%d", hash, len(m.commits)))
	m.commits[revert] = &models.Commit{
		Hash:      revert,
		Branch:    original.Branch,
		RevertOf:  hash,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	return revert, nil
}

// --- DeploymentStore ---

func (m *Memory) CreateRecord(ctx context.Context, rec *models.DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.DeploymentID]; ok {
		return fmt.Errorf("deployment record already exists: %s", rec.DeploymentID)
	}
	copied := *rec
	m.records[rec.DeploymentID] = &copied
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, deploymentID string) (*models.DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[deploymentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, deploymentID)
	}
	copied := *rec
	return &copied, nil
}

func (m *Memory) UpdateRecord(ctx context.Context, rec *models.DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.DeploymentID]; !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.DeploymentID)
	}
	copied := *rec
	m.records[rec.DeploymentID] = &copied
	return nil
}

func (m *Memory) ListRecordsByEnvironment(ctx context.Context, env string, limit int) ([]*models.DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.DeploymentRecord
	for _, rec := range m.records {
		if rec.Environment == env {
			copied := *rec
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- FindingsStore ---

func (m *Memory) OpenBlocking(ctx context.Context, commit models.CommitHash) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findings[commit], nil
}

// --- RemotePublisher ---

func (m *Memory) Push(ctx context.Context, pattern, remote string) (int, error) {
	matcher, err := NewTagMatcher(pattern)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	names := make([]string, 0, len(m.tags))
	for name := range m.tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if matcher.Match(name) {
			m.published[remote] = append(m.published[remote], name)
			count++
		}
	}
	return count, nil
}
