package promotion

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "error", "json")
}

func testConfig() Config {
	return Config{
		ReleaseBranches: []string{"main", "release"},
		MaxEvidenceAge:  24 * time.Hour,
	}
}

// seedSuccess records staging success evidence for commit at the given age.
func seedSuccess(t *testing.T, mem *store.Memory, env string, commit models.CommitHash, age time.Duration) {
	t.Helper()
	require.NoError(t, mem.Append(context.Background(), &models.TagMovement{
		TagName:  taxonomy.StateTag(env, "success"),
		ToCommit: commit,
		MovedAt:  time.Now().UTC().Add(-age),
	}))
}

func TestCanPromoteAllowed(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	seedSuccess(t, mem, "staging", "abc123", time.Hour)

	gate := New(mem, mem, mem, nil, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Nil(t, decision.Denial)
	assert.Equal(t, models.CommitHash("abc123"), decision.Commit)
}

func TestDeniedNotReleaseEligible(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "feature/fast-path")
	seedSuccess(t, mem, "staging", "abc123", time.Hour)

	gate := New(mem, mem, mem, nil, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonNotReleaseEligible, decision.Denial.Reason)
}

func TestDeniedNoUpstreamSuccess(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")

	gate := New(mem, mem, mem, nil, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoUpstreamSuccess, decision.Denial.Reason)
}

func TestEvidenceIsCommitPinned(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	mem.AddCommit("def456", "main")
	// Success evidence exists, but for a different commit on the same branch.
	seedSuccess(t, mem, "staging", "def456", time.Hour)

	gate := New(mem, mem, mem, nil, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoUpstreamSuccess, decision.Denial.Reason)
}

func TestDeniedStaleEvidence(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	seedSuccess(t, mem, "staging", "abc123", 48*time.Hour)

	gate := New(mem, mem, mem, nil, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonStaleEvidence, decision.Denial.Reason)
}

func TestStalenessCheckDisabledByZeroAge(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	seedSuccess(t, mem, "staging", "abc123", 30*24*time.Hour)

	cfg := testConfig()
	cfg.MaxEvidenceAge = 0
	gate := New(mem, mem, mem, nil, cfg, testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestDeniedOpenFindings(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	seedSuccess(t, mem, "staging", "abc123", time.Hour)
	mem.AddBlockingFindings("abc123", 2)

	gate := New(mem, mem, mem, nil, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonOpenFindings, decision.Denial.Reason)
	assert.Equal(t, 2, decision.Denial.Findings)
}

func TestDeniedPolicyRejected(t *testing.T) {
	mem := store.NewMemory()
	mem.AddCommit("abc123", "main")
	seedSuccess(t, mem, "staging", "abc123", time.Hour)

	policy, err := NewPolicyEvaluator([]string{`to_env != "production" || branch == "release"`})
	require.NoError(t, err)

	gate := New(mem, mem, mem, policy, testConfig(), testLogger())
	decision, err := gate.CanPromote(context.Background(), "abc123", "staging", "production")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonPolicyRejected, decision.Denial.Reason)
	assert.Contains(t, decision.Denial.Detail, "to_env")
}

func TestPolicyEvaluator(t *testing.T) {
	policy, err := NewPolicyEvaluator([]string{
		`findings == 0`,
		`from_env == "staging"`,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, policy.Len())

	failed, err := policy.Evaluate(map[string]interface{}{
		"commit": "abc", "branch": "main", "from_env": "staging", "to_env": "production", "findings": 0,
	})
	require.NoError(t, err)
	assert.Empty(t, failed)

	failed, err = policy.Evaluate(map[string]interface{}{
		"commit": "abc", "branch": "main", "from_env": "staging", "to_env": "production", "findings": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `findings == 0`, failed)
}

func TestPolicyEvaluatorRejectsBadRule(t *testing.T) {
	_, err := NewPolicyEvaluator([]string{`findings ==`})
	require.Error(t, err)
}

func TestUnresolvableCommitIsError(t *testing.T) {
	mem := store.NewMemory()
	gate := New(mem, mem, mem, nil, testConfig(), testLogger())

	_, err := gate.CanPromote(context.Background(), "missing", "staging", "production")
	require.ErrorIs(t, err, store.ErrCommitNotFound)
}
