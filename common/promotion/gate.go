// Package promotion decides whether a commit may be promoted from one
// environment to the next. Checks are mandatory and short-circuiting;
// denials are negative decisions callers branch on, not errors.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
	"github.com/shipstream/tagkeeper/common/taxonomy"
)

// DenialReason is a machine-actionable reason a promotion was denied.
type DenialReason string

const (
	ReasonNotReleaseEligible DenialReason = "NotReleaseEligible"
	ReasonNoUpstreamSuccess  DenialReason = "NoUpstreamSuccess"
	ReasonStaleEvidence      DenialReason = "StaleEvidence"
	ReasonOpenFindings       DenialReason = "OpenFindings"
	ReasonPolicyRejected     DenialReason = "PolicyRejected"
)

// Denial explains a negative promotion decision.
type Denial struct {
	Reason DenialReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`

	// Findings carries the count for ReasonOpenFindings.
	Findings int `json:"findings,omitempty"`
}

func (d *Denial) String() string {
	if d.Reason == ReasonOpenFindings {
		return fmt.Sprintf("Denied{%s(%d)}: %s", d.Reason, d.Findings, d.Detail)
	}
	return fmt.Sprintf("Denied{%s}: %s", d.Reason, d.Detail)
}

// Decision is the outcome of a promotion check.
type Decision struct {
	Allowed bool              `json:"allowed"`
	Commit  models.CommitHash `json:"commit"`
	FromEnv string            `json:"from_env"`
	ToEnv   string            `json:"to_env"`
	Denial  *Denial           `json:"denial,omitempty"`
}

// Config holds the gate's policy knobs.
type Config struct {
	// ReleaseBranches lists branches whose commits are release-eligible.
	ReleaseBranches []string

	// MaxEvidenceAge bounds how old the upstream success evidence may be.
	// Zero disables the staleness check.
	MaxEvidenceAge time.Duration
}

// Gate answers can_promote purely from the tag graph plus the findings
// store.
type Gate struct {
	commits  store.CommitResolver
	moves    store.MovementLog
	findings store.FindingsStore
	policy   *PolicyEvaluator
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

// New creates a gate. policy may be nil when no CEL rules are configured.
func New(commits store.CommitResolver, moves store.MovementLog, findings store.FindingsStore, policy *PolicyEvaluator, cfg Config, log *logger.Logger) *Gate {
	return &Gate{
		commits:  commits,
		moves:    moves,
		findings: findings,
		policy:   policy,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CanPromote checks whether commitRef may be promoted from fromEnv to
// toEnv. Promotion is commit-pinned: the upstream success evidence must
// reference the exact commit, not its branch.
func (g *Gate) CanPromote(ctx context.Context, commitRef, fromEnv, toEnv string) (*Decision, error) {
	commit, err := g.commits.Resolve(ctx, commitRef)
	if err != nil {
		return nil, fmt.Errorf("resolve promotion commit %q: %w", commitRef, err)
	}

	decision := &Decision{Commit: commit, FromEnv: fromEnv, ToEnv: toEnv}
	deny := func(d *Denial) (*Decision, error) {
		decision.Denial = d
		g.log.Info("promotion denied",
			"commit", commit,
			"from", fromEnv,
			"to", toEnv,
			"reason", d.Reason,
			"detail", d.Detail,
		)
		return decision, nil
	}

	// 1. Commit must sit on a release-eligible ref.
	described, err := g.commits.Describe(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("describe commit %s: %w", commit, err)
	}
	if !g.releaseEligible(described.Branch) {
		return deny(&Denial{
			Reason: ReasonNotReleaseEligible,
			Detail: fmt.Sprintf("branch %q not in release branches %v", described.Branch, g.cfg.ReleaseBranches),
		})
	}

	// 2. Commit-pinned upstream success evidence.
	successTag := taxonomy.StateTag(fromEnv, "success")
	evidence, err := g.moves.FindByCommit(ctx, successTag, commit)
	if errors.Is(err, store.ErrRecordNotFound) {
		return deny(&Denial{
			Reason: ReasonNoUpstreamSuccess,
			Detail: fmt.Sprintf("no %s entry references commit %s", successTag, commit),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("look up %s evidence: %w", successTag, err)
	}

	// 3. Evidence must be fresh.
	if g.cfg.MaxEvidenceAge > 0 {
		age := g.now().Sub(evidence.MovedAt)
		if age > g.cfg.MaxEvidenceAge {
			return deny(&Denial{
				Reason: ReasonStaleEvidence,
				Detail: fmt.Sprintf("%s evidence is %s old, max %s", successTag, age.Round(time.Second), g.cfg.MaxEvidenceAge),
			})
		}
	}

	// 4. No unresolved high-severity findings.
	open, err := g.findings.OpenBlocking(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("count open findings for %s: %w", commit, err)
	}
	if open > 0 {
		return deny(&Denial{
			Reason:   ReasonOpenFindings,
			Detail:   fmt.Sprintf("%d unresolved high-severity findings on %s", open, commit),
			Findings: open,
		})
	}

	// 5. Operator policy rules.
	if g.policy != nil && g.policy.Len() > 0 {
		failed, err := g.policy.Evaluate(map[string]interface{}{
			"commit":   commit.String(),
			"branch":   described.Branch,
			"from_env": fromEnv,
			"to_env":   toEnv,
			"findings": open,
		})
		if err != nil {
			return nil, err
		}
		if failed != "" {
			return deny(&Denial{
				Reason: ReasonPolicyRejected,
				Detail: fmt.Sprintf("policy rule failed: %s", failed),
			})
		}
	}

	decision.Allowed = true
	g.log.Info("promotion allowed", "commit", commit, "from", fromEnv, "to", toEnv)
	return decision, nil
}

func (g *Gate) releaseEligible(branch string) bool {
	if len(g.cfg.ReleaseBranches) == 0 {
		return true
	}
	for _, b := range g.cfg.ReleaseBranches {
		if b == branch {
			return true
		}
	}
	return false
}
