// Package consistency validates tag-graph invariants. Read-only and safe
// to run concurrently with any mutation: multi-tag sequences are not
// transactional, so the checker exists to detect drift after the fact,
// not to prevent it.
package consistency

import (
	"context"
	"errors"
	"fmt"

	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/models"
	"github.com/shipstream/tagkeeper/common/store"
)

// Severity of a reported issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeDanglingEnvironment = "dangling_environment_tag"
	CodeDuplicateRelease    = "duplicate_release"
	CodeOrphanDeployment    = "orphan_deployment_tag"
)

// Issue is one finding of the checker.
type Issue struct {
	Severity Severity          `json:"severity"`
	Code     string            `json:"code"`
	Tag      string            `json:"tag,omitempty"`
	Commit   models.CommitHash `json:"commit,omitempty"`
	Message  string            `json:"message"`
}

// Report aggregates the checker's findings.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Ok reports whether the graph passed with no errors (warnings allowed).
func (r *Report) Ok() bool {
	return len(r.Errors) == 0
}

// Checker validates the tag graph.
type Checker struct {
	tags    store.TagStore
	moves   store.MovementLog
	commits store.CommitResolver
	log     *logger.Logger
}

// New creates a checker.
func New(tags store.TagStore, moves store.MovementLog, commits store.CommitResolver, log *logger.Logger) *Checker {
	return &Checker{tags: tags, moves: moves, commits: commits, log: log}
}

// Validate runs every check and returns the combined report.
func (c *Checker) Validate(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := c.checkEnvironmentTags(ctx, report); err != nil {
		return nil, err
	}
	if err := c.checkDuplicateReleases(ctx, report); err != nil {
		return nil, err
	}
	if err := c.checkOrphanDeployments(ctx, report); err != nil {
		return nil, err
	}

	c.log.Info("consistency check complete",
		"errors", len(report.Errors),
		"warnings", len(report.Warnings),
	)
	return report, nil
}

// checkEnvironmentTags verifies every environment tag resolves to a real
// commit.
func (c *Checker) checkEnvironmentTags(ctx context.Context, report *Report) error {
	envTags, err := c.tags.List(ctx, "env/")
	if err != nil {
		return fmt.Errorf("list environment tags: %w", err)
	}

	for _, tag := range envTags {
		_, err := c.commits.Describe(ctx, tag.Commit)
		if errors.Is(err, store.ErrCommitNotFound) {
			report.Errors = append(report.Errors, Issue{
				Severity: SeverityError,
				Code:     CodeDanglingEnvironment,
				Tag:      tag.Name,
				Commit:   tag.Commit,
				Message:  fmt.Sprintf("environment tag %s points at unresolvable commit %s", tag.Name, tag.Commit),
			})
			continue
		}
		if err != nil {
			return fmt.Errorf("describe commit for %s: %w", tag.Name, err)
		}
	}
	return nil
}

// checkDuplicateReleases flags two version tags referencing the same
// commit. Exactly one error is reported per duplicated commit.
func (c *Checker) checkDuplicateReleases(ctx context.Context, report *Report) error {
	versionTags, err := c.tags.List(ctx, "v")
	if err != nil {
		return fmt.Errorf("list version tags: %w", err)
	}

	byCommit := make(map[models.CommitHash][]string)
	for _, tag := range versionTags {
		byCommit[tag.Commit] = append(byCommit[tag.Commit], tag.Name)
	}

	for commit, names := range byCommit {
		if len(names) > 1 {
			report.Errors = append(report.Errors, Issue{
				Severity: SeverityError,
				Code:     CodeDuplicateRelease,
				Commit:   commit,
				Message:  fmt.Sprintf("version tags %v all reference commit %s", names, commit),
			})
		}
	}
	return nil
}

// checkOrphanDeployments warns about deployment tags whose commit never
// appeared in any environment tag's history. Superseded deployments are
// expected, hence a warning rather than an error.
func (c *Checker) checkOrphanDeployments(ctx context.Context, report *Report) error {
	deployTags, err := c.tags.List(ctx, "deploy/")
	if err != nil {
		return fmt.Errorf("list deployment tags: %w", err)
	}
	if len(deployTags) == 0 {
		return nil
	}

	envTags, err := c.tags.List(ctx, "env/")
	if err != nil {
		return fmt.Errorf("list environment tags: %w", err)
	}

	seen := make(map[models.CommitHash]bool)
	for _, envTag := range envTags {
		history, err := c.moves.History(ctx, envTag.Name, 0)
		if err != nil {
			return fmt.Errorf("history of %s: %w", envTag.Name, err)
		}
		for _, move := range history {
			seen[move.ToCommit] = true
		}
	}

	for _, tag := range deployTags {
		if !seen[tag.Commit] {
			report.Warnings = append(report.Warnings, Issue{
				Severity: SeverityWarning,
				Code:     CodeOrphanDeployment,
				Tag:      tag.Name,
				Commit:   tag.Commit,
				Message:  fmt.Sprintf("deployment tag %s (%s) never appeared in environment history", tag.Name, tag.Commit),
			})
		}
	}
	return nil
}
