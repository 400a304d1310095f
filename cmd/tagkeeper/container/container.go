package container

import (
	"fmt"

	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/bootstrap"
	"github.com/shipstream/tagkeeper/common/consistency"
	"github.com/shipstream/tagkeeper/common/mover"
	"github.com/shipstream/tagkeeper/common/promotion"
	"github.com/shipstream/tagkeeper/common/publish"
	"github.com/shipstream/tagkeeper/common/ratelimit"
	"github.com/shipstream/tagkeeper/common/recorder"
	"github.com/shipstream/tagkeeper/common/repository"
	"github.com/shipstream/tagkeeper/common/rollback"
	"github.com/shipstream/tagkeeper/common/store"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	TagRepo      *repository.TagRepository
	MovementRepo *repository.MovementRepository
	DeployRepo   *repository.DeploymentRepository
	CommitRepo   *repository.CommitRepository
	FindingRepo  *repository.FindingRepository

	// Resolver used by all services; cached when the cache is enabled
	Resolver store.CommitResolver

	// Services
	Audit     *audit.Writer
	Mover     *mover.Mover
	Recorder  *recorder.Recorder
	Gate      *promotion.Gate
	Rollback  *rollback.Engine
	Checker   *consistency.Checker
	Publisher *publish.Publisher

	// Limiter is nil when Redis is disabled; callers skip throttling then
	Limiter *ratelimit.Limiter
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	// Initialize repositories
	tagRepo := repository.NewTagRepository(components.DB)
	movementRepo := repository.NewMovementRepository(components.DB)
	deployRepo := repository.NewDeploymentRepository(components.DB)
	commitRepo := repository.NewCommitRepository(components.DB)
	findingRepo := repository.NewFindingRepository(components.DB)

	// Commit lookups are immutable, so wrap the resolver in a read-through
	// cache when one is available
	var resolver store.CommitResolver = commitRepo
	if components.Cache != nil {
		resolver = store.NewCachedResolver(commitRepo, components.Cache, cfg.Cache.DefaultTTL, log)
	}

	// Audit trail, mirrored to a Redis stream when Redis is up
	var mirror audit.Mirror
	if components.Redis != nil {
		mirror = publish.NewStreamMirror(components.Redis, "tags:audit")
	}
	auditWriter, err := audit.NewWriter(cfg.Audit.Dir, mirror, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit writer: %w", err)
	}

	// Initialize services (bottom-up: dependencies first)
	mv := mover.New(tagRepo, resolver, movementRepo, auditWriter, mover.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
	}, log)

	rec := recorder.New(deployRepo, resolver, mv, auditWriter, log)

	var policy *promotion.PolicyEvaluator
	if len(cfg.Promotion.PolicyRules) > 0 {
		policy, err = promotion.NewPolicyEvaluator(cfg.Promotion.PolicyRules)
		if err != nil {
			return nil, fmt.Errorf("failed to compile promotion policy: %w", err)
		}
	}

	gate := promotion.New(resolver, movementRepo, findingRepo, policy, promotion.Config{
		ReleaseBranches: cfg.Promotion.ReleaseBranches,
		MaxEvidenceAge:  cfg.Promotion.MaxEvidenceAge,
	}, log)

	engine := rollback.New(tagRepo, movementRepo, resolver, rec, mv, auditWriter, log)

	checker := consistency.New(tagRepo, movementRepo, resolver, log)

	var publisher *publish.Publisher
	var limiter *ratelimit.Limiter
	if components.Redis != nil {
		publisher = publish.New(tagRepo, components.Redis, log)
		limiter = ratelimit.New(components.Redis.GetUnderlying(), log)
	}

	return &Container{
		Components:   components,
		TagRepo:      tagRepo,
		MovementRepo: movementRepo,
		DeployRepo:   deployRepo,
		CommitRepo:   commitRepo,
		FindingRepo:  findingRepo,
		Resolver:     resolver,
		Audit:        auditWriter,
		Mover:        mv,
		Recorder:     rec,
		Gate:         gate,
		Rollback:     engine,
		Checker:      checker,
		Publisher:    publisher,
		Limiter:      limiter,
	}, nil
}

// Close releases container-owned resources.
func (c *Container) Close() error {
	return c.Audit.Close()
}
