// Package publish pushes tags to named remotes over Redis streams and
// mirrors audit lines to the same transport.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shipstream/tagkeeper/common/audit"
	"github.com/shipstream/tagkeeper/common/logger"
	"github.com/shipstream/tagkeeper/common/redis"
	"github.com/shipstream/tagkeeper/common/store"
)

// ErrPushInProgress is returned when another push to the same remote holds
// the lock.
var ErrPushInProgress = errors.New("push already in progress for remote")

// pushLockTTL bounds how long a crashed pusher can hold a remote.
const pushLockTTL = 30 * time.Second

// Publisher publishes tags to remotes via Redis streams. Each remote is
// one stream; consumers on the remote side apply the refs in order.
type Publisher struct {
	tags  store.TagStore
	redis *redis.Client
	log   *logger.Logger
}

// New creates a publisher.
func New(tags store.TagStore, client *redis.Client, log *logger.Logger) *Publisher {
	return &Publisher{tags: tags, redis: client, log: log}
}

// Push publishes every tag matching pattern to remote and returns how many
// were published. Semantics are identical for every tag class; pattern
// matching follows store.NewTagMatcher, so the Memory fake and this
// adapter agree. One push per remote at a time.
func (p *Publisher) Push(ctx context.Context, pattern, remote string) (int, error) {
	matcher, err := store.NewTagMatcher(pattern)
	if err != nil {
		return 0, err
	}

	lockKey := "tags:push:lock:" + remote
	locked, err := p.redis.SetNX(ctx, lockKey, "1", pushLockTTL)
	if err != nil {
		return 0, fmt.Errorf("acquire push lock for %s: %w", remote, err)
	}
	if !locked {
		return 0, fmt.Errorf("%w: %s", ErrPushInProgress, remote)
	}
	defer func() {
		if err := p.redis.Delete(ctx, lockKey); err != nil {
			p.log.Warn("push lock release failed", "remote", remote, "error", err)
		}
	}()

	tags, err := p.tags.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list tags for push: %w", err)
	}

	stream := "tags:push:" + remote
	pushed := 0
	for _, tag := range tags {
		if !matcher.Match(tag.Name) {
			continue
		}

		_, err = p.redis.AddToStream(ctx, stream, map[string]interface{}{
			"tag":     tag.Name,
			"class":   string(tag.Class),
			"commit":  string(tag.Commit),
			"version": tag.Version,
		})
		if err != nil {
			return pushed, fmt.Errorf("push tag %s to %s: %w", tag.Name, remote, err)
		}
		pushed++
	}

	// Notify subscribers; the stream remains the source of truth.
	if err := p.redis.PublishEvent(ctx, "tags:events",
		fmt.Sprintf("pushed %d tags to %s", pushed, remote)); err != nil {
		p.log.Warn("push notification failed", "remote", remote, "error", err)
	}

	p.log.Info("tags pushed", "pattern", pattern, "remote", remote, "count", pushed)
	return pushed, nil
}

// StreamMirror mirrors audit lines onto a Redis stream so downstream
// consumers see the same trail as the audit files.
type StreamMirror struct {
	redis  *redis.Client
	stream string
}

// NewStreamMirror creates a mirror writing to stream.
func NewStreamMirror(client *redis.Client, stream string) *StreamMirror {
	return &StreamMirror{redis: client, stream: stream}
}

// MirrorAuditLine implements audit.Mirror.
func (m *StreamMirror) MirrorAuditLine(ctx context.Context, category audit.Category, line string) error {
	_, err := m.redis.AddToStream(ctx, m.stream, map[string]interface{}{
		"category": string(category),
		"line":     line,
	})
	return err
}
