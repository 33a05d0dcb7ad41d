// Package cache implements the cache invalidator port on Redis.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/core/port/out"
	"maildigest/pkg/logger"
)

// Invalidator deletes cached views by key pattern after store mutations.
// Fire and forget: a Redis failure is logged and swallowed, the store
// stays authoritative.
type Invalidator struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{
		client: client,
		log:    logger.Component("cache"),
	}
}

// scopePatterns maps a store event scope to the key namespaces it dirties.
// Email list views and per-user stats share fate; digests and config have
// their own namespaces.
func scopePatterns(userID int64, scope domain.StoreEventScope) []string {
	emails := fmt.Sprintf("emails:user:%d:*", userID)
	stats := fmt.Sprintf("stats:user:%d:*", userID)
	digests := fmt.Sprintf("digests:user:%d:*", userID)
	config := fmt.Sprintf("config:user:%d:*", userID)

	switch scope {
	case domain.ScopeNewEmail, domain.ScopeDeleteEmail, domain.ScopePurgeEmail,
		domain.ScopeRestoreEmail, domain.ScopeClearAllEmail:
		return []string{emails, stats}
	case domain.ScopeNewDigest:
		return []string{digests, stats}
	case domain.ScopeConfigChange:
		return []string{config}
	case domain.ScopeAll:
		return []string{emails, stats, digests, config}
	default:
		return nil
	}
}

// Invalidate scans and deletes every key matching the scope's patterns.
func (i *Invalidator) Invalidate(ctx context.Context, userID int64, scope domain.StoreEventScope) {
	if i.client == nil {
		return
	}

	for _, pattern := range scopePatterns(userID, scope) {
		if err := i.deletePattern(ctx, pattern); err != nil {
			i.log.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
		}
	}
}

func (i *Invalidator) deletePattern(ctx context.Context, pattern string) error {
	iter := i.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := i.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return i.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Subscribe adapts the invalidator to the store event stream.
func (i *Invalidator) Subscribe() domain.EventPublisher {
	return domain.EventPublisherFunc(func(event domain.StoreEvent) {
		i.Invalidate(context.Background(), event.UserID, event.Scope)
	})
}

var _ out.CacheInvalidatorPort = (*Invalidator)(nil)
