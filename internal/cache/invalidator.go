// Package cache evicts read-side cache entries that settlement makes stale.
package cache

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyInstructorEarnings = "instructor:%s:earnings"
	keyPayment            = "payment:%s"
)

// Invalidator drops cached views after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

func InstructorEarningsKey(instructorID snowflake.ID) string {
	return fmt.Sprintf(keyInstructorEarnings, instructorID.String())
}

func PaymentKey(paymentID snowflake.ID) string {
	return fmt.Sprintf(keyPayment, paymentID.String())
}

type redisInvalidator struct {
	client *redis.Client
}

type noopInvalidator struct {
	log *zap.Logger
}

// NewInvalidator deletes keys on redis, or only logs them without a client.
func NewInvalidator(client *redis.Client, log *zap.Logger) Invalidator {
	if client == nil {
		return &noopInvalidator{log: log.Named("cache.invalidator")}
	}
	return &redisInvalidator{client: client}
}

func (i *redisInvalidator) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return i.client.Del(ctx, keys...).Err()
}

func (i *noopInvalidator) Invalidate(_ context.Context, keys ...string) error {
	i.log.Debug("cache invalidation skipped", zap.Strings("keys", keys))
	return nil
}
