package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"incubator_messaging/pkg/logger"
)

type RateLimitRepository interface {
	// Allow проверяет скользящее окно: если за trailing window уже
	// записано >= limit событий, новое не записывается и возвращается false.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-window).UnixNano()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	// Trim, запись и ранг выполняются одним MULTI/EXEC блоком: два
	// конкурентных вызова не могут увидеть одну и ту же заполненность окна.
	pipe := r.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	rank := pipe.ZRank(ctx, key, member)
	pipe.Expire(ctx, key, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to record rate limit event", "error", err)
		return false, err
	}

	if rank.Val() >= int64(limit) {
		// Событие сверх лимита откатываем, чтобы отказ не продлевал окно.
		if err := r.redis.ZRem(ctx, key, member).Err(); err != nil {
			r.log.Warn("Failed to roll back rate limit event", "error", err)
		}
		return false, nil
	}

	return true, nil
}
