package lockout

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "storefront:lockout:"

// RedisLimiter はRedisのカウンタで失敗回数を保持するLimiter。
// 複数インスタンスで同じカウンタを共有できる。
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedisLimiter はRedisLimiterを生成する。
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg}
}

// NewRedisClient はREDIS_URL形式のURLからクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Check は失敗回数が上限に達しているかを判定する。
func (l *RedisLimiter) Check(ctx context.Context, email string) error {
	if !l.cfg.Enabled() {
		return nil
	}

	count, err := l.client.Get(ctx, key(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.cfg.Threshold) {
		return model.ErrTooManyAttempts
	}
	return nil
}

// RecordFailure は失敗を記録する。固定ウィンドウのため、TTLは最初の失敗時にのみ設定する。
func (l *RedisLimiter) RecordFailure(ctx context.Context, email string) error {
	if !l.cfg.Enabled() {
		return nil
	}

	k := key(email)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Reset はカウンタを消去する。
func (l *RedisLimiter) Reset(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。ヘルスチェックで使用する。
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func key(email string) string {
	return keyPrefix + email
}

// compile-time interface check
var _ Limiter = (*RedisLimiter)(nil)
