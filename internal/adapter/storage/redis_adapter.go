package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/general-store/internal/core/domain"
)

const (
	transactionViewKeyPrefix = "transaction:view:"
	idempotencyKeyTTL        = 24 * time.Hour
)

// RedisAdapter holds idempotency keys and the JSON read model of single
// transactions. Cache failures are logged and treated as misses.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisAdapter builds the adapter; ttl 0 keeps cached views until invalidated.
func NewRedisAdapter(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisAdapter{client: client, ttl: ttl, logger: logger}
}

func transactionViewKey(id int64) string {
	return transactionViewKeyPrefix + strconv.FormatInt(id, 10)
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, bool) {
	key := transactionViewKey(id)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("transaction cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var t domain.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		r.logger.Warn("transaction cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return &t, true
}

func (r *RedisAdapter) SetTransaction(ctx context.Context, transaction domain.Transaction) {
	key := transactionViewKey(transaction.ID)
	data, err := json.Marshal(transaction)
	if err != nil {
		r.logger.Warn("transaction cache marshal failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("transaction cache write failed", "key", key, "error", err)
	}
}

func (r *RedisAdapter) InvalidateTransaction(ctx context.Context, id int64) {
	key := transactionViewKey(id)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("transaction cache delete failed", "key", key, "error", err)
	}
}
