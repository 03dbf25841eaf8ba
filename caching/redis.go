package caching

import (
	"context"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RedisCache shares read values between processes. Staleness is enforced with
// the key expiry.
type RedisCache struct {
	client    *redis.Client
	staleness time.Duration
}

var _ ReadCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, staleness time.Duration) *RedisCache {
	return &RedisCache{client: client, staleness: staleness}
}

func (r *RedisCache) Get(ctx context.Context, key Key) (*big.Int, bool, error) {
	val, err := r.client.Get(ctx, key.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}

		log.WithError(err).WithField("key", key.String()).Error("error reading cached value from redis")

		return nil, false, errors.Wrap(ErrCacheBackend, err.Error())
	}

	value, ok := new(big.Int).SetString(val, 10)
	if !ok {
		log.WithField("key", key.String()).Warn("dropping malformed cached value")

		_ = r.client.Del(ctx, key.String()).Err()

		return nil, false, nil
	}

	return value, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key Key, value *big.Int) error {
	err := r.client.Set(ctx, key.String(), value.String(), r.staleness).Err()
	if err != nil {
		log.WithError(err).WithField("key", key.String()).Error("error caching value in redis")

		return errors.Wrap(ErrCacheBackend, err.Error())
	}

	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, key.String())
	}

	if err := r.client.Del(ctx, names...).Err(); err != nil {
		log.WithError(err).Error("error invalidating cached values in redis")

		return errors.Wrap(ErrCacheBackend, err.Error())
	}

	return nil
}
