package redisutils

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/settings"
)

const connectTimeout = 30 * time.Second

// InitRedisClient connects to redis and waits for the first PING to succeed,
// backing off while the server comes up.
func InitRedisClient(config *settings.Redis) (*redis.Client, error) {
	redisURL := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	log.Info("connecting to redis at:", redisURL)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: config.Password,
		DB:       config.Db,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout

	err := backoff.Retry(func() error {
		return Ping(ctx, redisClient)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		log.WithField("addr", redisURL).WithError(err).Error("unable to connect to redis")

		_ = redisClient.Close()

		return nil, err
	}

	log.WithField("addr", redisURL).Info("connected to redis")

	return redisClient, nil
}

// Ping is the redis liveness check used by startup and the health endpoint.
func Ping(ctx context.Context, client redis.Cmdable) error {
	return client.Ping(ctx).Err()
}
