package caching

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	key := BalanceKey(1, common.HexToAddress("0x1"), common.HexToAddress("0x2"))

	t.Run("get hit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCache(db, 10*time.Second)

		mock.ExpectGet(key.String()).SetVal("123456789")

		got, ok, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "123456789", got.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCache(db, 10*time.Second)

		mock.ExpectGet(key.String()).RedisNil()

		_, ok, err := cache.Get(ctx, key)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("get backend error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCache(db, 10*time.Second)

		mock.ExpectGet(key.String()).SetErr(errors.New("connection refused"))

		_, _, err := cache.Get(ctx, key)
		assert.ErrorIs(t, err, ErrCacheBackend)
	})

	t.Run("set uses staleness as expiry", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCache(db, 10*time.Second)

		mock.ExpectSet(key.String(), "42", 10*time.Second).SetVal("OK")

		assert.NoError(t, cache.Set(ctx, key, big.NewInt(42)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidate deletes all keys", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCache(db, 10*time.Second)

		other := NativeBalanceKey(1, common.HexToAddress("0x2"))
		mock.ExpectDel(key.String(), other.String()).SetVal(2)

		assert.NoError(t, cache.Invalidate(ctx, key, other))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
