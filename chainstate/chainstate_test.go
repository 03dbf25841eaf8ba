package chainstate

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sova-txcore/caching"
	"sova-txcore/goutils/mock"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

const chainID = uint64(1)

var (
	token   = common.HexToAddress("0x10")
	owner   = common.HexToAddress("0x20")
	spender = common.HexToAddress("0x30")
)

func newState(t *testing.T, reader smartcontract.Reader) *State {
	t.Helper()

	cache, err := caching.NewMemoryCache(64, time.Minute)
	require.NoError(t, err)

	return NewState(reader, cache)
}

func TestState_AllowanceCaching(t *testing.T) {
	reads := 0
	allowance := big.NewInt(100)

	reader := &mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			reads++

			assert.Equal(t, smartcontract.Allowance{Token: token, Owner: owner, Spender: spender}, call)

			return []interface{}{new(big.Int).Set(allowance)}, nil
		},
	}

	state := newState(t, reader)
	ctx := context.Background()

	got, err := state.Allowance(ctx, chainID, token, owner, spender, false)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Int64())

	allowance.SetInt64(500)

	t.Run("cached read", func(t *testing.T) {
		got, err := state.Allowance(ctx, chainID, token, owner, spender, false)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.Int64())
		assert.Equal(t, 1, reads)
	})

	t.Run("fresh read bypasses cache", func(t *testing.T) {
		got, err := state.Allowance(ctx, chainID, token, owner, spender, true)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.Int64())
		assert.Equal(t, 2, reads)
	})

	t.Run("invalidate forces a read", func(t *testing.T) {
		allowance.SetInt64(700)

		require.NoError(t, state.Invalidate(ctx, caching.AllowanceKey(chainID, token, owner, spender)))

		got, err := state.Allowance(ctx, chainID, token, owner, spender, false)
		require.NoError(t, err)
		assert.Equal(t, int64(700), got.Int64())
		assert.Equal(t, 3, reads)
	})
}

func TestState_InvalidateDuringRead(t *testing.T) {
	var calls int32

	started := make(chan struct{})
	release := make(chan struct{})

	reader := &mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				// the old allowance, read before the approval confirmed
				close(started)
				<-release

				return []interface{}{big.NewInt(0)}, nil
			}

			return []interface{}{big.NewInt(100)}, nil
		},
	}

	state := newState(t, reader)
	ctx := context.Background()
	key := caching.AllowanceKey(chainID, token, owner, spender)

	done := make(chan struct{})

	go func() {
		defer close(done)

		got, err := state.Allowance(ctx, chainID, token, owner, spender, false)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), got.Int64())
	}()

	<-started

	require.NoError(t, state.Invalidate(ctx, key))

	got, err := state.Allowance(ctx, chainID, token, owner, spender, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Int64(), "fresh read must not join the earlier fetch")

	close(release)
	<-done

	got, err = state.Allowance(ctx, chainID, token, owner, spender, false)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Int64(), "stale fetch must not overwrite the cache")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestState_ReadErrorsCarryKind(t *testing.T) {
	reader := &mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			return nil, errors.New("rpc down")
		},
		NativeBalanceMock: func(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
			return nil, errors.New("rpc down")
		},
	}

	state := newState(t, reader)

	_, err := state.Balance(context.Background(), chainID, token, owner, false)
	assert.ErrorIs(t, err, txerrors.ErrContractRead)
	assert.Contains(t, err.Error(), "balanceOf")

	_, err = state.NativeBalance(context.Background(), chainID, owner, false)
	assert.ErrorIs(t, err, txerrors.ErrContractRead)
}

func TestState_QueueDelayAndRequest(t *testing.T) {
	queue := common.HexToAddress("0x40")

	reader := &mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			switch call.(type) {
			case smartcontract.RedemptionDelay:
				return []interface{}{big.NewInt(864000)}, nil
			case smartcontract.RedemptionRequestOf:
				return []interface{}{common.Address{}, big.NewInt(0), big.NewInt(0), false}, nil
			}

			return nil, errors.New("unexpected call")
		},
	}

	state := newState(t, reader)

	delay, err := state.QueueDelay(context.Background(), chainID, queue)
	require.NoError(t, err)
	assert.Equal(t, int64(864000), delay)

	req, err := state.RedemptionRequest(context.Background(), chainID, queue, owner)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestState_StakingSnapshot(t *testing.T) {
	pool := common.HexToAddress("0x50")

	reader := &mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			switch call.(type) {
			case smartcontract.RewardRate:
				return []interface{}{big.NewInt(10)}, nil
			case smartcontract.TotalStaked:
				return []interface{}{big.NewInt(1000)}, nil
			case smartcontract.PeriodFinish:
				return []interface{}{big.NewInt(1_800_000_000)}, nil
			case smartcontract.StakedBalance:
				return []interface{}{big.NewInt(250)}, nil
			case smartcontract.Earned:
				return []interface{}{big.NewInt(7)}, nil
			}

			return nil, errors.New("unexpected call")
		},
	}

	state := newState(t, reader)

	snapshot, err := state.StakingSnapshot(context.Background(), chainID, pool, owner, false)
	require.NoError(t, err)

	assert.Equal(t, int64(10), snapshot.RewardRatePerSecond.Int64())
	assert.Equal(t, int64(1000), snapshot.TotalStaked.Int64())
	assert.Equal(t, int64(250), snapshot.UserStaked.Int64())
	assert.Equal(t, int64(7), snapshot.UserEarned.Int64())
	assert.Equal(t, int64(1_800_000_000), snapshot.PeriodFinish)
}
