package chainstate

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"sova-txcore/caching"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

// State is a read-through view of on-chain values. Cached values are served
// inside the cache's staleness window unless the caller asks for a fresh read,
// which is required immediately before submitting a transaction.
//
// Every key carries a generation that Invalidate bumps. A fetch only writes
// back to the cache if its key's generation is unchanged since it started, so
// a read in flight across an invalidation cannot restore the old value.
type State struct {
	reader smartcontract.Reader
	cache  caching.ReadCache
	group  singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

func NewState(reader smartcontract.Reader, cache caching.ReadCache) *State {
	return &State{reader: reader, cache: cache, generations: make(map[string]uint64)}
}

func (s *State) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generations[key]
}

func (s *State) fetchAndStore(ctx context.Context, key caching.Key, fetch func(ctx context.Context) (*big.Int, error)) (*big.Int, error) {
	name := key.String()
	gen := s.generation(name)

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generations[name] != gen {
		log.WithField("key", name).Debug("key invalidated during read, not caching")

		return value, nil
	}

	if err := s.cache.Set(ctx, key, value); err != nil {
		log.WithError(err).WithField("key", name).Warn("failed to cache read")
	}

	return value, nil
}

func (s *State) cached(ctx context.Context, key caching.Key, fresh bool, fetch func(ctx context.Context) (*big.Int, error)) (*big.Int, error) {
	if fresh {
		// fresh reads never join a fetch that started before them
		value, err := s.fetchAndStore(ctx, key, fetch)
		if err != nil {
			return nil, err
		}

		return new(big.Int).Set(value), nil
	}

	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key.String()).Warn("cache lookup failed, reading from chain")
	} else if ok {
		return value, nil
	}

	// concurrent identical reads of one generation share one rpc call
	flight := key.String() + "#" + strconv.FormatUint(s.generation(key.String()), 10)

	res, err, _ := s.group.Do(flight, func() (interface{}, error) {
		return s.fetchAndStore(ctx, key, fetch)
	})
	if err != nil {
		return nil, err
	}

	return new(big.Int).Set(res.(*big.Int)), nil
}

func (s *State) Balance(ctx context.Context, chainID uint64, token, owner common.Address, fresh bool) (*big.Int, error) {
	return s.cached(ctx, caching.BalanceKey(chainID, token, owner), fresh, func(ctx context.Context) (*big.Int, error) {
		return smartcontract.ReadBigInt(ctx, s.reader, chainID, smartcontract.BalanceOf{Token: token, Account: owner})
	})
}

func (s *State) NativeBalance(ctx context.Context, chainID uint64, owner common.Address, fresh bool) (*big.Int, error) {
	return s.cached(ctx, caching.NativeBalanceKey(chainID, owner), fresh, func(ctx context.Context) (*big.Int, error) {
		balance, err := s.reader.NativeBalance(ctx, chainID, owner)
		if err != nil {
			return nil, txerrors.Wrap(txerrors.KindContractRead, err, "native balance of %s", owner.Hex())
		}

		return balance, nil
	})
}

func (s *State) Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address, fresh bool) (*big.Int, error) {
	return s.cached(ctx, caching.AllowanceKey(chainID, token, owner, spender), fresh, func(ctx context.Context) (*big.Int, error) {
		return smartcontract.ReadBigInt(ctx, s.reader, chainID, smartcontract.Allowance{Token: token, Owner: owner, Spender: spender})
	})
}

// QueueDelay returns the protocol-wide redemption delay in seconds.
func (s *State) QueueDelay(ctx context.Context, chainID uint64, queue common.Address) (int64, error) {
	delay, err := s.cached(ctx, caching.QueueDelayKey(chainID, queue), false, func(ctx context.Context) (*big.Int, error) {
		return smartcontract.ReadBigInt(ctx, s.reader, chainID, smartcontract.RedemptionDelay{Queue: queue})
	})
	if err != nil {
		return 0, err
	}

	if !delay.IsInt64() || delay.Sign() < 0 {
		return 0, txerrors.New(txerrors.KindContractRead, "queue delay %s out of range", delay)
	}

	return delay.Int64(), nil
}

// RedemptionRequest is always read from chain. A nil request means the user has
// no active request.
func (s *State) RedemptionRequest(ctx context.Context, chainID uint64, queue, user common.Address) (*datamodel.RedemptionRequest, error) {
	return smartcontract.ReadRedemptionRequest(ctx, s.reader, chainID, smartcontract.RedemptionRequestOf{Queue: queue, User: user})
}

func (s *State) StakingSnapshot(ctx context.Context, chainID uint64, pool, user common.Address, fresh bool) (*datamodel.StakingPoolSnapshot, error) {
	keys := caching.StakingKeys(chainID, pool, user)
	calls := []smartcontract.Call{
		smartcontract.RewardRate{Pool: pool},
		smartcontract.TotalStaked{Pool: pool},
		smartcontract.PeriodFinish{Pool: pool},
		smartcontract.StakedBalance{Pool: pool, Account: user},
		smartcontract.Earned{Pool: pool, Account: user},
	}

	values := make([]*big.Int, len(calls))

	for i := range calls {
		call := calls[i]

		value, err := s.cached(ctx, keys[i], fresh, func(ctx context.Context) (*big.Int, error) {
			return smartcontract.ReadBigInt(ctx, s.reader, chainID, call)
		})
		if err != nil {
			return nil, err
		}

		values[i] = value
	}

	if !values[2].IsInt64() {
		return nil, txerrors.New(txerrors.KindContractRead, "period finish %s out of range", values[2])
	}

	return &datamodel.StakingPoolSnapshot{
		RewardRatePerSecond: values[0],
		TotalStaked:         values[1],
		PeriodFinish:        values[2].Int64(),
		UserStaked:          values[3],
		UserEarned:          values[4],
	}, nil
}

// Invalidate drops cached values so the next read goes to chain.
func (s *State) Invalidate(ctx context.Context, keys ...caching.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		s.generations[key.String()]++
	}

	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %d keys: %w", len(keys), err)
	}

	return nil
}
