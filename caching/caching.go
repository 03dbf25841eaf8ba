package caching

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/goutils/redisutils"
)

type ReadKind string

const (
	ReadBalance           ReadKind = "balance"
	ReadNativeBalance     ReadKind = "native_balance"
	ReadAllowance         ReadKind = "allowance"
	ReadQueueDelay        ReadKind = "queue_delay"
	ReadRedemption        ReadKind = "redemption"
	ReadStakingRate       ReadKind = "staking_rate"
	ReadStakingTotal      ReadKind = "staking_total"
	ReadStakingUser       ReadKind = "staking_user"
	ReadStakingEarned     ReadKind = "staking_earned"
	ReadStakingFinishTime ReadKind = "staking_period_finish"
)

// Key identifies one cached on-chain read. Fields that do not apply to a kind
// are left as the zero address.
type Key struct {
	ChainID uint64
	Kind    ReadKind
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

func (k Key) String() string {
	return fmt.Sprintf(redisutils.REDIS_KEY_CHAIN_READ, k.ChainID, k.Kind, k.Token.Hex(), k.Owner.Hex(), k.Spender.Hex())
}

func BalanceKey(chainID uint64, token, owner common.Address) Key {
	return Key{ChainID: chainID, Kind: ReadBalance, Token: token, Owner: owner}
}

func NativeBalanceKey(chainID uint64, owner common.Address) Key {
	return Key{ChainID: chainID, Kind: ReadNativeBalance, Owner: owner}
}

func AllowanceKey(chainID uint64, token, owner, spender common.Address) Key {
	return Key{ChainID: chainID, Kind: ReadAllowance, Token: token, Owner: owner, Spender: spender}
}

func QueueDelayKey(chainID uint64, queue common.Address) Key {
	return Key{ChainID: chainID, Kind: ReadQueueDelay, Spender: queue}
}

func RedemptionKey(chainID uint64, queue, owner common.Address) Key {
	return Key{ChainID: chainID, Kind: ReadRedemption, Owner: owner, Spender: queue}
}

// StakingKeys returns every key of the pool snapshot for owner.
func StakingKeys(chainID uint64, pool, owner common.Address) []Key {
	return []Key{
		{ChainID: chainID, Kind: ReadStakingRate, Spender: pool},
		{ChainID: chainID, Kind: ReadStakingTotal, Spender: pool},
		{ChainID: chainID, Kind: ReadStakingFinishTime, Spender: pool},
		{ChainID: chainID, Kind: ReadStakingUser, Owner: owner, Spender: pool},
		{ChainID: chainID, Kind: ReadStakingEarned, Owner: owner, Spender: pool},
	}
}

// ReadCache holds the last observed value of on-chain reads. A value older than
// the staleness window is reported as a miss.
type ReadCache interface {
	Get(ctx context.Context, key Key) (*big.Int, bool, error)
	Set(ctx context.Context, key Key, value *big.Int) error
	Invalidate(ctx context.Context, keys ...Key) error
}

var ErrCacheBackend = errors.New("cache backend failure")
