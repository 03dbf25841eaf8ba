package orchestrator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/caching"
	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

func validateAmount(amount *big.Int) error {
	if err := decimals.ValidateOnChain(amount); err != nil {
		return txerrors.Classify(err, txerrors.KindInvalidAmount, txerrors.StepValidate)
	}

	return nil
}

// WrapAction deposits collateral into the wrapper and mints sovaBTC.
type WrapAction struct {
	chainID    uint64
	wrapper    common.Address
	collateral *datamodel.TokenDescriptor
	sovaBTC    common.Address
	amount     *big.Int
}

// NewWrapAction takes amount in the collateral's native decimals.
func NewWrapAction(chainID uint64, wrapper common.Address, collateral *datamodel.TokenDescriptor, sovaBTC common.Address, amount *big.Int) *WrapAction {
	return &WrapAction{chainID: chainID, wrapper: wrapper, collateral: collateral, sovaBTC: sovaBTC, amount: amount}
}

func (a *WrapAction) Kind() datamodel.Action { return datamodel.ActionWrap }
func (a *WrapAction) ChainID() uint64        { return a.chainID }
func (a *WrapAction) Token() common.Address  { return a.collateral.Address() }

func (a *WrapAction) Validate() error {
	if err := validateAmount(a.amount); err != nil {
		return err
	}

	// collateral with more than 8 decimals can floor to zero sova-units
	if decimals.ToCanonical(a.amount, a.collateral.Decimals()).Sign() == 0 {
		return txerrors.New(txerrors.KindInvalidAmount, "%s %s is below one sova-unit",
			decimals.FormatDecimal(a.amount, a.collateral.Decimals(), -1), a.collateral.Symbol()).WithStep(txerrors.StepValidate)
	}

	return nil
}

func (a *WrapAction) Spend() *Spend {
	return &Spend{Token: a.collateral.Address(), Amount: a.amount, Spender: &a.wrapper}
}

func (a *WrapAction) Prepare(context.Context, datamodel.Identity) error { return nil }

func (a *WrapAction) Call(datamodel.Identity) (smartcontract.Call, *big.Int) {
	return smartcontract.Deposit{Wrapper: a.wrapper, Token: a.collateral.Address(), Amount: a.amount}, nil
}

func (a *WrapAction) RefreshKeys(identity datamodel.Identity) []caching.Key {
	return []caching.Key{
		caching.BalanceKey(a.chainID, a.collateral.Address(), identity.Address),
		caching.BalanceKey(a.chainID, a.sovaBTC, identity.Address),
		caching.AllowanceKey(a.chainID, a.collateral.Address(), identity.Address, a.wrapper),
	}
}

// StakeAction stakes sovaBTC into the reward pool.
type StakeAction struct {
	chainID uint64
	pool    common.Address
	sovaBTC common.Address
	amount  *big.Int
}

func NewStakeAction(chainID uint64, pool, sovaBTC common.Address, amount *big.Int) *StakeAction {
	return &StakeAction{chainID: chainID, pool: pool, sovaBTC: sovaBTC, amount: amount}
}

func (a *StakeAction) Kind() datamodel.Action { return datamodel.ActionStake }
func (a *StakeAction) ChainID() uint64        { return a.chainID }
func (a *StakeAction) Token() common.Address  { return a.sovaBTC }
func (a *StakeAction) Validate() error        { return validateAmount(a.amount) }

func (a *StakeAction) Spend() *Spend {
	return &Spend{Token: a.sovaBTC, Amount: a.amount, Spender: &a.pool}
}

func (a *StakeAction) Prepare(context.Context, datamodel.Identity) error { return nil }

func (a *StakeAction) Call(datamodel.Identity) (smartcontract.Call, *big.Int) {
	return smartcontract.Stake{Pool: a.pool, Amount: a.amount}, nil
}

func (a *StakeAction) RefreshKeys(identity datamodel.Identity) []caching.Key {
	keys := []caching.Key{
		caching.BalanceKey(a.chainID, a.sovaBTC, identity.Address),
		caching.AllowanceKey(a.chainID, a.sovaBTC, identity.Address, a.pool),
	}

	return append(keys, caching.StakingKeys(a.chainID, a.pool, identity.Address)...)
}

// UnstakeAction withdraws staked sovaBTC. It needs no allowance.
type UnstakeAction struct {
	chainID uint64
	pool    common.Address
	sovaBTC common.Address
	amount  *big.Int
	staking StakingReader
}

func NewUnstakeAction(chainID uint64, pool, sovaBTC common.Address, amount *big.Int, staking StakingReader) *UnstakeAction {
	return &UnstakeAction{chainID: chainID, pool: pool, sovaBTC: sovaBTC, amount: amount, staking: staking}
}

func (a *UnstakeAction) Kind() datamodel.Action { return datamodel.ActionUnstake }
func (a *UnstakeAction) ChainID() uint64        { return a.chainID }
func (a *UnstakeAction) Token() common.Address  { return a.sovaBTC }
func (a *UnstakeAction) Validate() error        { return validateAmount(a.amount) }
func (a *UnstakeAction) Spend() *Spend          { return nil }

func (a *UnstakeAction) Prepare(ctx context.Context, identity datamodel.Identity) error {
	snapshot, err := a.staking.StakingSnapshot(ctx, a.chainID, a.pool, identity.Address, true)
	if err != nil {
		return err
	}

	if snapshot.UserStaked == nil || snapshot.UserStaked.Cmp(a.amount) < 0 {
		return txerrors.New(txerrors.KindInsufficientBalance, "staked %s, unstaking %s", snapshot.UserStaked, a.amount).WithStep(txerrors.StepAction)
	}

	return nil
}

func (a *UnstakeAction) Call(datamodel.Identity) (smartcontract.Call, *big.Int) {
	return smartcontract.Withdraw{Pool: a.pool, Amount: a.amount}, nil
}

func (a *UnstakeAction) RefreshKeys(identity datamodel.Identity) []caching.Key {
	keys := []caching.Key{caching.BalanceKey(a.chainID, a.sovaBTC, identity.Address)}

	return append(keys, caching.StakingKeys(a.chainID, a.pool, identity.Address)...)
}

// ClaimAction collects earned staking rewards.
type ClaimAction struct {
	chainID     uint64
	pool        common.Address
	rewardToken common.Address
	staking     StakingReader
}

func NewClaimAction(chainID uint64, pool, rewardToken common.Address, staking StakingReader) *ClaimAction {
	return &ClaimAction{chainID: chainID, pool: pool, rewardToken: rewardToken, staking: staking}
}

func (a *ClaimAction) Kind() datamodel.Action { return datamodel.ActionClaim }
func (a *ClaimAction) ChainID() uint64        { return a.chainID }
func (a *ClaimAction) Token() common.Address  { return a.rewardToken }
func (a *ClaimAction) Validate() error        { return nil }
func (a *ClaimAction) Spend() *Spend          { return nil }

func (a *ClaimAction) Prepare(ctx context.Context, identity datamodel.Identity) error {
	snapshot, err := a.staking.StakingSnapshot(ctx, a.chainID, a.pool, identity.Address, true)
	if err != nil {
		return err
	}

	if snapshot.UserEarned == nil || snapshot.UserEarned.Sign() <= 0 {
		return txerrors.New(txerrors.KindInvalidAmount, "no rewards to claim").WithStep(txerrors.StepAction)
	}

	return nil
}

func (a *ClaimAction) Call(datamodel.Identity) (smartcontract.Call, *big.Int) {
	return smartcontract.GetReward{Pool: a.pool}, nil
}

func (a *ClaimAction) RefreshKeys(identity datamodel.Identity) []caching.Key {
	keys := []caching.Key{caching.BalanceKey(a.chainID, a.rewardToken, identity.Address)}

	return append(keys, caching.StakingKeys(a.chainID, a.pool, identity.Address)...)
}

// RedeemAction queues sovaBTC for redemption into a target collateral token.
type RedeemAction struct {
	chainID     uint64
	queue       common.Address
	sovaBTC     common.Address
	targetToken common.Address
	amount      *big.Int
}

// NewRedeemAction takes amount in sova-units.
func NewRedeemAction(chainID uint64, queue, sovaBTC, targetToken common.Address, amount *big.Int) *RedeemAction {
	return &RedeemAction{chainID: chainID, queue: queue, sovaBTC: sovaBTC, targetToken: targetToken, amount: amount}
}

func (a *RedeemAction) Kind() datamodel.Action { return datamodel.ActionRedeem }
func (a *RedeemAction) ChainID() uint64        { return a.chainID }
func (a *RedeemAction) Token() common.Address  { return a.sovaBTC }

func (a *RedeemAction) Validate() error {
	if a.targetToken == (common.Address{}) {
		return txerrors.New(txerrors.KindInvalidRecipient, "redemption target token is not set").WithStep(txerrors.StepValidate)
	}

	return validateAmount(a.amount)
}

func (a *RedeemAction) Spend() *Spend {
	return &Spend{Token: a.sovaBTC, Amount: a.amount, Spender: &a.queue}
}

func (a *RedeemAction) Prepare(context.Context, datamodel.Identity) error { return nil }

func (a *RedeemAction) Call(datamodel.Identity) (smartcontract.Call, *big.Int) {
	return smartcontract.Redeem{Queue: a.queue, Token: a.targetToken, Amount: a.amount}, nil
}

func (a *RedeemAction) RefreshKeys(identity datamodel.Identity) []caching.Key {
	return []caching.Key{
		caching.BalanceKey(a.chainID, a.sovaBTC, identity.Address),
		caching.AllowanceKey(a.chainID, a.sovaBTC, identity.Address, a.queue),
		caching.RedemptionKey(a.chainID, a.queue, identity.Address),
	}
}
