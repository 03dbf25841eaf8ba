package staking

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
)

const SecondsPerYear = 365 * 24 * 60 * 60

var hundred = decimal.NewFromInt(100)

// APY annualizes the reward rate against the total staked, in percent. Both sides
// are brought to the same precision first; reward and staked token are valued
// one to one. Zero rate or zero supply yields 0.
func APY(rewardRatePerSecond, totalStaked *big.Int, rewardTokenDecimals, stakedTokenDecimals uint8) float64 {
	if rewardRatePerSecond == nil || totalStaked == nil || rewardRatePerSecond.Sign() <= 0 || totalStaked.Sign() <= 0 {
		return 0
	}

	perYear := new(big.Int).Mul(rewardRatePerSecond, big.NewInt(SecondsPerYear))

	rewards := decimal.NewFromBigInt(decimals.Rescale(perYear, rewardTokenDecimals, decimals.MaxDecimals), 0)
	staked := decimal.NewFromBigInt(decimals.Rescale(totalStaked, stakedTokenDecimals, decimals.MaxDecimals), 0)

	return rewards.Div(staked).Mul(hundred).InexactFloat64()
}

// APYAt is APY for a snapshot, 0 once the reward period has finished.
func APYAt(snapshot *datamodel.StakingPoolSnapshot, rewardTokenDecimals, stakedTokenDecimals uint8, now time.Time) float64 {
	if snapshot.PeriodFinish > 0 && now.Unix() >= snapshot.PeriodFinish {
		return 0
	}

	return APY(snapshot.RewardRatePerSecond, snapshot.TotalStaked, rewardTokenDecimals, stakedTokenDecimals)
}

// PoolShare is the user's share of the pool, in percent.
func PoolShare(userStaked, totalStaked *big.Int) float64 {
	if userStaked == nil || totalStaked == nil || totalStaked.Sign() <= 0 {
		return 0
	}

	return decimal.NewFromBigInt(userStaked, 0).Div(decimal.NewFromBigInt(totalStaked, 0)).Mul(hundred).InexactFloat64()
}

// ProjectedPeriodRewards is what an additional stake of userStaked would earn
// over the period: rate * period * user / (total + user), multiplied out before
// the single floor division.
func ProjectedPeriodRewards(rewardRatePerSecond, userStaked, totalStaked *big.Int, periodSeconds int64) *big.Int {
	if rewardRatePerSecond == nil || userStaked == nil || totalStaked == nil || periodSeconds <= 0 {
		return new(big.Int)
	}

	denominator := new(big.Int).Add(userStaked, totalStaked)
	if denominator.Sign() <= 0 {
		return new(big.Int)
	}

	numerator := new(big.Int).Mul(rewardRatePerSecond, big.NewInt(periodSeconds))
	numerator.Mul(numerator, userStaked)

	return numerator.Div(numerator, denominator)
}

// CurrentPeriodRewards is what a stake already counted in totalStaked earns over
// the period: rate * period * user / total.
func CurrentPeriodRewards(rewardRatePerSecond, userStaked, totalStaked *big.Int, periodSeconds int64) *big.Int {
	if rewardRatePerSecond == nil || userStaked == nil || totalStaked == nil || periodSeconds <= 0 || totalStaked.Sign() <= 0 {
		return new(big.Int)
	}

	numerator := new(big.Int).Mul(rewardRatePerSecond, big.NewInt(periodSeconds))
	numerator.Mul(numerator, userStaked)

	return numerator.Div(numerator, totalStaked)
}

// Economics is the advisory staking view. It is never used to size a transaction.
type Economics struct {
	APYPercent       float64  `json:"apy_percent"`
	PoolSharePercent float64  `json:"pool_share_percent"`
	ProjectedDaily   *big.Int `json:"projected_daily"`
	Earned           *big.Int `json:"earned"`
	RewardsActive    bool     `json:"rewards_active"`
}

func Summarize(snapshot *datamodel.StakingPoolSnapshot, rewardTokenDecimals, stakedTokenDecimals uint8, now time.Time) *Economics {
	active := snapshot.PeriodFinish == 0 || now.Unix() < snapshot.PeriodFinish

	projected := new(big.Int)
	if active {
		projected = CurrentPeriodRewards(snapshot.RewardRatePerSecond, snapshot.UserStaked, snapshot.TotalStaked, 24*60*60)
	}

	earned := new(big.Int)
	if snapshot.UserEarned != nil {
		earned.Set(snapshot.UserEarned)
	}

	return &Economics{
		APYPercent:       APYAt(snapshot, rewardTokenDecimals, stakedTokenDecimals, now),
		PoolSharePercent: PoolShare(snapshot.UserStaked, snapshot.TotalStaked),
		ProjectedDaily:   projected,
		Earned:           earned,
		RewardsActive:    active,
	}
}
