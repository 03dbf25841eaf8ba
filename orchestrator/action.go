package orchestrator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/caching"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
)

// Spend is the token amount an action moves out of the user's balance.
type Spend struct {
	Token  common.Address
	Amount *big.Int
	// Spender is set when the target contract pulls the tokens through an
	// allowance, which makes the approval gate part of the flow.
	Spender *common.Address
}

// Action is the action-specific part of a flow. The orchestrator owns
// sequencing, approval, re-validation and refresh.
type Action interface {
	Kind() datamodel.Action
	ChainID() uint64
	// Token is the token the flow is keyed on together with user and kind.
	Token() common.Address
	// Validate checks the static parameters. It performs no reads.
	Validate() error
	// Spend is nil for actions that move no balance through an allowance.
	Spend() *Spend
	// Prepare runs the action's own pre-flight reads right before submitting.
	Prepare(ctx context.Context, identity datamodel.Identity) error
	Call(identity datamodel.Identity) (smartcontract.Call, *big.Int)
	// RefreshKeys are the reads a confirmed transaction makes stale.
	RefreshKeys(identity datamodel.Identity) []caching.Key
}

// TxObserver is implemented by actions that track their own transaction state.
type TxObserver interface {
	Submitted(tx *smartcontract.PendingTx)
	Resolved(receipt *smartcontract.Receipt, err error)
}

// ChainState is the read side the orchestrator re-validates against.
type ChainState interface {
	Balance(ctx context.Context, chainID uint64, token, owner common.Address, fresh bool) (*big.Int, error)
	Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address, fresh bool) (*big.Int, error)
	Invalidate(ctx context.Context, keys ...caching.Key) error
}

// StakingReader is used by the unstake and claim pre-flights.
type StakingReader interface {
	StakingSnapshot(ctx context.Context, chainID uint64, pool, user common.Address, fresh bool) (*datamodel.StakingPoolSnapshot, error)
}

type Refresher interface {
	Refresh(keys ...caching.Key)
}

type Reporter interface {
	Report(issue *datamodel.FlowIssue)
}
