package datamodel

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidTokenDecimals = errors.New("token decimals must be between 0 and 18")

const maxTokenDecimals = 18

// TokenDescriptor is immutable once constructed; use NewTokenDescriptor.
type TokenDescriptor struct {
	address  common.Address
	symbol   string
	decimals uint8
	icon     string
}

func NewTokenDescriptor(address common.Address, symbol string, decimals int, icon string) (*TokenDescriptor, error) {
	if decimals < 0 || decimals > maxTokenDecimals {
		return nil, ErrInvalidTokenDecimals
	}

	return &TokenDescriptor{
		address:  address,
		symbol:   symbol,
		decimals: uint8(decimals),
		icon:     icon,
	}, nil
}

func (t *TokenDescriptor) Address() common.Address { return t.address }
func (t *TokenDescriptor) Symbol() string          { return t.symbol }
func (t *TokenDescriptor) Decimals() uint8         { return t.decimals }
func (t *TokenDescriptor) Icon() string            { return t.icon }

// Identity is the connected wallet at one point in time. It is passed into every
// flow and re-read at each suspension point, never cached across an action.
type Identity struct {
	Address common.Address `json:"address"`
	ChainID uint64         `json:"chain_id"`
}

func (i Identity) Equal(o Identity) bool {
	return i.Address == o.Address && i.ChainID == o.ChainID
}

// Action is one of the user-facing operations the orchestrator sequences.
type Action string

const (
	ActionWrap    Action = "wrap"
	ActionStake   Action = "stake"
	ActionUnstake Action = "unstake"
	ActionClaim   Action = "claim"
	ActionRedeem  Action = "redeem"
	ActionBridge  Action = "bridge"
)

func (a Action) Valid() bool {
	switch a {
	case ActionWrap, ActionStake, ActionUnstake, ActionClaim, ActionRedeem, ActionBridge:
		return true
	}

	return false
}

type RedemptionRequest struct {
	Requester        common.Address `json:"requester"`
	TargetToken      common.Address `json:"target_token"`
	CanonicalAmount  *big.Int       `json:"canonical_amount"`
	RequestTimestamp int64          `json:"request_timestamp"`
	Fulfilled        bool           `json:"fulfilled"`
}

// Empty reports whether the request is the zero struct the queue contract
// returns for users without a request.
func (r *RedemptionRequest) Empty() bool {
	return r == nil || (r.RequestTimestamp == 0 && (r.CanonicalAmount == nil || r.CanonicalAmount.Sign() == 0))
}

type StakingPoolSnapshot struct {
	RewardRatePerSecond *big.Int `json:"reward_rate_per_second"`
	TotalStaked         *big.Int `json:"total_staked"`
	UserStaked          *big.Int `json:"user_staked"`
	UserEarned          *big.Int `json:"user_earned"`
	PeriodFinish        int64    `json:"period_finish"`
}

type BridgeRoute struct {
	SourceChainID         uint64 `json:"source_chain_id"`
	DestinationChainID    uint64 `json:"destination_chain_id"`
	SourceEndpointID      uint32 `json:"source_endpoint_id"`
	DestinationEndpointID uint32 `json:"destination_endpoint_id"`
}

type BridgeQuote struct {
	NativeFee        *big.Int    `json:"native_fee"`
	ProtocolTokenFee *big.Int    `json:"protocol_token_fee"`
	QuotedAt         time.Time   `json:"quoted_at"`
	PayloadHash      common.Hash `json:"payload_hash"`
}

// FlowIssue is what gets reported when a flow ends in FAILED.
type FlowIssue struct {
	InstanceID      string `json:"instanceID"`
	Flow            string `json:"flow"`
	Action          string `json:"action"`
	Kind            string `json:"kind"`
	Step            string `json:"step"`
	Message         string `json:"message"`
	TxHash          string `json:"txHash,omitempty"`
	TimeOfReporting string `json:"timeOfReporting"`
}
