package smartcontract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// CallKind tags each typed contract call.
type CallKind string

const (
	CallBalanceOf         CallKind = "balanceOf"
	CallAllowance         CallKind = "allowance"
	CallApprove           CallKind = "approve"
	CallDeposit           CallKind = "deposit"
	CallStake             CallKind = "stake"
	CallWithdraw          CallKind = "withdraw"
	CallGetReward         CallKind = "getReward"
	CallRewardRate        CallKind = "rewardRate"
	CallTotalStaked       CallKind = "totalSupply"
	CallStakedBalance     CallKind = "stakedBalanceOf"
	CallEarned            CallKind = "earned"
	CallPeriodFinish      CallKind = "periodFinish"
	CallRedeem            CallKind = "redeem"
	CallRedemptionRequest CallKind = "redemptionRequests"
	CallRedemptionDelay   CallKind = "redemptionDelay"
	CallQuoteSend         CallKind = "quoteSend"
	CallSend              CallKind = "send"
)

// Call is a strongly typed contract call. The set of implementations is closed:
// only the records in this file satisfy it.
type Call interface {
	Kind() CallKind
	Target() common.Address
	abiMethod() (*abi.ABI, string, []interface{})
}

// SendParam mirrors the OFT SendParam struct.
type SendParam struct {
	DstEid       uint32
	To           [32]byte
	AmountLD     *big.Int
	MinAmountLD  *big.Int
	ExtraOptions []byte
	ComposeMsg   []byte
	OftCmd       []byte
}

// MessagingFee mirrors the endpoint MessagingFee struct.
type MessagingFee struct {
	NativeFee  *big.Int
	LzTokenFee *big.Int
}

type BalanceOf struct {
	Token   common.Address
	Account common.Address
}

func (c BalanceOf) Kind() CallKind         { return CallBalanceOf }
func (c BalanceOf) Target() common.Address { return c.Token }
func (c BalanceOf) abiMethod() (*abi.ABI, string, []interface{}) {
	return &erc20ABI, "balanceOf", []interface{}{c.Account}
}

type Allowance struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

func (c Allowance) Kind() CallKind         { return CallAllowance }
func (c Allowance) Target() common.Address { return c.Token }
func (c Allowance) abiMethod() (*abi.ABI, string, []interface{}) {
	return &erc20ABI, "allowance", []interface{}{c.Owner, c.Spender}
}

type Approve struct {
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
}

func (c Approve) Kind() CallKind         { return CallApprove }
func (c Approve) Target() common.Address { return c.Token }
func (c Approve) abiMethod() (*abi.ABI, string, []interface{}) {
	return &erc20ABI, "approve", []interface{}{c.Spender, c.Amount}
}

type Deposit struct {
	Wrapper common.Address
	Token   common.Address
	Amount  *big.Int
}

func (c Deposit) Kind() CallKind         { return CallDeposit }
func (c Deposit) Target() common.Address { return c.Wrapper }
func (c Deposit) abiMethod() (*abi.ABI, string, []interface{}) {
	return &wrapperABI, "deposit", []interface{}{c.Token, c.Amount}
}

type Stake struct {
	Pool   common.Address
	Amount *big.Int
}

func (c Stake) Kind() CallKind         { return CallStake }
func (c Stake) Target() common.Address { return c.Pool }
func (c Stake) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "stake", []interface{}{c.Amount}
}

type Withdraw struct {
	Pool   common.Address
	Amount *big.Int
}

func (c Withdraw) Kind() CallKind         { return CallWithdraw }
func (c Withdraw) Target() common.Address { return c.Pool }
func (c Withdraw) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "withdraw", []interface{}{c.Amount}
}

type GetReward struct {
	Pool common.Address
}

func (c GetReward) Kind() CallKind         { return CallGetReward }
func (c GetReward) Target() common.Address { return c.Pool }
func (c GetReward) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "getReward", nil
}

type RewardRate struct {
	Pool common.Address
}

func (c RewardRate) Kind() CallKind         { return CallRewardRate }
func (c RewardRate) Target() common.Address { return c.Pool }
func (c RewardRate) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "rewardRate", nil
}

type TotalStaked struct {
	Pool common.Address
}

func (c TotalStaked) Kind() CallKind         { return CallTotalStaked }
func (c TotalStaked) Target() common.Address { return c.Pool }
func (c TotalStaked) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "totalSupply", nil
}

type StakedBalance struct {
	Pool    common.Address
	Account common.Address
}

func (c StakedBalance) Kind() CallKind         { return CallStakedBalance }
func (c StakedBalance) Target() common.Address { return c.Pool }
func (c StakedBalance) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "balanceOf", []interface{}{c.Account}
}

type Earned struct {
	Pool    common.Address
	Account common.Address
}

func (c Earned) Kind() CallKind         { return CallEarned }
func (c Earned) Target() common.Address { return c.Pool }
func (c Earned) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "earned", []interface{}{c.Account}
}

type PeriodFinish struct {
	Pool common.Address
}

func (c PeriodFinish) Kind() CallKind         { return CallPeriodFinish }
func (c PeriodFinish) Target() common.Address { return c.Pool }
func (c PeriodFinish) abiMethod() (*abi.ABI, string, []interface{}) {
	return &stakingABI, "periodFinish", nil
}

type Redeem struct {
	Queue  common.Address
	Token  common.Address
	Amount *big.Int
}

func (c Redeem) Kind() CallKind         { return CallRedeem }
func (c Redeem) Target() common.Address { return c.Queue }
func (c Redeem) abiMethod() (*abi.ABI, string, []interface{}) {
	return &redemptionQueueABI, "redeem", []interface{}{c.Token, c.Amount}
}

type RedemptionRequestOf struct {
	Queue common.Address
	User  common.Address
}

func (c RedemptionRequestOf) Kind() CallKind         { return CallRedemptionRequest }
func (c RedemptionRequestOf) Target() common.Address { return c.Queue }
func (c RedemptionRequestOf) abiMethod() (*abi.ABI, string, []interface{}) {
	return &redemptionQueueABI, "redemptionRequests", []interface{}{c.User}
}

type RedemptionDelay struct {
	Queue common.Address
}

func (c RedemptionDelay) Kind() CallKind         { return CallRedemptionDelay }
func (c RedemptionDelay) Target() common.Address { return c.Queue }
func (c RedemptionDelay) abiMethod() (*abi.ABI, string, []interface{}) {
	return &redemptionQueueABI, "redemptionDelay", nil
}

type QuoteSend struct {
	OFT          common.Address
	Param        SendParam
	PayInLzToken bool
}

func (c QuoteSend) Kind() CallKind         { return CallQuoteSend }
func (c QuoteSend) Target() common.Address { return c.OFT }
func (c QuoteSend) abiMethod() (*abi.ABI, string, []interface{}) {
	return &oftABI, "quoteSend", []interface{}{c.Param, c.PayInLzToken}
}

type Send struct {
	OFT           common.Address
	Param         SendParam
	Fee           MessagingFee
	RefundAddress common.Address
}

func (c Send) Kind() CallKind         { return CallSend }
func (c Send) Target() common.Address { return c.OFT }
func (c Send) abiMethod() (*abi.ABI, string, []interface{}) {
	return &oftABI, "send", []interface{}{c.Param, c.Fee, c.RefundAddress}
}

// Pack ABI-encodes call's calldata.
func Pack(call Call) ([]byte, error) {
	contractABI, method, args := call.abiMethod()

	return contractABI.Pack(method, args...)
}

// Unpack decodes the return data of call.
func Unpack(call Call, data []byte) ([]interface{}, error) {
	contractABI, method, _ := call.abiMethod()

	return contractABI.Unpack(method, data)
}

// EncodeArguments ABI-encodes call's arguments without the selector. It is used
// to fingerprint a call's parameters.
func EncodeArguments(call Call) ([]byte, error) {
	contractABI, method, args := call.abiMethod()

	return contractABI.Methods[method].Inputs.Pack(args...)
}
