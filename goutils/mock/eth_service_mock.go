package mock

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type EthServiceMock struct {
	ChainIDMock            func(ctx context.Context) (*big.Int, error)
	PendingNonceAtMock     func(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPriceMock    func(ctx context.Context) (*big.Int, error)
	BlockNumberMock        func(ctx context.Context) (uint64, error)
	BalanceAtMock          func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContractMock       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGasMock        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransactionMock    func(ctx context.Context, tx *types.Transaction) error
	TransactionReceiptMock func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

func (m EthServiceMock) ChainID(ctx context.Context) (*big.Int, error) {
	return m.ChainIDMock(ctx)
}

func (m EthServiceMock) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.PendingNonceAtMock(ctx, account)
}

func (m EthServiceMock) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.SuggestGasPriceMock(ctx)
}

func (m EthServiceMock) BlockNumber(ctx context.Context) (uint64, error) {
	return m.BlockNumberMock(ctx)
}

func (m EthServiceMock) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return m.BalanceAtMock(ctx, account, blockNumber)
}

func (m EthServiceMock) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return m.CallContractMock(ctx, msg, blockNumber)
}

func (m EthServiceMock) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return m.EstimateGasMock(ctx, msg)
}

func (m EthServiceMock) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.SendTransactionMock(ctx, tx)
}

func (m EthServiceMock) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return m.TransactionReceiptMock(ctx, txHash)
}
