package mock

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
)

type ReaderMock struct {
	ReadMock          func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error)
	NativeBalanceMock func(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)
}

func (m ReaderMock) Read(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
	return m.ReadMock(ctx, chainID, call)
}

func (m ReaderMock) NativeBalance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	return m.NativeBalanceMock(ctx, chainID, account)
}

type WriterMock struct {
	WriteMock func(ctx context.Context, identity datamodel.Identity, chainID uint64, call smartcontract.Call, value *big.Int) (*smartcontract.PendingTx, error)
}

func (m WriterMock) Write(ctx context.Context, identity datamodel.Identity, chainID uint64, call smartcontract.Call, value *big.Int) (*smartcontract.PendingTx, error) {
	return m.WriteMock(ctx, identity, chainID, call, value)
}

type ReceiptWaiterMock struct {
	AwaitReceiptMock func(ctx context.Context, tx *smartcontract.PendingTx) (*smartcontract.Receipt, error)
}

func (m ReceiptWaiterMock) AwaitReceipt(ctx context.Context, tx *smartcontract.PendingTx) (*smartcontract.Receipt, error) {
	return m.AwaitReceiptMock(ctx, tx)
}

type WalletMock struct {
	IdentityMock func(ctx context.Context) (datamodel.Identity, error)
}

func (m WalletMock) Identity(ctx context.Context) (datamodel.Identity, error) {
	return m.IdentityMock(ctx)
}
