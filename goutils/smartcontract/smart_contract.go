package smartcontract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/txerrors"
)

// Reader is the contract-read primitive. Results may be stale.
type Reader interface {
	Read(ctx context.Context, chainID uint64, call Call) ([]interface{}, error)
	NativeBalance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)
}

// Writer is the contract-write primitive. Failures (signer rejection, simulation
// revert) are returned before any handle is produced.
type Writer interface {
	Write(ctx context.Context, identity datamodel.Identity, chainID uint64, call Call, value *big.Int) (*PendingTx, error)
}

// ReceiptWaiter resolves a pending transaction. It imposes no timeout of its own.
type ReceiptWaiter interface {
	AwaitReceipt(ctx context.Context, tx *PendingTx) (*Receipt, error)
}

// Wallet exposes the currently connected identity, which may change at any time.
type Wallet interface {
	Identity(ctx context.Context) (datamodel.Identity, error)
}

type PendingTx struct {
	Hash        common.Hash `json:"hash"`
	ChainID     uint64      `json:"chain_id"`
	Kind        CallKind    `json:"kind"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

type ReceiptStatus string

const (
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptReverted  ReceiptStatus = "reverted"
)

type Receipt struct {
	Status      ReceiptStatus `json:"status"`
	TxHash      common.Hash   `json:"tx_hash"`
	BlockNumber uint64        `json:"block_number"`
	BlockHash   common.Hash   `json:"block_hash"`
	GasUsed     uint64        `json:"gas_used"`
}

func readError(call Call, err error) error {
	return txerrors.Wrap(txerrors.KindContractRead, errors.Wrapf(err, "read %s", call.Kind()), "contract read failed")
}

// ReadBigInt performs a read whose single return value is a uint256.
func ReadBigInt(ctx context.Context, r Reader, chainID uint64, call Call) (*big.Int, error) {
	out, err := r.Read(ctx, chainID, call)
	if err != nil {
		return nil, readError(call, err)
	}

	if len(out) == 0 {
		return nil, readError(call, fmt.Errorf("empty result"))
	}

	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, readError(call, fmt.Errorf("unexpected result type %T", out[0]))
	}

	return value, nil
}

// ReadRedemptionRequest returns nil when the queue holds no request for the user.
func ReadRedemptionRequest(ctx context.Context, r Reader, chainID uint64, call RedemptionRequestOf) (*datamodel.RedemptionRequest, error) {
	out, err := r.Read(ctx, chainID, call)
	if err != nil {
		return nil, readError(call, err)
	}

	if len(out) != 4 {
		return nil, readError(call, fmt.Errorf("expected 4 results, got %d", len(out)))
	}

	token, okToken := out[0].(common.Address)
	amount, okAmount := out[1].(*big.Int)
	requestTime, okTime := out[2].(*big.Int)
	fulfilled, okFulfilled := out[3].(bool)

	if !okToken || !okAmount || !okTime || !okFulfilled {
		return nil, readError(call, fmt.Errorf("unexpected result types"))
	}

	if !requestTime.IsInt64() {
		return nil, readError(call, fmt.Errorf("request time %s out of range", requestTime))
	}

	req := &datamodel.RedemptionRequest{
		Requester:        call.User,
		TargetToken:      token,
		CanonicalAmount:  amount,
		RequestTimestamp: requestTime.Int64(),
		Fulfilled:        fulfilled,
	}

	if req.Empty() {
		return nil, nil
	}

	return req, nil
}

// ReadQuote performs quoteSend on the source OFT.
func ReadQuote(ctx context.Context, r Reader, chainID uint64, call QuoteSend) (*MessagingFee, error) {
	out, err := r.Read(ctx, chainID, call)
	if err != nil {
		return nil, readError(call, err)
	}

	if len(out) == 0 {
		return nil, readError(call, fmt.Errorf("empty result"))
	}

	fee := new(MessagingFee)
	if direct, ok := out[0].(MessagingFee); ok {
		*fee = direct
	} else {
		converted, ok := abi.ConvertType(out[0], new(MessagingFee)).(*MessagingFee)
		if !ok {
			return nil, readError(call, fmt.Errorf("unexpected result type %T", out[0]))
		}

		fee = converted
	}

	if fee.NativeFee == nil {
		fee.NativeFee = new(big.Int)
	}

	if fee.LzTokenFee == nil {
		fee.LzTokenFee = new(big.Int)
	}

	return fee, nil
}
