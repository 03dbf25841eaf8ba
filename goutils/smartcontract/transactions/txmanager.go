package transactions

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/ethclient"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

const gasLimitBufferPercent = 20

// TxManager implements the read, write and receipt primitives on top of one RPC
// client per chain and a local signing key. Nonces are tracked locally per chain
// and resynced from the node after a failed send.
type TxManager struct {
	Mu      sync.Mutex
	nonces  map[uint64]uint64
	clients map[uint64]ethclient.Service
	privKey *ecdsa.PrivateKey
	account common.Address

	// receiptPoll is the initial receipt polling interval.
	receiptPoll time.Duration
	now         func() time.Time
}

var (
	_ smartcontract.Reader        = (*TxManager)(nil)
	_ smartcontract.Writer        = (*TxManager)(nil)
	_ smartcontract.ReceiptWaiter = (*TxManager)(nil)
)

func NewTxManager(clients map[uint64]ethclient.Service, privKey *ecdsa.PrivateKey) *TxManager {
	return &TxManager{
		nonces:      make(map[uint64]uint64),
		clients:     clients,
		privKey:     privKey,
		account:     crypto.PubkeyToAddress(privKey.PublicKey),
		receiptPoll: 2 * time.Second,
		now:         time.Now,
	}
}

func (t *TxManager) client(chainID uint64) (ethclient.Service, error) {
	c, ok := t.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc client configured for chain %d", chainID)
	}

	return c, nil
}

func (t *TxManager) Read(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
	c, err := t.client(chainID)
	if err != nil {
		return nil, err
	}

	data, err := smartcontract.Pack(call)
	if err != nil {
		return nil, err
	}

	target := call.Target()

	out, err := c.CallContract(ctx, ethereum.CallMsg{From: t.account, To: &target, Data: data}, nil)
	if err != nil {
		log.WithError(err).WithField("method", call.Kind()).Debug("contract call failed")

		return nil, err
	}

	return smartcontract.Unpack(call, out)
}

func (t *TxManager) NativeBalance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	c, err := t.client(chainID)
	if err != nil {
		return nil, err
	}

	return c.BalanceAt(ctx, account, nil)
}

// Write signs and broadcasts call from the manager's key. The identity must match
// the key; a mismatch means the connected account changed under the flow.
func (t *TxManager) Write(ctx context.Context, identity datamodel.Identity, chainID uint64, call smartcontract.Call, value *big.Int) (*smartcontract.PendingTx, error) {
	if identity.Address != t.account {
		return nil, txerrors.New(txerrors.KindIdentityChanged, "signer %s does not match identity %s", t.account.Hex(), identity.Address.Hex())
	}

	c, err := t.client(chainID)
	if err != nil {
		return nil, txerrors.Wrap(txerrors.KindTransactionRejectedBySigner, err, "no client")
	}

	data, err := smartcontract.Pack(call)
	if err != nil {
		return nil, txerrors.Wrap(txerrors.KindTransactionRejectedBySigner, err, "cannot encode %s", call.Kind())
	}

	if value == nil {
		value = new(big.Int)
	}

	target := call.Target()

	gasLimit, err := c.EstimateGas(ctx, ethereum.CallMsg{From: t.account, To: &target, Value: value, Data: data})
	if err != nil {
		return nil, txerrors.Wrap(txerrors.KindTransactionReverted, err, "simulation of %s reverted", call.Kind())
	}

	gasLimit += gasLimit * gasLimitBufferPercent / 100

	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, txerrors.Wrap(txerrors.KindTransactionRejectedBySigner, err, "cannot price %s", call.Kind())
	}

	t.Mu.Lock()
	defer t.Mu.Unlock()

	nonce, ok := t.nonces[chainID]
	if !ok {
		nonce, err = c.PendingNonceAt(ctx, t.account)
		if err != nil {
			return nil, txerrors.Wrap(txerrors.KindTransactionRejectedBySigner, err, "cannot fetch nonce")
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &target,
		Value:    value,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), t.privKey)
	if err != nil {
		log.WithError(err).Error("failed to sign transaction")

		return nil, txerrors.Wrap(txerrors.KindTransactionRejectedBySigner, err, "signing %s", call.Kind())
	}

	if err = c.SendTransaction(ctx, signedTx); err != nil {
		delete(t.nonces, chainID)

		return nil, txerrors.Wrap(txerrors.KindTransactionRejectedBySigner, err, "broadcast of %s", call.Kind())
	}

	t.nonces[chainID] = nonce + 1

	log.WithField("txHash", signedTx.Hash().Hex()).WithField("method", call.Kind()).Info("transaction submitted")

	return &smartcontract.PendingTx{
		Hash:        signedTx.Hash(),
		ChainID:     chainID,
		Kind:        call.Kind(),
		SubmittedAt: t.now(),
	}, nil
}

// AwaitReceipt polls until the receipt is mined or ctx is done. There is no
// internal deadline.
func (t *TxManager) AwaitReceipt(ctx context.Context, pending *smartcontract.PendingTx) (*smartcontract.Receipt, error) {
	c, err := t.client(pending.ChainID)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.receiptPoll
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0

	var receipt *types.Receipt

	err = backoff.Retry(func() error {
		r, err := c.TransactionReceipt(ctx, pending.Hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return err
			}

			log.WithError(err).WithField("txHash", pending.Hash.Hex()).Warn("receipt lookup failed, retrying")

			return err
		}

		receipt = r

		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}

	status := smartcontract.ReceiptConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = smartcontract.ReceiptReverted
	}

	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	return &smartcontract.Receipt{
		Status:      status,
		TxHash:      receipt.TxHash,
		BlockNumber: blockNumber,
		BlockHash:   receipt.BlockHash,
		GasUsed:     receipt.GasUsed,
	}, nil
}
