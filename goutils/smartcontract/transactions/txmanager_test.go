package transactions

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/ethclient"
	"sova-txcore/goutils/mock"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

const testChainID = uint64(84532)

func newTestManager(t *testing.T, eth *mock.EthServiceMock) *TxManager {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	txMgr := NewTxManager(map[uint64]ethclient.Service{testChainID: eth}, key)
	txMgr.receiptPoll = time.Millisecond

	return txMgr
}

func TestTxManager_Read(t *testing.T) {
	token := common.HexToAddress("0x10")
	owner := common.HexToAddress("0x20")

	eth := &mock.EthServiceMock{
		CallContractMock: func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			assert.Equal(t, token, *msg.To)
			// balanceOf(address) selector
			assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, msg.Data[:4])

			return common.LeftPadBytes(big.NewInt(42).Bytes(), 32), nil
		},
	}

	txMgr := newTestManager(t, eth)

	balance, err := smartcontract.ReadBigInt(context.Background(), txMgr, testChainID, smartcontract.BalanceOf{Token: token, Account: owner})
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())

	_, err = txMgr.Read(context.Background(), 1, smartcontract.BalanceOf{Token: token, Account: owner})
	assert.Error(t, err)
}

func TestTxManager_WriteTracksNonce(t *testing.T) {
	nonceLookups := 0
	var sent []*types.Transaction

	eth := &mock.EthServiceMock{
		EstimateGasMock: func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
			return 100000, nil
		},
		SuggestGasPriceMock: func(ctx context.Context) (*big.Int, error) {
			return big.NewInt(1000), nil
		},
		PendingNonceAtMock: func(ctx context.Context, account common.Address) (uint64, error) {
			nonceLookups++

			return 7, nil
		},
		SendTransactionMock: func(ctx context.Context, tx *types.Transaction) error {
			sent = append(sent, tx)

			return nil
		},
	}

	txMgr := newTestManager(t, eth)
	identity := datamodel.Identity{Address: txMgr.account, ChainID: testChainID}
	call := smartcontract.Stake{Pool: common.HexToAddress("0x30"), Amount: big.NewInt(5)}

	first, err := txMgr.Write(context.Background(), identity, testChainID, call, nil)
	require.NoError(t, err)

	second, err := txMgr.Write(context.Background(), identity, testChainID, call, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, nonceLookups)
	require.Len(t, sent, 2)
	assert.Equal(t, uint64(7), sent[0].Nonce())
	assert.Equal(t, uint64(8), sent[1].Nonce())
	assert.Equal(t, uint64(120000), sent[0].Gas())
	assert.Equal(t, sent[0].Hash(), first.Hash)
	assert.Equal(t, smartcontract.CallStake, second.Kind)
	assert.Equal(t, testChainID, second.ChainID)
}

func TestTxManager_WriteFailures(t *testing.T) {
	t.Run("identity mismatch", func(t *testing.T) {
		txMgr := newTestManager(t, &mock.EthServiceMock{})

		_, err := txMgr.Write(context.Background(), datamodel.Identity{Address: common.HexToAddress("0x99")}, testChainID, smartcontract.GetReward{}, nil)
		assert.ErrorIs(t, err, txerrors.ErrIdentityChanged)
	})

	t.Run("simulation revert", func(t *testing.T) {
		eth := &mock.EthServiceMock{
			EstimateGasMock: func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
				return 0, errors.New("execution reverted")
			},
		}
		txMgr := newTestManager(t, eth)

		_, err := txMgr.Write(context.Background(), datamodel.Identity{Address: txMgr.account}, testChainID, smartcontract.GetReward{}, nil)
		assert.ErrorIs(t, err, txerrors.ErrTransactionReverted)
	})

	t.Run("broadcast failure resyncs nonce", func(t *testing.T) {
		lookups := 0
		eth := &mock.EthServiceMock{
			EstimateGasMock: func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) { return 21000, nil },
			SuggestGasPriceMock: func(ctx context.Context) (*big.Int, error) {
				return big.NewInt(1), nil
			},
			PendingNonceAtMock: func(ctx context.Context, account common.Address) (uint64, error) {
				lookups++

				return 3, nil
			},
			SendTransactionMock: func(ctx context.Context, tx *types.Transaction) error {
				return errors.New("nonce too low")
			},
		}
		txMgr := newTestManager(t, eth)
		identity := datamodel.Identity{Address: txMgr.account}

		_, err := txMgr.Write(context.Background(), identity, testChainID, smartcontract.GetReward{}, nil)
		assert.ErrorIs(t, err, txerrors.ErrTransactionRejectedBySigner)

		_, err = txMgr.Write(context.Background(), identity, testChainID, smartcontract.GetReward{}, nil)
		assert.Error(t, err)
		assert.Equal(t, 2, lookups)
	})
}

func TestTxManager_AwaitReceipt(t *testing.T) {
	hash := common.HexToHash("0xabc")
	calls := 0

	eth := &mock.EthServiceMock{
		TransactionReceiptMock: func(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
			calls++
			if calls < 3 {
				return nil, ethereum.NotFound
			}

			return &types.Receipt{
				Status:      types.ReceiptStatusFailed,
				TxHash:      txHash,
				BlockNumber: big.NewInt(10),
				GasUsed:     21000,
			}, nil
		},
	}

	txMgr := newTestManager(t, eth)

	receipt, err := txMgr.AwaitReceipt(context.Background(), &smartcontract.PendingTx{Hash: hash, ChainID: testChainID})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, smartcontract.ReceiptReverted, receipt.Status)
	assert.Equal(t, uint64(10), receipt.BlockNumber)
	assert.Equal(t, hash, receipt.TxHash)
}

func TestTxManager_AwaitReceiptStopsOnContextCancel(t *testing.T) {
	eth := &mock.EthServiceMock{
		TransactionReceiptMock: func(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
			return nil, ethereum.NotFound
		},
	}

	txMgr := newTestManager(t, eth)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := txMgr.AwaitReceipt(ctx, &smartcontract.PendingTx{ChainID: testChainID})
	assert.Error(t, err)
}
