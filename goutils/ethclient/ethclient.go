package ethclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/httpclient"
	"sova-txcore/goutils/settings"
)

// Service is the subset of the RPC surface the core consumes.
type Service interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Client struct {
	client *ethclient.Client
}

var _ Service = (*Client)(nil)

func NewClient(rpcURL string, httpSettings *settings.HTTPClient) (*Client, error) {
	rpClient, err := rpc.DialOptions(context.Background(), rpcURL, rpc.WithHTTPClient(httpclient.NewRPCClient(httpSettings)))
	if err != nil {
		log.WithError(err).WithField("rpc", rpcURL).Error("failed to init rpc client")

		return nil, err
	}

	return &Client{client: ethclient.NewClient(rpClient)}, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	blockNumber, err := c.client.BlockNumber(ctx)
	if err != nil {
		log.WithError(err).Error("failed to get block number")
	}

	return blockNumber, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		log.WithError(err).Error("failed to get gas price")
	}

	return gasPrice, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	chainId, err := c.client.ChainID(ctx)
	if err != nil {
		log.WithError(err).Error("failed to get chain id")
	}

	return chainId, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, account)
	if err != nil {
		log.WithError(err).Error("failed to get nonce")
	}

	return nonce, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, account, blockNumber)
	if err != nil {
		log.WithError(err).WithField("account", account.Hex()).Error("failed to get native balance")
	}

	return balance, err
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.client.CallContract(ctx, msg, blockNumber)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.client.EstimateGas(ctx, msg)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.client.SendTransaction(ctx, tx)
	if err != nil {
		log.WithError(err).WithField("txHash", tx.Hash().Hex()).Error("failed to send transaction")
	}

	return err
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.client.TransactionReceipt(ctx, txHash)
}
