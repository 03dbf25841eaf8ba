package bridge

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/settings"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

// FeeBalanceReader reads the native balance that pays the messaging fee.
type FeeBalanceReader interface {
	NativeBalance(ctx context.Context, chainID uint64, owner common.Address, fresh bool) (*big.Int, error)
}

// Request is a user's transfer intent. Amount is in the token's local decimals.
type Request struct {
	SourceChainID      uint64         `json:"source_chain_id"`
	DestinationChainID uint64         `json:"destination_chain_id"`
	Amount             *big.Int       `json:"amount"`
	Recipient          common.Address `json:"recipient"`
}

// Service builds, validates and quotes transfers for the configured routes.
type Service struct {
	routes        *RouteTable
	quoter        *Quoter
	balances      FeeBalanceReader
	tokenDecimals uint8
	slippageBps   uint32
	options       AdapterOptions
}

func NewService(settingsObj *settings.SettingsObj, reader smartcontract.Reader, balances FeeBalanceReader, tokenDecimals uint8) (*Service, error) {
	options := AdapterOptions{DestinationGasLimit: settingsObj.Bridge.DestinationGasLimit}

	if settingsObj.Bridge.NativeDropWei != "" {
		drop, ok := new(big.Int).SetString(settingsObj.Bridge.NativeDropWei, 10)
		if !ok || drop.Sign() < 0 {
			return nil, fmt.Errorf("invalid native drop %q", settingsObj.Bridge.NativeDropWei)
		}

		options.NativeDrop = drop
	}

	// validate the options once up front; the drop receiver is filled per transfer
	sample := options
	sample.NativeDropReceiver = common.HexToAddress("0x1")

	if _, err := sample.Encode(); err != nil {
		return nil, err
	}

	return &Service{
		routes:        NewRouteTable(settingsObj.Chains, common.HexToAddress(settingsObj.Contracts.SovaBTC)),
		quoter:        NewQuoter(reader, time.Duration(settingsObj.Bridge.QuoteTTLSeconds)*time.Second),
		balances:      balances,
		tokenDecimals: tokenDecimals,
		slippageBps:   settingsObj.Bridge.SlippageBps,
		options:       options,
	}, nil
}

func (s *Service) Routes() *RouteTable {
	return s.routes
}

func (s *Service) Validate(req Request) (*datamodel.BridgeRoute, error) {
	return Validate(s.routes, req.SourceChainID, req.DestinationChainID, req.Amount, req.Recipient)
}

// Build validates req and assembles its payload.
func (s *Service) Build(req Request) (*Payload, error) {
	route, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	src, _ := s.routes.Endpoint(route.SourceChainID)

	return BuildSendPayload(*route, src.OFT, req.Amount, s.tokenDecimals, req.Recipient, s.slippageBps, s.options)
}

// Quote builds req and obtains a fresh fee quote for it.
func (s *Service) Quote(ctx context.Context, req Request) (*Payload, *datamodel.BridgeQuote, error) {
	payload, err := s.Build(req)
	if err != nil {
		return nil, nil, err
	}

	quote, err := s.quoter.Quote(ctx, payload)
	if err != nil {
		return nil, nil, err
	}

	return payload, quote, nil
}

// CheckFee is the native-fee pre-flight against a fresh balance read.
func (s *Service) CheckFee(ctx context.Context, chainID uint64, owner common.Address, quote *datamodel.BridgeQuote) error {
	balance, err := s.balances.NativeBalance(ctx, chainID, owner, true)
	if err != nil {
		return txerrors.Classify(err, txerrors.KindContractRead, txerrors.StepQuote)
	}

	return CheckFeeBalance(balance, quote)
}

func (s *Service) NewTransfer(req Request) *Transfer {
	return newTransfer(s, req)
}
