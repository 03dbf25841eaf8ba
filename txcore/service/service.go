package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/swagftw/gi"

	"sova-txcore/bridge"
	"sova-txcore/caching"
	"sova-txcore/chainstate"
	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/settings"
	"sova-txcore/goutils/signer"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/orchestrator"
	"sova-txcore/refresh"
)

// ChainReader is the read side the dashboard and the action pre-flights use.
type ChainReader interface {
	orchestrator.ChainState
	orchestrator.StakingReader
	NativeBalance(ctx context.Context, chainID uint64, owner common.Address, fresh bool) (*big.Int, error)
	QueueDelay(ctx context.Context, chainID uint64, queue common.Address) (int64, error)
	RedemptionRequest(ctx context.Context, chainID uint64, queue, user common.Address) (*datamodel.RedemptionRequest, error)
}

// Flows is the orchestrator surface the service drives.
type Flows interface {
	Start(ctx context.Context, action orchestrator.Action) (orchestrator.FlowView, error)
	Lookup(id string) (*orchestrator.Flow, bool)
	Flows() []orchestrator.FlowView
	Reset(key orchestrator.Key) error
	Abort(key orchestrator.Key) error
	Retry(ctx context.Context, key orchestrator.Key) (orchestrator.FlowView, error)
	Subscribe(fn func(orchestrator.FlowView))
}

type contracts struct {
	wrapper common.Address
	staking common.Address
	queue   common.Address
}

type TxCoreService struct {
	settingsObj *settings.SettingsObj
	wallet      smartcontract.Wallet
	chain       ChainReader
	flows       Flows
	bridge      *bridge.Service

	homeChainID uint64
	contracts   contracts
	collaterals map[common.Address]*datamodel.TokenDescriptor
	sovaBTC     *datamodel.TokenDescriptor
	reward      *datamodel.TokenDescriptor

	mu        sync.RWMutex
	dashboard Dashboard
	transfers map[string]*bridge.Transfer

	now func() time.Time
}

func NewTxCoreService(settingsObj *settings.SettingsObj, wallet smartcontract.Wallet, chain ChainReader, flows Flows, bridgeService *bridge.Service) (*TxCoreService, error) {
	s := &TxCoreService{
		settingsObj: settingsObj,
		wallet:      wallet,
		chain:       chain,
		flows:       flows,
		bridge:      bridgeService,
		homeChainID: settingsObj.HomeChainID,
		contracts: contracts{
			wrapper: common.HexToAddress(settingsObj.Contracts.Wrapper),
			staking: common.HexToAddress(settingsObj.Contracts.Staking),
			queue:   common.HexToAddress(settingsObj.Contracts.RedemptionQueue),
		},
		collaterals: make(map[common.Address]*datamodel.TokenDescriptor, len(settingsObj.Tokens)),
		transfers:   make(map[string]*bridge.Transfer),
		now:         time.Now,
	}

	for _, token := range settingsObj.Tokens {
		descriptor, err := datamodel.NewTokenDescriptor(common.HexToAddress(token.Address), token.Symbol, token.Decimals, token.Icon)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", token.Symbol, err)
		}

		s.collaterals[descriptor.Address()] = descriptor
	}

	sovaBTC, err := datamodel.NewTokenDescriptor(common.HexToAddress(settingsObj.Contracts.SovaBTC), "sovaBTC", int(decimals.CanonicalDecimals), "")
	if err != nil {
		return nil, err
	}

	s.sovaBTC = sovaBTC

	rt := settingsObj.RewardToken

	s.reward, err = datamodel.NewTokenDescriptor(common.HexToAddress(rt.Address), rt.Symbol, rt.Decimals, rt.Icon)
	if err != nil {
		return nil, fmt.Errorf("reward token %s: %w", rt.Symbol, err)
	}

	s.dashboard.Routes = bridgeService.Routes().Routes()

	return s, nil
}

// InitTxCoreService builds the service from the injection container.
func InitTxCoreService() *TxCoreService {
	settingsObj, err := gi.Invoke[*settings.SettingsObj]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke settings object")
	}

	wallet, err := gi.Invoke[*signer.KeyedWallet]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke wallet")
	}

	chain, err := gi.Invoke[*chainstate.State]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke chain state")
	}

	flows, err := gi.Invoke[*orchestrator.Orchestrator]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke orchestrator")
	}

	bridgeService, err := gi.Invoke[*bridge.Service]()
	if err != nil {
		log.WithError(err).Fatal("failed to invoke bridge service")
	}

	txService, err := NewTxCoreService(settingsObj, wallet, chain, flows, bridgeService)
	if err != nil {
		log.WithError(err).Fatal("failed to init txcore service")
	}

	if err = gi.Inject(txService); err != nil {
		log.WithError(err).Fatal("failed to inject txcore service")
	}

	return txService
}

// Subscribe registers the dashboard handlers with the scheduler.
func (s *TxCoreService) Subscribe(scheduler *refresh.Scheduler) {
	scheduler.Subscribe(refresh.TopicBalance, s.RefreshBalances)
	scheduler.Subscribe(refresh.TopicAllowance, s.RefreshAllowances)
	scheduler.Subscribe(refresh.TopicQueue, s.RefreshQueue)
	scheduler.Subscribe(refresh.TopicStaking, s.RefreshStaking)
}

// InitialKeys are the reads to load once at startup.
func (s *TxCoreService) InitialKeys(identity datamodel.Identity) []caching.Key {
	keys := []caching.Key{
		caching.BalanceKey(s.homeChainID, s.sovaBTC.Address(), identity.Address),
		caching.NativeBalanceKey(s.homeChainID, identity.Address),
		caching.QueueDelayKey(s.homeChainID, s.contracts.queue),
		caching.RedemptionKey(s.homeChainID, s.contracts.queue, identity.Address),
	}

	for _, token := range s.collaterals {
		keys = append(keys,
			caching.BalanceKey(s.homeChainID, token.Address(), identity.Address),
			caching.AllowanceKey(s.homeChainID, token.Address(), identity.Address, s.contracts.wrapper),
		)
	}

	return append(keys, caching.StakingKeys(s.homeChainID, s.contracts.staking, identity.Address)...)
}
