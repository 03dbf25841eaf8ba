package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sova-txcore/bridge"
	"sova-txcore/caching"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/mock"
	"sova-txcore/goutils/settings"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
	"sova-txcore/orchestrator"
	"sova-txcore/refresh"
)

var (
	wbtc     = common.HexToAddress("0x0000000000000000000000000000000000000010")
	reward   = common.HexToAddress("0x0000000000000000000000000000000000000020")
	wrapper  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	pool     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	queue    = common.HexToAddress("0x0000000000000000000000000000000000000003")
	sovaBTC  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	remote   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	account  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	identity = datamodel.Identity{Address: account, ChainID: 84532}
)

type fakeChain struct {
	balances   map[common.Address]*big.Int
	native     *big.Int
	request    *datamodel.RedemptionRequest
	queueDelay int64
	snapshot   *datamodel.StakingPoolSnapshot
}

func (c *fakeChain) Balance(ctx context.Context, chainID uint64, token, owner common.Address, fresh bool) (*big.Int, error) {
	if b, ok := c.balances[token]; ok {
		return b, nil
	}

	return new(big.Int), nil
}

func (c *fakeChain) Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address, fresh bool) (*big.Int, error) {
	return big.NewInt(7), nil
}

func (c *fakeChain) Invalidate(ctx context.Context, keys ...caching.Key) error { return nil }

func (c *fakeChain) StakingSnapshot(ctx context.Context, chainID uint64, pool, user common.Address, fresh bool) (*datamodel.StakingPoolSnapshot, error) {
	return c.snapshot, nil
}

func (c *fakeChain) NativeBalance(ctx context.Context, chainID uint64, owner common.Address, fresh bool) (*big.Int, error) {
	return c.native, nil
}

func (c *fakeChain) QueueDelay(ctx context.Context, chainID uint64, queue common.Address) (int64, error) {
	return c.queueDelay, nil
}

func (c *fakeChain) RedemptionRequest(ctx context.Context, chainID uint64, queue, user common.Address) (*datamodel.RedemptionRequest, error) {
	return c.request, nil
}

type fakeFlows struct {
	mu      sync.Mutex
	started []orchestrator.Action
}

func (f *fakeFlows) Start(ctx context.Context, action orchestrator.Action) (orchestrator.FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.started = append(f.started, action)
	key := orchestrator.Key{User: account, Token: action.Token(), Action: action.Kind()}

	return orchestrator.FlowView{Key: key, ID: key.String(), State: orchestrator.StateCheckingApproval}, nil
}

func (f *fakeFlows) Lookup(string) (*orchestrator.Flow, bool) { return nil, false }
func (f *fakeFlows) Flows() []orchestrator.FlowView         { return nil }
func (f *fakeFlows) Reset(orchestrator.Key) error            { return nil }
func (f *fakeFlows) Abort(orchestrator.Key) error            { return nil }
func (f *fakeFlows) Subscribe(func(orchestrator.FlowView))  {}

func (f *fakeFlows) Retry(context.Context, orchestrator.Key) (orchestrator.FlowView, error) {
	return orchestrator.FlowView{}, nil
}

func testSettings() *settings.SettingsObj {
	return &settings.SettingsObj{
		HomeChainID: 84532,
		Chains: []*settings.Chain{
			{ChainID: 84532, EndpointID: 40245, OFTAddress: sovaBTC.Hex()},
			{ChainID: 11155111, EndpointID: 40161, OFTAddress: remote.Hex()},
		},
		Contracts: &settings.Contracts{
			Wrapper:         wrapper.Hex(),
			Staking:         pool.Hex(),
			RedemptionQueue: queue.Hex(),
			SovaBTC:         sovaBTC.Hex(),
		},
		Tokens:      []*settings.Token{{Address: wbtc.Hex(), Symbol: "WBTC", Decimals: 8}},
		RewardToken: &settings.Token{Address: reward.Hex(), Symbol: "SOVA", Decimals: 18},
		Bridge:      &settings.Bridge{QuoteTTLSeconds: 30, SlippageBps: 50, DestinationGasLimit: 200000},
	}
}

func newTestService(t *testing.T, chain *fakeChain) (*TxCoreService, *fakeFlows) {
	t.Helper()

	reader := mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			return []interface{}{smartcontract.MessagingFee{NativeFee: big.NewInt(1000), LzTokenFee: big.NewInt(0)}}, nil
		},
	}

	settingsObj := testSettings()

	bridgeService, err := bridge.NewService(settingsObj, reader, chain, 8)
	require.NoError(t, err)

	wallet := mock.WalletMock{
		IdentityMock: func(ctx context.Context) (datamodel.Identity, error) { return identity, nil },
	}

	flows := new(fakeFlows)

	svc, err := NewTxCoreService(settingsObj, wallet, chain, flows, bridgeService)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Unix(1_000_000, 0) }

	return svc, flows
}

func TestRefreshBalances(t *testing.T) {
	chain := &fakeChain{
		balances: map[common.Address]*big.Int{wbtc: big.NewInt(150000000), sovaBTC: big.NewInt(25000000)},
		native:   big.NewInt(1500000000000000000),
	}

	svc, _ := newTestService(t, chain)
	svc.RefreshBalances(context.Background(), refresh.Tick{Topic: refresh.TopicBalance, Scheduled: true})

	state := svc.State()
	assert.Equal(t, account.Hex(), state.Account)
	require.Len(t, state.Balances, 2)
	assert.Equal(t, "WBTC", state.Balances[0].Symbol)
	assert.Equal(t, "1.5", state.Balances[0].Display)
	assert.Equal(t, "sovaBTC", state.Balances[1].Symbol)
	assert.Equal(t, "0.25", state.Balances[1].Display)
	assert.Equal(t, "1.5", state.NativeBalance)
	assert.Len(t, state.Routes, 2)
	assert.Contains(t, state.UpdatedAt, string(refresh.TopicBalance))

	svc.RefreshAllowances(context.Background(), refresh.Tick{Topic: refresh.TopicAllowance})
	assert.Len(t, svc.State().Allowances, 3)
}

func TestRefreshQueue(t *testing.T) {
	chain := &fakeChain{queueDelay: 1000}

	svc, _ := newTestService(t, chain)

	// no request renders as no active queue
	svc.RefreshQueue(context.Background(), refresh.Tick{})
	assert.Nil(t, svc.State().Redemption)

	chain.request = &datamodel.RedemptionRequest{CanonicalAmount: big.NewInt(50000000), RequestTimestamp: 1_000_000 - 250}
	svc.RefreshQueue(context.Background(), refresh.Tick{})

	view := svc.State().Redemption
	require.NotNil(t, view)
	assert.Equal(t, 25.0, view.Status.ProgressPercent)
	assert.Equal(t, int64(750), view.Status.TimeRemainingSeconds)
	assert.Equal(t, "0.5", view.Display)
}

func TestRefreshStaking(t *testing.T) {
	chain := &fakeChain{snapshot: &datamodel.StakingPoolSnapshot{
		RewardRatePerSecond: big.NewInt(0),
		TotalStaked:         big.NewInt(400),
		UserStaked:          big.NewInt(100),
		UserEarned:          big.NewInt(0),
		PeriodFinish:        2_000_000,
	}}

	svc, _ := newTestService(t, chain)
	svc.RefreshStaking(context.Background(), refresh.Tick{})

	view := svc.State().Staking
	require.NotNil(t, view)
	assert.Equal(t, 25.0, view.Economics.PoolSharePercent)
	assert.True(t, view.Economics.RewardsActive)
}

func TestNewAction(t *testing.T) {
	svc, _ := newTestService(t, &fakeChain{})

	tests := []struct {
		name string
		kind datamodel.Action
		req  ActionRequest
		err  txerrors.Kind
	}{
		{"wrap", datamodel.ActionWrap, ActionRequest{Token: wbtc.Hex(), Amount: "0.5"}, ""},
		{"wrap unknown token", datamodel.ActionWrap, ActionRequest{Token: reward.Hex(), Amount: "1"}, txerrors.KindInvalidRecipient},
		{"wrap too precise", datamodel.ActionWrap, ActionRequest{Token: wbtc.Hex(), Amount: "0.000000001"}, txerrors.KindInvalidAmount},
		{"stake", datamodel.ActionStake, ActionRequest{Amount: "1"}, ""},
		{"unstake", datamodel.ActionUnstake, ActionRequest{Amount: "1"}, ""},
		{"stake garbage", datamodel.ActionStake, ActionRequest{Amount: "abc"}, txerrors.KindInvalidAmount},
		{"claim", datamodel.ActionClaim, ActionRequest{}, ""},
		{"redeem", datamodel.ActionRedeem, ActionRequest{Amount: "1", TargetToken: wbtc.Hex()}, ""},
		{"redeem no target", datamodel.ActionRedeem, ActionRequest{Amount: "1"}, txerrors.KindInvalidRecipient},
		{"bridge", datamodel.ActionBridge, ActionRequest{Amount: "1", DestinationChainID: 11155111, Recipient: account.Hex()}, ""},
		{"bridge bad recipient", datamodel.ActionBridge, ActionRequest{Amount: "1", DestinationChainID: 11155111, Recipient: "nope"}, txerrors.KindInvalidRecipient},
		{"unknown", datamodel.Action("swap"), ActionRequest{}, txerrors.KindUnsupportedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := svc.NewAction(tt.kind, tt.req)
			if tt.err != "" {
				assert.Equal(t, tt.err, txerrors.KindOf(err))
				assert.Nil(t, action)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.kind, action.Kind())
		})
	}
}

func TestSubmitTracksBridgeTransfer(t *testing.T) {
	svc, flows := newTestService(t, &fakeChain{native: big.NewInt(5000)})

	view, err := svc.Submit(context.Background(), datamodel.ActionBridge, ActionRequest{Amount: "1", DestinationChainID: 11155111, Recipient: account.Hex()})
	require.NoError(t, err)
	require.Len(t, flows.started, 1)

	transfer, ok := svc.Transfer(view.ID)
	require.True(t, ok)
	assert.Equal(t, bridge.StateIdle, transfer.State())

	// nothing is pending on destination before the source confirms
	_, err = svc.ObserveSettlement(view.ID)
	assert.Error(t, err)

	_, err = svc.ObserveSettlement("missing")
	assert.ErrorIs(t, err, orchestrator.ErrNoFlow)

	_, err = svc.Submit(context.Background(), datamodel.ActionStake, ActionRequest{Amount: "1"})
	require.NoError(t, err)
	assert.Len(t, flows.started, 2)
}

func TestQuote(t *testing.T) {
	svc, _ := newTestService(t, &fakeChain{native: big.NewInt(999)})

	view, err := svc.Quote(context.Background(), ActionRequest{Amount: "1", DestinationChainID: 11155111, Recipient: account.Hex()})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), view.Quote.NativeFee)
	assert.Equal(t, "100000000", view.AmountLD)
	assert.Equal(t, "99500000", view.MinAmount)
	assert.False(t, view.FeeCovered)

	_, err = svc.Quote(context.Background(), ActionRequest{Amount: "1", DestinationChainID: 84532, Recipient: account.Hex()})
	assert.Equal(t, txerrors.KindUnsupportedRoute, txerrors.KindOf(err))
}
