package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sova-txcore/approval"
	"sova-txcore/caching"
	"sova-txcore/chainstate"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/mock"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

const testChainID = uint64(1)

var (
	user    = datamodel.Identity{Address: common.HexToAddress("0x1"), ChainID: testChainID}
	sovaBTC = common.HexToAddress("0x50")
	pool    = common.HexToAddress("0x60")
	queue   = common.HexToAddress("0x70")
)

// fakeChain is an in-memory stand-in for the read, write and receipt primitives.
type fakeChain struct {
	mu        sync.Mutex
	allowance *big.Int
	balance   *big.Int
	staked    *big.Int
	earned    *big.Int
	writes    []smartcontract.Call

	approveErr      error
	approvalRelease chan struct{}
	actionRelease   chan struct{}
	actionStatus    smartcontract.ReceiptStatus
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		allowance:    big.NewInt(0),
		balance:      big.NewInt(1000),
		staked:       big.NewInt(0),
		earned:       big.NewInt(0),
		actionStatus: smartcontract.ReceiptConfirmed,
	}
}

func (c *fakeChain) written() []smartcontract.Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]smartcontract.Call(nil), c.writes...)
}

func (c *fakeChain) reader() *mock.ReaderMock {
	return &mock.ReaderMock{
		ReadMock: func(ctx context.Context, chainID uint64, call smartcontract.Call) ([]interface{}, error) {
			c.mu.Lock()
			defer c.mu.Unlock()

			switch call.(type) {
			case smartcontract.Allowance:
				return []interface{}{new(big.Int).Set(c.allowance)}, nil
			case smartcontract.BalanceOf:
				return []interface{}{new(big.Int).Set(c.balance)}, nil
			case smartcontract.StakedBalance:
				return []interface{}{new(big.Int).Set(c.staked)}, nil
			case smartcontract.Earned:
				return []interface{}{new(big.Int).Set(c.earned)}, nil
			case smartcontract.RewardRate, smartcontract.TotalStaked, smartcontract.PeriodFinish:
				return []interface{}{big.NewInt(0)}, nil
			}

			return nil, errors.New("unexpected read")
		},
	}
}

func (c *fakeChain) writer() *mock.WriterMock {
	return &mock.WriterMock{
		WriteMock: func(ctx context.Context, identity datamodel.Identity, chainID uint64, call smartcontract.Call, value *big.Int) (*smartcontract.PendingTx, error) {
			c.mu.Lock()
			defer c.mu.Unlock()

			if approve, ok := call.(smartcontract.Approve); ok {
				if c.approveErr != nil {
					return nil, c.approveErr
				}

				c.allowance = new(big.Int).Set(approve.Amount)
			}

			c.writes = append(c.writes, call)

			return &smartcontract.PendingTx{
				Hash:    common.BigToHash(big.NewInt(int64(len(c.writes)))),
				ChainID: chainID,
				Kind:    call.Kind(),
			}, nil
		},
	}
}

func (c *fakeChain) waiter() *mock.ReceiptWaiterMock {
	return &mock.ReceiptWaiterMock{
		AwaitReceiptMock: func(ctx context.Context, tx *smartcontract.PendingTx) (*smartcontract.Receipt, error) {
			status := smartcontract.ReceiptConfirmed

			if tx.Kind == smartcontract.CallApprove {
				if c.approvalRelease != nil {
					<-c.approvalRelease
				}
			} else {
				if c.actionRelease != nil {
					<-c.actionRelease
				}

				status = c.actionStatus
			}

			return &smartcontract.Receipt{Status: status, TxHash: tx.Hash, BlockNumber: 10}, nil
		},
	}
}

type harness struct {
	chain        *fakeChain
	state        *chainstate.State
	orchestrator *Orchestrator

	mu          sync.Mutex
	refreshes   [][]caching.Key
	issues      chan *datamodel.FlowIssue
	identities  []datamodel.Identity
	identityIdx int
}

func newHarness(t *testing.T, chain *fakeChain) *harness {
	t.Helper()

	h := &harness{chain: chain, issues: make(chan *datamodel.FlowIssue, 10)}

	cache, err := caching.NewMemoryCache(128, time.Minute)
	require.NoError(t, err)

	h.state = chainstate.NewState(chain.reader(), cache)

	gate, err := approval.NewGate("exact", chain.writer(), chain.waiter())
	require.NoError(t, err)

	wallet := &mock.WalletMock{
		IdentityMock: func(ctx context.Context) (datamodel.Identity, error) {
			h.mu.Lock()
			defer h.mu.Unlock()

			if len(h.identities) == 0 {
				return user, nil
			}

			id := h.identities[h.identityIdx]
			if h.identityIdx < len(h.identities)-1 {
				h.identityIdx++
			}

			return id, nil
		},
	}

	refresher := &mock.RefresherMock{
		RefreshMock: func(keys ...caching.Key) {
			h.mu.Lock()
			defer h.mu.Unlock()

			h.refreshes = append(h.refreshes, keys)
		},
	}

	reporter := &mock.ReportingServiceMock{
		ReportMock: func(issue *datamodel.FlowIssue) {
			h.issues <- issue
		},
	}

	h.orchestrator = NewOrchestrator("test", wallet, chain.writer(), chain.waiter(), h.state, gate, refresher, reporter)

	return h
}

func (h *harness) refreshCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.refreshes)
}

func stakeAction(amount int64) *StakeAction {
	return NewStakeAction(testChainID, pool, sovaBTC, big.NewInt(amount))
}

func TestExecute_ApprovesThenSubmits(t *testing.T) {
	chain := newFakeChain()
	h := newHarness(t, chain)

	var states []string
	h.orchestrator.Subscribe(func(view FlowView) { states = append(states, view.State) })

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, view.State)
	assert.NotEmpty(t, view.ApprovalTxHash)
	assert.NotEmpty(t, view.TxHash)

	writes := chain.written()
	require.Len(t, writes, 2)
	assert.Equal(t, smartcontract.Approve{Token: sovaBTC, Spender: pool, Amount: big.NewInt(100)}, writes[0])
	assert.Equal(t, smartcontract.Stake{Pool: pool, Amount: big.NewInt(100)}, writes[1])

	assert.Equal(t, []string{
		StateCheckingApproval,
		StateApproving,
		StateAwaitingApprovalReceipt,
		StateSubmitting,
		StateAwaitingReceipt,
		StateSucceeded,
	}, states)

	assert.Equal(t, 1, h.refreshCount())
	assert.Contains(t, h.refreshes[0], caching.BalanceKey(testChainID, sovaBTC, user.Address))
	assert.Contains(t, h.refreshes[0], caching.AllowanceKey(testChainID, sovaBTC, user.Address, pool))
}

func TestExecute_SkipsApprovalWhenSufficient(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	h := newHarness(t, chain)

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, view.State)
	assert.Empty(t, view.ApprovalTxHash)

	writes := chain.written()
	require.Len(t, writes, 1)
	assert.Equal(t, smartcontract.CallStake, writes[0].Kind())
}

func TestExecute_RejectsDuplicateWhileAwaitingReceipt(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	chain.actionRelease = make(chan struct{})
	h := newHarness(t, chain)

	view, err := h.orchestrator.Start(context.Background(), stakeAction(100))
	require.NoError(t, err)

	key := view.Key

	assert.Eventually(t, func() bool {
		flow, _ := h.orchestrator.Lookup(key.String())

		return flow.State() == StateAwaitingReceipt
	}, time.Second, 5*time.Millisecond)

	_, err = h.orchestrator.Execute(context.Background(), stakeAction(100))
	assert.ErrorIs(t, err, txerrors.ErrAlreadyInProgress)

	// a different action for the same user is independent
	_, err = h.orchestrator.Start(context.Background(), NewUnstakeAction(testChainID, pool, sovaBTC, big.NewInt(1), h.state))
	assert.NoError(t, err)

	close(chain.actionRelease)

	assert.Eventually(t, func() bool {
		flow, _ := h.orchestrator.Lookup(key.String())

		return flow.State() == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, len(chain.written()))
	assert.Equal(t, 1, h.refreshCount())
}

func TestExecute_InsufficientBalanceNeedsReset(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	chain.balance = big.NewInt(10)
	h := newHarness(t, chain)

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	assert.ErrorIs(t, err, txerrors.ErrInsufficientBalance)
	assert.Equal(t, StateFailed, view.State)
	assert.Equal(t, txerrors.StepAction, view.FailedStep)
	assert.Empty(t, chain.written())

	issue := <-h.issues
	assert.Equal(t, string(txerrors.KindInsufficientBalance), issue.Kind)

	_, err = h.orchestrator.Execute(context.Background(), stakeAction(100))
	assert.ErrorIs(t, err, txerrors.ErrFlowNotReset)

	require.NoError(t, h.orchestrator.Reset(view.Key))

	chain.mu.Lock()
	chain.balance = big.NewInt(1000)
	chain.mu.Unlock()

	view, err = h.orchestrator.Execute(context.Background(), stakeAction(100))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, view.State)
}

func TestExecute_RevertedActionFailsAtReceipt(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	chain.actionStatus = smartcontract.ReceiptReverted
	h := newHarness(t, chain)

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	assert.ErrorIs(t, err, txerrors.ErrTransactionReverted)
	assert.Equal(t, StateFailed, view.State)
	assert.Equal(t, txerrors.StepReceipt, view.FailedStep)
	assert.Equal(t, uint64(10), view.BlockNumber)
	assert.Equal(t, 0, h.refreshCount())
}

func TestExecute_IdentityChangeBeforeSubmit(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	h := newHarness(t, chain)

	h.identities = []datamodel.Identity{user, {Address: common.HexToAddress("0x2"), ChainID: testChainID}}

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	assert.ErrorIs(t, err, txerrors.ErrIdentityChanged)
	assert.Equal(t, StateFailed, view.State)
	assert.Empty(t, chain.written())
}

func TestRetry_AfterApprovalFailure(t *testing.T) {
	chain := newFakeChain()
	chain.approveErr = errors.New("user rejected")
	h := newHarness(t, chain)

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	assert.ErrorIs(t, err, txerrors.ErrApprovalFailed)
	assert.Equal(t, txerrors.StepApproval, view.FailedStep)

	chain.mu.Lock()
	chain.approveErr = nil
	chain.mu.Unlock()

	chain.actionRelease = make(chan struct{})

	// retry returns on admission, before any receipt arrives
	view, err = h.orchestrator.Retry(context.Background(), view.Key)
	require.NoError(t, err)
	assert.Equal(t, StateCheckingApproval, view.State)

	flow, ok := h.orchestrator.Lookup(view.ID)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		return flow.State() == StateAwaitingReceipt
	}, time.Second, 5*time.Millisecond)

	close(chain.actionRelease)

	assert.Eventually(t, func() bool {
		return flow.State() == StateSucceeded
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, chain.written(), 2)
}

func TestRetry_OnlyFailedFlows(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	h := newHarness(t, chain)

	view, err := h.orchestrator.Execute(context.Background(), stakeAction(100))
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, view.State)

	_, err = h.orchestrator.Retry(context.Background(), view.Key)
	assert.ErrorIs(t, err, txerrors.ErrFlowNotReset)

	_, err = h.orchestrator.Retry(context.Background(), Key{User: user.Address, Token: sovaBTC, Action: datamodel.ActionRedeem})
	assert.ErrorIs(t, err, ErrNoFlow)
}

func TestAbort_BeforeSubmitting(t *testing.T) {
	chain := newFakeChain()
	chain.approvalRelease = make(chan struct{})
	h := newHarness(t, chain)

	view, err := h.orchestrator.Start(context.Background(), stakeAction(100))
	require.NoError(t, err)

	flow, ok := h.orchestrator.Lookup(view.ID)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		return flow.State() == StateAwaitingApprovalReceipt
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.orchestrator.Abort(view.Key))
	assert.Equal(t, StateIdle, flow.State())

	close(chain.approvalRelease)

	time.Sleep(50 * time.Millisecond)

	// only the approval was ever written
	writes := chain.written()
	require.Len(t, writes, 1)
	assert.Equal(t, smartcontract.CallApprove, writes[0].Kind())
	assert.Equal(t, StateIdle, flow.State())
}

func TestAbort_RejectedAfterSubmitting(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(1_000_000)
	chain.actionRelease = make(chan struct{})
	h := newHarness(t, chain)

	view, err := h.orchestrator.Start(context.Background(), stakeAction(100))
	require.NoError(t, err)

	flow, _ := h.orchestrator.Lookup(view.ID)

	assert.Eventually(t, func() bool {
		return flow.State() == StateAwaitingReceipt
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, h.orchestrator.Abort(view.Key))

	close(chain.actionRelease)

	assert.Eventually(t, func() bool {
		return flow.State() == StateSucceeded
	}, time.Second, 5*time.Millisecond)
}

func TestUnstakeAndClaimPreflight(t *testing.T) {
	chain := newFakeChain()
	chain.staked = big.NewInt(50)
	h := newHarness(t, chain)

	_, err := h.orchestrator.Execute(context.Background(), NewUnstakeAction(testChainID, pool, sovaBTC, big.NewInt(100), h.state))
	assert.ErrorIs(t, err, txerrors.ErrInsufficientBalance)

	_, err = h.orchestrator.Execute(context.Background(), NewClaimAction(testChainID, pool, common.HexToAddress("0x80"), h.state))
	assert.ErrorIs(t, err, txerrors.ErrInvalidAmount)

	chain.mu.Lock()
	chain.earned = big.NewInt(5)
	chain.mu.Unlock()

	require.NoError(t, h.orchestrator.Reset(Key{User: user.Address, Token: common.HexToAddress("0x80"), Action: datamodel.ActionClaim}))

	view, err := h.orchestrator.Execute(context.Background(), NewClaimAction(testChainID, pool, common.HexToAddress("0x80"), h.state))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, view.State)

	writes := chain.written()
	require.Len(t, writes, 1)
	assert.Equal(t, smartcontract.GetReward{Pool: pool}, writes[0])
}

func TestActionValidation(t *testing.T) {
	collateral, err := datamodel.NewTokenDescriptor(common.HexToAddress("0x90"), "WBTC18", 18, "")
	require.NoError(t, err)

	t.Run("wrap below one sova-unit", func(t *testing.T) {
		action := NewWrapAction(testChainID, common.HexToAddress("0xa0"), collateral, sovaBTC, big.NewInt(9_999_999_999))
		assert.ErrorIs(t, action.Validate(), txerrors.ErrInvalidAmount)
	})

	t.Run("zero amount", func(t *testing.T) {
		assert.ErrorIs(t, stakeAction(0).Validate(), txerrors.ErrInvalidAmount)
	})

	t.Run("redeem without target token", func(t *testing.T) {
		action := NewRedeemAction(testChainID, queue, sovaBTC, common.Address{}, big.NewInt(1))
		assert.ErrorIs(t, action.Validate(), txerrors.ErrInvalidRecipient)
	})

	t.Run("redeem spends sovaBTC through the queue", func(t *testing.T) {
		action := NewRedeemAction(testChainID, queue, sovaBTC, collateral.Address(), big.NewInt(1))
		spend := action.Spend()

		require.NotNil(t, spend.Spender)
		assert.Equal(t, queue, *spend.Spender)
		assert.Equal(t, sovaBTC, spend.Token)
	})
}
