package approval

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

type Policy string

const (
	// PolicyExact approves exactly the required amount.
	PolicyExact Policy = "exact"
	// PolicyMax approves the uint256 maximum once.
	PolicyMax Policy = "max"
)

type State string

const (
	StateUnknown      State = "UNKNOWN"
	StateSufficient   State = "SUFFICIENT"
	StateInsufficient State = "INSUFFICIENT"
	StatePending      State = "PENDING"
)

// Request describes the spend an action needs allowance for.
type Request struct {
	ChainID  uint64
	Token    common.Address
	Spender  common.Address
	Required *big.Int
}

type Result struct {
	// Approved is false when the allowance already covered the request.
	Approved bool
	Tx       *smartcontract.PendingTx
	Receipt  *smartcontract.Receipt
}

// Gate sequences approve-if-needed per (owner, spender, token). Concurrent callers
// for the same triple join a single in-flight approval.
type Gate struct {
	policy Policy
	writer smartcontract.Writer
	waiter smartcontract.ReceiptWaiter

	group  singleflight.Group
	mu     sync.RWMutex
	states map[string]State
}

func NewGate(policy string, writer smartcontract.Writer, waiter smartcontract.ReceiptWaiter) (*Gate, error) {
	p := Policy(strings.ToLower(policy))
	if p != PolicyExact && p != PolicyMax {
		return nil, fmt.Errorf("unknown approval policy %q", policy)
	}

	return &Gate{
		policy: p,
		writer: writer,
		waiter: waiter,
		states: make(map[string]State),
	}, nil
}

func (g *Gate) Policy() Policy {
	return g.policy
}

// NeedsApproval is the single allowance rule: current < required.
func NeedsApproval(current, required *big.Int) bool {
	if current == nil {
		current = new(big.Int)
	}

	return current.Cmp(required) < 0
}

func gateKey(owner common.Address, req Request) string {
	return fmt.Sprintf("%d:%s:%s:%s", req.ChainID, owner.Hex(), req.Spender.Hex(), req.Token.Hex())
}

func (g *Gate) setState(key string, state State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.states[key] = state
}

// State returns the last known approval state of the triple.
func (g *Gate) State(owner common.Address, req Request) State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state, ok := g.states[gateKey(owner, req)]
	if !ok {
		return StateUnknown
	}

	return state
}

// Observe records a fresh allowance read. It never overrides a pending approval.
func (g *Gate) Observe(owner common.Address, req Request, current *big.Int) State {
	key := gateKey(owner, req)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.states[key] == StatePending {
		return StatePending
	}

	state := StateSufficient
	if NeedsApproval(current, req.Required) {
		state = StateInsufficient
	}

	g.states[key] = state

	return state
}

// ApprovalAmount is the amount the approve call is built with under the policy.
func (g *Gate) ApprovalAmount(required *big.Int) *big.Int {
	if g.policy == PolicyMax {
		return decimals.MaxUint256()
	}

	return new(big.Int).Set(required)
}

// EnsureApproved submits an approval when current < required and returns only
// after its receipt confirmed. onSubmitted, if set, is called with the approval
// transaction once it is broadcast. A failed approval is never retried.
func (g *Gate) EnsureApproved(ctx context.Context, identity datamodel.Identity, req Request, current *big.Int, onSubmitted func(*smartcontract.PendingTx)) (*Result, error) {
	if req.Required == nil || req.Required.Sign() <= 0 {
		return nil, txerrors.New(txerrors.KindInvalidAmount, "required allowance must be positive").WithStep(txerrors.StepApproval)
	}

	key := gateKey(identity.Address, req)

	if g.Observe(identity.Address, req, current) == StateSufficient {
		return &Result{}, nil
	}

	g.setState(key, StatePending)

	leader := false

	// the approval outlives the caller: once broadcast it resolves on chain anyway
	ch := g.group.DoChan(key, func() (interface{}, error) {
		leader = true

		res, err := g.approve(context.WithoutCancel(ctx), identity, req, onSubmitted)
		if err != nil {
			g.setState(key, StateInsufficient)

			return nil, err
		}

		g.setState(key, StateSufficient)

		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		result := res.Val.(*Result)

		if !leader && onSubmitted != nil {
			onSubmitted(result.Tx)
		}

		return result, nil
	}
}

func (g *Gate) approve(ctx context.Context, identity datamodel.Identity, req Request, onSubmitted func(*smartcontract.PendingTx)) (*Result, error) {
	amount := g.ApprovalAmount(req.Required)

	logger := log.WithField("token", req.Token.Hex()).WithField("spender", req.Spender.Hex()).WithField("policy", g.policy)

	tx, err := g.writer.Write(ctx, identity, req.ChainID, smartcontract.Approve{Token: req.Token, Spender: req.Spender, Amount: amount}, nil)
	if err != nil {
		logger.WithError(err).Error("approval submission failed")

		return nil, txerrors.Wrap(txerrors.KindApprovalFailed, err, "approval was not submitted").WithStep(txerrors.StepApproval)
	}

	logger.WithField("tx_hash", tx.Hash.Hex()).Info("approval submitted")

	if onSubmitted != nil {
		onSubmitted(tx)
	}

	receipt, err := g.waiter.AwaitReceipt(ctx, tx)
	if err != nil {
		logger.WithError(err).Error("approval receipt wait failed")

		return nil, txerrors.Wrap(txerrors.KindApprovalFailed, err, "approval %s unresolved", tx.Hash.Hex()).WithStep(txerrors.StepApproval)
	}

	if receipt.Status != smartcontract.ReceiptConfirmed {
		logger.WithField("tx_hash", tx.Hash.Hex()).Error("approval reverted")

		return nil, txerrors.New(txerrors.KindApprovalFailed, "approval %s reverted in block %d", tx.Hash.Hex(), receipt.BlockNumber).WithStep(txerrors.StepApproval)
	}

	return &Result{Approved: true, Tx: tx, Receipt: receipt}, nil
}
