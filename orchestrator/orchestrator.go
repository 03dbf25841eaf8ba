package orchestrator

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sova-txcore/approval"
	"sova-txcore/caching"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

var (
	ErrAborted = errors.New("flow aborted")
	ErrNoFlow  = errors.New("no such flow")
)

// Orchestrator runs wrap/stake/unstake/claim/redeem/bridge flows through one
// shared state machine and enforces at most one in-flight flow per key.
type Orchestrator struct {
	instanceID string
	wallet     smartcontract.Wallet
	writer     smartcontract.Writer
	waiter     smartcontract.ReceiptWaiter
	state      ChainState
	gate       *approval.Gate
	refresher  Refresher
	reporter   Reporter

	mu        sync.Mutex
	flows     map[Key]*Flow
	observers []func(FlowView)

	now func() time.Time
}

// NewOrchestrator wires the flow engine. refresher and reporter may be nil.
func NewOrchestrator(
	instanceID string,
	wallet smartcontract.Wallet,
	writer smartcontract.Writer,
	waiter smartcontract.ReceiptWaiter,
	state ChainState,
	gate *approval.Gate,
	refresher Refresher,
	reporter Reporter,
) *Orchestrator {
	return &Orchestrator{
		instanceID: instanceID,
		wallet:     wallet,
		writer:     writer,
		waiter:     waiter,
		state:      state,
		gate:       gate,
		refresher:  refresher,
		reporter:   reporter,
		flows:      make(map[Key]*Flow),
		now:        time.Now,
	}
}

// Subscribe registers fn for every flow transition. fn must not block.
func (o *Orchestrator) Subscribe(fn func(FlowView)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.observers = append(o.observers, fn)
}

func (o *Orchestrator) emit(view FlowView) {
	o.mu.Lock()
	observers := make([]func(FlowView), len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
}

// Execute runs action to a terminal state and returns the final view.
func (o *Orchestrator) Execute(ctx context.Context, action Action) (FlowView, error) {
	flow, identity, err := o.begin(ctx, action)
	if err != nil {
		return FlowView{}, err
	}

	err = o.run(ctx, flow, identity)

	return flow.View(), err
}

// Start admits action like Execute and runs it in the background. The returned
// view is the flow right after admission.
func (o *Orchestrator) Start(ctx context.Context, action Action) (FlowView, error) {
	flow, identity, err := o.begin(ctx, action)
	if err != nil {
		return FlowView{}, err
	}

	view := flow.View()

	go func() {
		_ = o.run(context.WithoutCancel(ctx), flow, identity)
	}()

	return view, nil
}

func (o *Orchestrator) begin(ctx context.Context, action Action) (*Flow, datamodel.Identity, error) {
	identity, err := o.wallet.Identity(ctx)
	if err != nil {
		return nil, identity, txerrors.Wrap(txerrors.KindIdentityChanged, err, "wallet identity unavailable").WithStep(txerrors.StepValidate)
	}

	key := Key{User: identity.Address, Token: action.Token(), Action: action.Kind()}

	flow, err := o.acquire(key, action)
	if err != nil {
		log.WithField("flow", key.String()).WithError(err).Info("flow rejected")

		return nil, identity, err
	}

	traceFlowStarted(string(action.Kind()))

	log.WithField("flow", key.String()).WithField("action", action.Kind()).Info("flow started")

	o.emit(flow.View())

	return flow, identity, nil
}

func (o *Orchestrator) acquire(key Key, action Action) (*Flow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.flows[key]; ok {
		state := existing.State()

		if active[state] {
			return nil, txerrors.New(txerrors.KindAlreadyInProgress, "%s is already %s", key.Action, state).WithStep(txerrors.StepValidate)
		}

		if state == StateFailed {
			return nil, txerrors.New(txerrors.KindFlowNotReset, "%s failed and must be reset first", key.Action).WithStep(txerrors.StepValidate)
		}
	}

	flow := newFlow(key, action, o.now)

	flow.mu.Lock()
	flow.startedAt = o.now()
	err := flow.machine.Event(eventCheck)
	flow.mu.Unlock()

	if err != nil {
		return nil, err
	}

	o.flows[key] = flow

	return flow, nil
}

// transition fires event under the flow lock. An aborted flow accepts no events.
func (o *Orchestrator) transition(flow *Flow, event string, mutate func()) error {
	flow.mu.Lock()

	if flow.aborted {
		flow.mu.Unlock()

		return ErrAborted
	}

	if mutate != nil {
		mutate()
	}

	err := flow.machine.Event(event)
	view := flow.viewLocked()

	flow.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("flow", flow.key.String()).WithField("event", event).Error("invalid flow transition")

		return err
	}

	log.WithField("flow", flow.key.String()).WithField("state", view.State).Debug("flow transition")

	o.emit(view)

	return nil
}

func (o *Orchestrator) run(ctx context.Context, flow *Flow, identity datamodel.Identity) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	flow.mu.Lock()
	flow.cancel = cancel
	flow.mu.Unlock()

	action := flow.action

	if err := action.Validate(); err != nil {
		return o.fail(flow, err, txerrors.KindInvalidAmount, txerrors.StepValidate)
	}

	spend := action.Spend()

	if spend != nil && spend.Spender != nil {
		if err := o.checkApproval(ctx, flow, identity, spend); err != nil {
			return o.fail(flow, err, txerrors.KindApprovalFailed, txerrors.StepApproval)
		}
	}

	if err := o.revalidate(ctx, flow, identity, spend); err != nil {
		return o.fail(flow, err, txerrors.KindContractRead, txerrors.StepAction)
	}

	if err := o.transition(flow, eventSubmit, nil); err != nil {
		return o.fail(flow, err, txerrors.KindTransactionRejectedBySigner, txerrors.StepAction)
	}

	// the write is dispatched from here on; the caller can no longer cancel
	ctx = context.WithoutCancel(ctx)

	call, value := action.Call(identity)

	tx, err := o.writer.Write(ctx, identity, action.ChainID(), call, value)
	if err != nil {
		return o.fail(flow, err, txerrors.KindTransactionRejectedBySigner, txerrors.StepAction)
	}

	if err = o.transition(flow, eventSubmitted, func() { flow.tx = tx }); err != nil {
		return o.fail(flow, err, txerrors.KindTransactionRejectedBySigner, txerrors.StepAction)
	}

	if observer, ok := action.(TxObserver); ok {
		observer.Submitted(tx)
	}

	receipt, err := o.waiter.AwaitReceipt(ctx, tx)
	if err != nil {
		return o.fail(flow, err, txerrors.KindTransactionReverted, txerrors.StepReceipt)
	}

	if receipt.Status != smartcontract.ReceiptConfirmed {
		flow.mu.Lock()
		flow.receipt = receipt
		flow.mu.Unlock()

		return o.fail(flow, txerrors.New(txerrors.KindTransactionReverted, "%s reverted in block %d", tx.Hash.Hex(), receipt.BlockNumber),
			txerrors.KindTransactionReverted, txerrors.StepReceipt)
	}

	if err = o.transition(flow, eventSucceed, func() {
		flow.receipt = receipt
		flow.finishedAt = o.now()
	}); err != nil {
		return err
	}

	if observer, ok := action.(TxObserver); ok {
		observer.Resolved(receipt, nil)
	}

	o.refreshOnce(ctx, flow, identity)

	view := flow.View()
	traceFlowFinished(string(action.Kind()), "succeeded", time.Duration(view.ElapsedSeconds*float64(time.Second)))

	log.WithField("flow", flow.key.String()).WithField("tx_hash", tx.Hash.Hex()).Info("flow succeeded")

	return nil
}

func (o *Orchestrator) checkApproval(ctx context.Context, flow *Flow, identity datamodel.Identity, spend *Spend) error {
	req := approval.Request{
		ChainID:  flow.action.ChainID(),
		Token:    spend.Token,
		Spender:  *spend.Spender,
		Required: spend.Amount,
	}

	current, err := o.state.Allowance(ctx, req.ChainID, req.Token, identity.Address, req.Spender, true)
	if err != nil {
		return txerrors.Classify(err, txerrors.KindContractRead, txerrors.StepApproval)
	}

	if o.gate.Observe(identity.Address, req, current) == approval.StateSufficient {
		return nil
	}

	if err = o.transition(flow, eventApprove, nil); err != nil {
		return err
	}

	_, err = o.gate.EnsureApproved(ctx, identity, req, current, func(tx *smartcontract.PendingTx) {
		if err := o.transition(flow, eventApprovalSubmitted, func() { flow.approvalTx = tx }); err != nil {
			log.WithError(err).WithField("flow", flow.key.String()).Debug("approval submitted after flow moved on")
		}
	})
	if err != nil {
		return err
	}

	if err = o.state.Invalidate(ctx, caching.AllowanceKey(req.ChainID, req.Token, identity.Address, req.Spender)); err != nil {
		log.WithError(err).Warn("failed to invalidate allowance after approval")
	}

	return nil
}

// revalidate re-reads everything the write depends on immediately before it is
// submitted.
func (o *Orchestrator) revalidate(ctx context.Context, flow *Flow, identity datamodel.Identity, spend *Spend) error {
	current, err := o.wallet.Identity(ctx)
	if err != nil {
		return txerrors.Wrap(txerrors.KindIdentityChanged, err, "wallet identity unavailable").WithStep(txerrors.StepAction)
	}

	if !current.Equal(identity) {
		return txerrors.New(txerrors.KindIdentityChanged, "wallet changed from %s on %d to %s on %d",
			identity.Address.Hex(), identity.ChainID, current.Address.Hex(), current.ChainID).WithStep(txerrors.StepAction)
	}

	chainID := flow.action.ChainID()

	if spend != nil {
		if spend.Spender != nil {
			allowance, err := o.state.Allowance(ctx, chainID, spend.Token, identity.Address, *spend.Spender, true)
			if err != nil {
				return txerrors.Classify(err, txerrors.KindContractRead, txerrors.StepApproval)
			}

			if approval.NeedsApproval(allowance, spend.Amount) {
				return txerrors.New(txerrors.KindInsufficientAllowance, "allowance %s is below %s", allowance, spend.Amount).WithStep(txerrors.StepApproval)
			}
		}

		balance, err := o.state.Balance(ctx, chainID, spend.Token, identity.Address, true)
		if err != nil {
			return txerrors.Classify(err, txerrors.KindContractRead, txerrors.StepAction)
		}

		if balance.Cmp(spend.Amount) < 0 {
			return txerrors.New(txerrors.KindInsufficientBalance, "balance %s is below %s", balance, spend.Amount).WithStep(txerrors.StepAction)
		}
	}

	if err = flow.action.Prepare(ctx, identity); err != nil {
		return err
	}

	return ctx.Err()
}

func (o *Orchestrator) fail(flow *Flow, cause error, fallback txerrors.Kind, step txerrors.Step) error {
	if errors.Is(cause, ErrAborted) {
		return ErrAborted
	}

	typed := txerrors.Classify(cause, fallback, step)

	err := o.transition(flow, eventFail, func() {
		flow.err = typed
		flow.finishedAt = o.now()
	})
	if errors.Is(err, ErrAborted) {
		return ErrAborted
	}

	if observer, ok := flow.action.(TxObserver); ok {
		observer.Resolved(nil, typed)
	}

	view := flow.View()
	traceFlowFinished(string(flow.key.Action), "failed", time.Duration(view.ElapsedSeconds*float64(time.Second)))

	log.WithError(typed).WithField("flow", flow.key.String()).WithField("step", typed.Step).Error("flow failed")

	if o.reporter != nil {
		issue := &datamodel.FlowIssue{
			InstanceID:      o.instanceID,
			Flow:            flow.key.String(),
			Action:          string(flow.key.Action),
			Kind:            string(typed.Kind),
			Step:            string(typed.Step),
			Message:         typed.Error(),
			TxHash:          view.TxHash,
			TimeOfReporting: strconv.FormatInt(o.now().Unix(), 10),
		}

		go o.reporter.Report(issue)
	}

	return typed
}

// refreshOnce invalidates and re-fetches the reads a confirmed flow changed. It
// runs at most once per flow.
func (o *Orchestrator) refreshOnce(ctx context.Context, flow *Flow, identity datamodel.Identity) {
	flow.mu.Lock()
	if flow.refreshed {
		flow.mu.Unlock()

		return
	}

	flow.refreshed = true
	flow.mu.Unlock()

	keys := flow.action.RefreshKeys(identity)

	if err := o.state.Invalidate(ctx, keys...); err != nil {
		log.WithError(err).WithField("flow", flow.key.String()).Warn("failed to invalidate reads after success")
	}

	if o.refresher != nil {
		o.refresher.Refresh(keys...)
	}
}

func (o *Orchestrator) lookup(key Key) *Flow {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.flows[key]
}

// Lookup finds a flow by its key string.
func (o *Orchestrator) Lookup(id string) (*Flow, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for key, flow := range o.flows {
		if key.String() == id {
			return flow, true
		}
	}

	return nil, false
}

// Flows lists the current flow of every key.
func (o *Orchestrator) Flows() []FlowView {
	o.mu.Lock()
	flows := make([]*Flow, 0, len(o.flows))
	for _, flow := range o.flows {
		flows = append(flows, flow)
	}
	o.mu.Unlock()

	views := make([]FlowView, 0, len(flows))
	for _, flow := range flows {
		views = append(views, flow.View())
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	return views
}

// Reset returns a finished flow to IDLE. Active flows cannot be reset.
func (o *Orchestrator) Reset(key Key) error {
	flow := o.lookup(key)
	if flow == nil {
		return nil
	}

	flow.mu.Lock()

	state := flow.machine.Current()

	if active[state] {
		flow.mu.Unlock()

		return txerrors.New(txerrors.KindAlreadyInProgress, "%s is %s", key.Action, state)
	}

	if state == StateIdle {
		flow.mu.Unlock()

		return nil
	}

	err := flow.machine.Event(eventReset)
	flow.err = nil
	view := flow.viewLocked()

	flow.mu.Unlock()

	if err != nil {
		return err
	}

	o.emit(view)

	return nil
}

// Abort returns a flow that has not reached SUBMITTING to IDLE and cancels its
// pending reads. An approval already broadcast still resolves on chain.
func (o *Orchestrator) Abort(key Key) error {
	flow := o.lookup(key)
	if flow == nil {
		return ErrNoFlow
	}

	flow.mu.Lock()

	if !flow.machine.Can(eventAbort) {
		state := flow.machine.Current()
		flow.mu.Unlock()

		return txerrors.New(txerrors.KindAlreadyInProgress, "%s is %s and can no longer be aborted", key.Action, state)
	}

	if err := flow.machine.Event(eventAbort); err != nil {
		flow.mu.Unlock()

		return err
	}

	flow.aborted = true
	flow.finishedAt = o.now()

	if flow.cancel != nil {
		flow.cancel()
	}

	view := flow.viewLocked()

	flow.mu.Unlock()

	traceFlowFinished(string(key.Action), "aborted", time.Duration(view.ElapsedSeconds*float64(time.Second)))

	log.WithField("flow", key.String()).Info("flow aborted")

	o.emit(view)

	return nil
}

// Retry resets a FAILED flow and starts its action again in the background,
// returning the flow right after admission. Approval is skipped when the
// allowance is now sufficient.
func (o *Orchestrator) Retry(ctx context.Context, key Key) (FlowView, error) {
	flow := o.lookup(key)
	if flow == nil {
		return FlowView{}, ErrNoFlow
	}

	if state := flow.State(); state != StateFailed {
		return flow.View(), txerrors.New(txerrors.KindFlowNotReset, "only failed flows can be retried, %s is %s", key.Action, state)
	}

	if err := o.Reset(key); err != nil {
		return flow.View(), err
	}

	return o.Start(ctx, flow.action)
}
