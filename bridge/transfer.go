package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
)

const (
	StateIdle        = "IDLE"
	StateValidating  = "VALIDATING"
	StateQuoting     = "QUOTING"
	StateReadyToSend = "READY_TO_SEND"
	StateSending     = "SENDING"
	StateConfirmed   = "CONFIRMED"
	StateFailed      = "FAILED"
)

// ErrNothingPending is returned when a settlement is observed for a transfer
// that has nothing awaiting delivery on destination.
var ErrNothingPending = errors.New("nothing is pending on destination")

// Settlement tracks the destination side, which is observed and never awaited.
type Settlement string

const (
	SettlementNone      Settlement = ""
	SettlementPending   Settlement = "SETTLEMENT_PENDING_ON_DESTINATION"
	SettlementDelivered Settlement = "DELIVERED_ON_DESTINATION"
)

// Transfer is one burn/mint transfer. CONFIRMED means the source transaction
// confirmed; delivery on destination is reported separately by Settlement.
type Transfer struct {
	mu      sync.RWMutex
	machine *fsm.FSM
	service *Service
	request Request

	route      *datamodel.BridgeRoute
	payload    *Payload
	quote      *datamodel.BridgeQuote
	tx         *smartcontract.PendingTx
	receipt    *smartcontract.Receipt
	err        error
	settlement Settlement
	updatedAt  time.Time
}

func newTransfer(service *Service, req Request) *Transfer {
	t := &Transfer{service: service, request: req}

	t.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: "validate", Src: []string{StateIdle}, Dst: StateValidating},
			{Name: "quote", Src: []string{StateValidating}, Dst: StateQuoting},
			{Name: "ready", Src: []string{StateQuoting}, Dst: StateReadyToSend},
			{Name: "send", Src: []string{StateReadyToSend}, Dst: StateSending},
			{Name: "confirm", Src: []string{StateSending}, Dst: StateConfirmed},
			{Name: "fail", Src: []string{StateValidating, StateQuoting, StateReadyToSend, StateSending}, Dst: StateFailed},
			{Name: "reset", Src: []string{StateReadyToSend, StateFailed}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				t.updatedAt = time.Now()
			},
		},
	)

	return t
}

func (t *Transfer) Request() Request {
	return t.request
}

func (t *Transfer) State() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.machine.Current()
}

func (t *Transfer) event(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.machine.Event(name)
}

func (t *Transfer) failWith(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.err = err

	if t.machine.Can("fail") {
		if ferr := t.machine.Event("fail"); ferr != nil {
			log.WithError(ferr).Warn("bridge transfer fail transition rejected")
		}
	}

	return err
}

// Prepare walks VALIDATING, QUOTING and READY_TO_SEND. An existing quote is
// reused only while fresh for the same payload. The native fee is checked
// against a fresh balance read.
func (t *Transfer) Prepare(ctx context.Context, identity datamodel.Identity) error {
	t.mu.Lock()
	if t.machine.Can("reset") {
		_ = t.machine.Event("reset")
	}
	t.err = nil
	t.mu.Unlock()

	if err := t.event("validate"); err != nil {
		return fmt.Errorf("transfer cannot be prepared from %s: %w", t.State(), err)
	}

	payload, err := t.service.Build(t.request)
	if err != nil {
		return t.failWith(err)
	}

	t.mu.Lock()
	t.route = &payload.Route
	t.payload = payload
	previous := t.quote
	t.mu.Unlock()

	if err = t.event("quote"); err != nil {
		return t.failWith(err)
	}

	quote, err := t.service.quoter.Ensure(ctx, payload, previous)
	if err != nil {
		return t.failWith(err)
	}

	t.mu.Lock()
	t.quote = quote
	t.mu.Unlock()

	if err = t.service.CheckFee(ctx, payload.Route.SourceChainID, identity.Address, quote); err != nil {
		return t.failWith(err)
	}

	if err = t.event("ready"); err != nil {
		return t.failWith(err)
	}

	return nil
}

// Call is the send with value = the quoted native fee. Only valid once READY_TO_SEND.
func (t *Transfer) Call(identity datamodel.Identity) (smartcontract.Call, *big.Int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fee := smartcontract.MessagingFee{NativeFee: new(big.Int), LzTokenFee: new(big.Int)}
	if t.quote != nil {
		fee.NativeFee = new(big.Int).Set(t.quote.NativeFee)
	}

	var param smartcontract.SendParam
	if t.payload != nil {
		param = t.payload.Param
	}

	src, _ := t.service.routes.Endpoint(t.request.SourceChainID)

	return smartcontract.Send{
		OFT:           src.OFT,
		Param:         param,
		Fee:           fee,
		RefundAddress: identity.Address,
	}, new(big.Int).Set(fee.NativeFee)
}

func (t *Transfer) Submitted(tx *smartcontract.PendingTx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tx = tx

	if err := t.machine.Event("send"); err != nil {
		log.WithError(err).Warn("bridge transfer send transition rejected")
	}
}

// Resolved records the source-side outcome. A confirmed source transaction leaves
// the transfer pending settlement on destination.
func (t *Transfer) Resolved(receipt *smartcontract.Receipt, err error) {
	if err != nil {
		_ = t.failWith(err)

		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.receipt = receipt

	if ferr := t.machine.Event("confirm"); ferr != nil {
		log.WithError(ferr).Warn("bridge transfer confirm transition rejected")

		return
	}

	t.settlement = SettlementPending
}

// ObserveDestinationSettlement marks the transfer delivered once the caller has
// seen the mint on destination.
func (t *Transfer) ObserveDestinationSettlement() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.machine.Current() != StateConfirmed || t.settlement != SettlementPending {
		return fmt.Errorf("%w: transfer is %s", ErrNothingPending, t.machine.Current())
	}

	t.settlement = SettlementDelivered
	t.updatedAt = time.Now()

	return nil
}

type View struct {
	State      string                 `json:"state"`
	Settlement Settlement             `json:"settlement,omitempty"`
	Request    Request                `json:"request"`
	Route      *datamodel.BridgeRoute `json:"route,omitempty"`
	Quote      *datamodel.BridgeQuote `json:"quote,omitempty"`
	TxHash     string                 `json:"tx_hash,omitempty"`
	Error      string                 `json:"error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (t *Transfer) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()

	view := View{
		State:      t.machine.Current(),
		Settlement: t.settlement,
		Request:    t.request,
		Route:      t.route,
		Quote:      t.quote,
		UpdatedAt:  t.updatedAt,
	}

	if t.tx != nil {
		view.TxHash = t.tx.Hash.Hex()
	}

	if t.err != nil {
		view.Error = t.err.Error()
	}

	return view
}
