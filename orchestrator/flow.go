package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/looplab/fsm"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

// Key identifies a logical action. At most one flow per key is in flight.
type Key struct {
	User   common.Address   `json:"user"`
	Token  common.Address   `json:"token"`
	Action datamodel.Action `json:"action"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.User.Hex(), k.Token.Hex(), k.Action)
}

// Flow is one run of the shared state machine for a key. Every machine event is
// fired with mu held.
type Flow struct {
	mu      sync.RWMutex
	key     Key
	action  Action
	machine *fsm.FSM

	err        *txerrors.Error
	approvalTx *smartcontract.PendingTx
	tx         *smartcontract.PendingTx
	receipt    *smartcontract.Receipt

	startedAt  time.Time
	finishedAt time.Time
	enteredAt  time.Time

	cancel    context.CancelFunc
	aborted   bool
	refreshed bool

	now func() time.Time
}

func newFlow(key Key, action Action, now func() time.Time) *Flow {
	f := &Flow{key: key, action: action, now: now}
	f.machine = newMachine(func(e *fsm.Event) {
		f.enteredAt = f.now()
	})

	return f
}

func (f *Flow) Key() Key {
	return f.key
}

func (f *Flow) Action() Action {
	return f.action
}

func (f *Flow) State() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.machine.Current()
}

func (f *Flow) isActive() bool {
	return active[f.State()]
}

// FlowView is the externally visible state of a flow.
type FlowView struct {
	Key            Key           `json:"key"`
	ID             string        `json:"id"`
	State          string        `json:"state"`
	FailedStep     txerrors.Step `json:"failed_step,omitempty"`
	ErrorKind      txerrors.Kind `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
	ApprovalTxHash string        `json:"approval_tx_hash,omitempty"`
	TxHash         string        `json:"tx_hash,omitempty"`
	BlockNumber    uint64        `json:"block_number,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	StateEnteredAt time.Time     `json:"state_entered_at"`
	// ElapsedSeconds runs until the flow reaches a terminal state.
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

func (f *Flow) viewLocked() FlowView {
	view := FlowView{
		Key:            f.key,
		ID:             f.key.String(),
		State:          f.machine.Current(),
		StartedAt:      f.startedAt,
		StateEnteredAt: f.enteredAt,
	}

	if f.err != nil {
		view.FailedStep = f.err.Step
		view.ErrorKind = f.err.Kind
		view.Error = f.err.Error()
	}

	if f.approvalTx != nil {
		view.ApprovalTxHash = f.approvalTx.Hash.Hex()
	}

	if f.tx != nil {
		view.TxHash = f.tx.Hash.Hex()
	}

	if f.receipt != nil {
		view.BlockNumber = f.receipt.BlockNumber
	}

	if !f.startedAt.IsZero() {
		end := f.finishedAt
		if end.IsZero() {
			end = f.now()
		}

		view.ElapsedSeconds = end.Sub(f.startedAt).Seconds()
	}

	return view
}

func (f *Flow) View() FlowView {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.viewLocked()
}

// Err is the cause of a FAILED flow.
func (f *Flow) Err() *txerrors.Error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.err
}
