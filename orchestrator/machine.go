package orchestrator

import (
	"github.com/looplab/fsm"
)

const (
	StateIdle                    = "IDLE"
	StateCheckingApproval        = "CHECKING_APPROVAL"
	StateApproving               = "APPROVING"
	StateAwaitingApprovalReceipt = "AWAITING_APPROVAL_RECEIPT"
	StateSubmitting              = "SUBMITTING"
	StateAwaitingReceipt         = "AWAITING_RECEIPT"
	StateSucceeded               = "SUCCEEDED"
	StateFailed                  = "FAILED"
)

const (
	eventCheck             = "check"
	eventApprove           = "approve"
	eventApprovalSubmitted = "approval_submitted"
	eventSubmit            = "submit"
	eventSubmitted         = "submitted"
	eventSucceed           = "succeed"
	eventFail              = "fail"
	eventAbort             = "abort"
	eventReset             = "reset"
)

var (
	// states a caller may abort from; SUBMITTING and later have dispatched the write
	abortable = []string{StateCheckingApproval, StateApproving, StateAwaitingApprovalReceipt}

	active = map[string]bool{
		StateCheckingApproval:        true,
		StateApproving:               true,
		StateAwaitingApprovalReceipt: true,
		StateSubmitting:              true,
		StateAwaitingReceipt:         true,
	}
)

func newMachine(onEnter func(e *fsm.Event)) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventCheck, Src: []string{StateIdle}, Dst: StateCheckingApproval},
			{Name: eventApprove, Src: []string{StateCheckingApproval}, Dst: StateApproving},
			{Name: eventApprovalSubmitted, Src: []string{StateApproving}, Dst: StateAwaitingApprovalReceipt},
			// APPROVING can go straight to SUBMITTING when a joined approval was already mined
			{Name: eventSubmit, Src: []string{StateCheckingApproval, StateApproving, StateAwaitingApprovalReceipt}, Dst: StateSubmitting},
			{Name: eventSubmitted, Src: []string{StateSubmitting}, Dst: StateAwaitingReceipt},
			{Name: eventSucceed, Src: []string{StateAwaitingReceipt}, Dst: StateSucceeded},
			{Name: eventFail, Src: []string{
				StateCheckingApproval, StateApproving, StateAwaitingApprovalReceipt, StateSubmitting, StateAwaitingReceipt,
			}, Dst: StateFailed},
			{Name: eventAbort, Src: abortable, Dst: StateIdle},
			{Name: eventReset, Src: []string{StateSucceeded, StateFailed}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": onEnter,
		},
	)
}
