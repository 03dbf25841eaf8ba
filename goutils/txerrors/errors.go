package txerrors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure the UI can render a specific message for.
type Kind string

const (
	KindInvalidAmount               Kind = "INVALID_AMOUNT"
	KindInvalidRecipient            Kind = "INVALID_RECIPIENT"
	KindUnsupportedRoute            Kind = "UNSUPPORTED_ROUTE"
	KindInsufficientBalance         Kind = "INSUFFICIENT_BALANCE"
	KindInsufficientAllowance       Kind = "INSUFFICIENT_ALLOWANCE" // transient, resolved by an approval
	KindApprovalFailed              Kind = "APPROVAL_FAILED"
	KindInsufficientFeeBalance      Kind = "INSUFFICIENT_FEE_BALANCE"
	KindAlreadyInProgress           Kind = "ALREADY_IN_PROGRESS"
	KindTransactionRejectedBySigner Kind = "TRANSACTION_REJECTED_BY_SIGNER"
	KindTransactionReverted         Kind = "TRANSACTION_REVERTED"
	KindQuoteStale                  Kind = "QUOTE_STALE"
	KindContractRead                Kind = "CONTRACT_READ"
	KindIdentityChanged             Kind = "IDENTITY_CHANGED"
	KindFlowNotReset                Kind = "FLOW_NOT_RESET"
)

// Step is the orchestration step a failure happened in.
type Step string

const (
	StepNone     Step = ""
	StepValidate Step = "validate"
	StepApproval Step = "approval"
	StepQuote    Step = "quote"
	StepAction   Step = "action"
	StepReceipt  Step = "receipt"
)

type Error struct {
	Kind Kind   `json:"kind"`
	Step Step   `json:"step,omitempty"`
	Msg  string `json:"message,omitempty"`
	Err  error  `json:"-"`
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Step != StepNone {
		s = fmt.Sprintf("%s (%s)", s, e.Step)
	}

	if e.Msg != "" {
		s += ": " + e.Msg
	}

	if e.Err != nil {
		s += ": " + e.Err.Error()
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidAmount) works
// regardless of step, message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// WithStep returns a copy of e attributed to step.
func (e *Error) WithStep(step Step) *Error {
	c := *e
	c.Step = step

	return &c
}

var (
	ErrInvalidAmount               = &Error{Kind: KindInvalidAmount}
	ErrInvalidRecipient            = &Error{Kind: KindInvalidRecipient}
	ErrUnsupportedRoute            = &Error{Kind: KindUnsupportedRoute}
	ErrInsufficientBalance         = &Error{Kind: KindInsufficientBalance}
	ErrInsufficientAllowance       = &Error{Kind: KindInsufficientAllowance}
	ErrApprovalFailed              = &Error{Kind: KindApprovalFailed}
	ErrInsufficientFeeBalance      = &Error{Kind: KindInsufficientFeeBalance}
	ErrAlreadyInProgress           = &Error{Kind: KindAlreadyInProgress}
	ErrTransactionRejectedBySigner = &Error{Kind: KindTransactionRejectedBySigner}
	ErrTransactionReverted         = &Error{Kind: KindTransactionReverted}
	ErrQuoteStale                  = &Error{Kind: KindQuoteStale}
	ErrContractRead                = &Error{Kind: KindContractRead}
	ErrIdentityChanged             = &Error{Kind: KindIdentityChanged}
	ErrFlowNotReset                = &Error{Kind: KindFlowNotReset}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// As extracts the first *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}

	return ""
}

// Classify returns err as an *Error, wrapping untyped errors with the fallback kind.
// A step already recorded on err is kept.
func Classify(err error, fallback Kind, step Step) *Error {
	if e := As(err); e != nil {
		if e.Step == StepNone {
			return e.WithStep(step)
		}

		return e
	}

	return &Error{Kind: fallback, Step: step, Err: err}
}
