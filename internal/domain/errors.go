package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is a pre-flight failure, not a swap-time error.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidTransition is returned by the ledger guard on double entry or exit.
	ErrInvalidTransition = errors.New("invalid investment state transition")
	// ErrNotImplemented marks an optional collaborator that is absent.
	ErrNotImplemented = errors.New("not implemented")
	// ErrLedgerUnconfigured is returned by the on-chain ledger without an address.
	ErrLedgerUnconfigured = errors.New(ReasonUnconfigured)
)

// ErrorKind classifies collaborator failures so callers branch on kind
// instead of matching error text.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInsufficientFunds
	KindUnavailable
	KindSerialization
	KindNotFound
	KindInvalidTransition
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindUnavailable:
		return "unavailable"
	case KindSerialization:
		return "serialization"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	}
	return "unknown"
}

// ClassifiedError attaches a kind and the failing operation to an error.
type ClassifiedError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with a kind. A nil err stays nil.
func Classify(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Op: op, Err: err}
}

// KindOf walks the chain. The outermost ClassifiedError wins; otherwise the
// sentinels and context errors are mapped, and anything else is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindUnavailable
	}
	return KindUnknown
}
