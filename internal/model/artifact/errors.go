package artifact

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindPolicyViolation
	KindNotFound
	KindIngestionFailure
	KindInvariantViolation
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindPolicyViolation:
		return "policy_violation"
	case KindNotFound:
		return "not_found"
	case KindIngestionFailure:
		return "ingestion_failure"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Error is a classified failure. Msg is safe to show to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Policyf(format string, args ...any) error {
	return &Error{Kind: KindPolicyViolation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Invariantf(format string, args ...any) error {
	return &Error{Kind: KindInvariantViolation, Msg: fmt.Sprintf(format, args...)}
}

var ErrNotAuthenticated = &Error{Kind: KindUnauthenticated, Msg: "not authenticated"}

// IngestionFailure classifies err as an ingestion failure unless it already
// carries a policy classification.
func IngestionFailure(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindPolicyViolation {
		return err
	}
	return &Error{Kind: KindIngestionFailure, Msg: err.Error(), Err: err}
}

// KindOf returns the classification of err, KindInternal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
