package domain

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy.
var (
	// ErrTransientNetwork covers stream disconnects and RPC timeouts. Always retried.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrParse is returned for a malformed stream message. The message is skipped.
	ErrParse = errors.New("parse error")

	// ErrConfiguration is fatal at startup only.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthRejected is a permanent authentication failure against the stream endpoint.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrIllegalTransition is returned when a state change is not an edge of the lifecycle.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrOutcomeUnknown marks a trade request that may have reached the venue without
	// an acknowledgement. It is reported as a timeout so buys are never resubmitted.
	ErrOutcomeUnknown = errors.New("trade outcome unknown")
)

// ExecutionKind classifies a trade executor failure.
type ExecutionKind string

const (
	// ExecRejected is a permanent refusal. Never retried.
	ExecRejected ExecutionKind = "REJECTED"
	// ExecTimeout means no confirmation arrived in time. Eligible for retry.
	ExecTimeout ExecutionKind = "TIMEOUT"
	// ExecTransient covers congestion and network failures. Eligible for retry.
	ExecTransient ExecutionKind = "TRANSIENT"
)

// ExecutionError is returned by a trade executor for a failed buy or sell.
type ExecutionError struct {
	Kind ExecutionKind
	Op   string // "buy" or "sell"
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Rejected builds a permanent execution error.
func Rejected(op string, err error) error {
	return &ExecutionError{Kind: ExecRejected, Op: op, Err: err}
}

// Transient builds a retryable execution error.
func Transient(op string, err error) error {
	return &ExecutionError{Kind: ExecTransient, Op: op, Err: err}
}

// Timeout builds a retryable execution error for a missed confirmation.
func Timeout(op string, err error) error {
	return &ExecutionError{Kind: ExecTimeout, Op: op, Err: err}
}

// ExecutionKindOf extracts the execution kind of err.
// Errors that are not ExecutionErrors are treated as transient.
func ExecutionKindOf(err error) ExecutionKind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ExecTransient
}

// IsRetryable reports whether an execution failure may be retried.
func IsRetryable(err error) bool {
	return ExecutionKindOf(err) != ExecRejected
}

// PriceError is returned by a price source when no price is available.
// A PriceError skips the position for one tick; it is never a sell trigger.
type PriceError struct {
	Mint string
	Err  error
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("price unavailable for %s: %v", e.Mint, e.Err)
}

func (e *PriceError) Unwrap() error {
	return e.Err
}
