package engine

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors.
type Code string

const (
	// CodeValidation indicates a malformed command contract or malformed
	// batch input. Validation failures never mutate engine state.
	CodeValidation Code = "VALIDATION"

	// CodeIneligible indicates the command's own precondition reported
	// false or failed. Never mutates engine state.
	CodeIneligible Code = "INELIGIBLE"

	// CodeExecution indicates the command's primary operation (or its
	// reversal) returned an error. Metrics are updated; history and
	// stacks are not otherwise mutated.
	CodeExecution Code = "EXECUTION"

	// CodeEmptyStack indicates undo/redo was attempted with nothing to
	// reverse or re-apply.
	CodeEmptyStack Code = "EMPTY_STACK"

	// CodeUnsupportedReversal indicates undo was attempted on a command
	// lacking reversal capability, or reversal is not currently
	// permitted by the command's own CanUndo query.
	CodeUnsupportedReversal Code = "UNSUPPORTED_REVERSAL"

	// CodeBatch wraps a failing batch member's index and underlying
	// error after rollback has completed.
	CodeBatch Code = "BATCH"
)

// OpError is the structured error surfaced by every engine operation.
//
// The Code field drives programmatic handling; the remaining fields
// carry diagnostics. Batch failures additionally carry the member index
// and a RollbackReport describing the compensating reversal.
type OpError struct {
	// Code identifies the error category.
	Code Code

	// Op names the engine entry point: "execute", "batch", "undo",
	// "redo", or "rollback".
	Op string

	// Message is a human-readable description.
	Message string

	// CommandKind identifies the affected command, when there is one.
	CommandKind string

	// BatchID identifies the affected batch, when there is one.
	BatchID string

	// MemberIndex is the index of the failing batch member, or -1.
	MemberIndex int

	// Rollback describes the best-effort rollback performed after a
	// mid-batch failure. Nil for non-batch errors.
	Rollback *RollbackReport

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	if e.CommandKind != "" {
		msg += fmt.Sprintf(" (command=%s)", e.CommandKind)
	}
	if e.BatchID != "" {
		msg += fmt.Sprintf(" (batch=%s)", e.BatchID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *OpError) Unwrap() error { return e.Err }

// newOpError builds an OpError with MemberIndex defaulted to -1.
func newOpError(code Code, op, message string) *OpError {
	return &OpError{Code: code, Op: op, Message: message, MemberIndex: -1}
}

func hasCode(err error, code Code) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// IsValidation reports whether err is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsIneligible reports whether err is an eligibility failure.
func IsIneligible(err error) bool { return hasCode(err, CodeIneligible) }

// IsExecution reports whether err is a runtime execution failure.
func IsExecution(err error) bool { return hasCode(err, CodeExecution) }

// IsEmptyStack reports whether err is an empty undo/redo stack error.
func IsEmptyStack(err error) bool { return hasCode(err, CodeEmptyStack) }

// IsUnsupportedReversal reports whether err indicates a command that
// cannot (currently) be undone.
func IsUnsupportedReversal(err error) bool { return hasCode(err, CodeUnsupportedReversal) }

// IsBatch reports whether err is a batch failure.
func IsBatch(err error) bool { return hasCode(err, CodeBatch) }
