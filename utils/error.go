package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// The four caller-facing error kinds. Validation and State errors mean the
// request itself is wrong and must not be retried as-is. Policy errors mean a
// business condition blocks the operation; the caller has to resolve that
// condition first. Transient external failures never surface through these
// types: they stay inside the reconciliation retry cycle.

type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(code string, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

type StateError struct {
	Code    string
	Message string
}

func (e *StateError) Error() string { return e.Message }

func NewStateError(code string, format string, args ...any) *StateError {
	return &StateError{Code: code, Message: fmt.Sprintf(format, args...)}
}

type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

func NewPolicyError(code string, format string, args ...any) *PolicyError {
	return &PolicyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

const (
	CodeDuplicateEntry          = "DUPLICATE_ENTRY"
	CodeEmptyWorksheet          = "EMPTY_WORKSHEET"
	CodeInvalidState            = "INVALID_STATE"
	CodeEntryLocked             = "ENTRY_LOCKED"
	CodeCriticalVarianceBlocked = "CRITICAL_VARIANCE_BLOCKED"
	CodeApprovalRequired        = "APPROVAL_REQUIRED"
	CodeIncompleteInvestigation = "INCOMPLETE_INVESTIGATION"
	CodeReconciliationNotFailed = "RECONCILIATION_NOT_FAILED"
	CodeConflictAdjudication    = "CONFLICT_ADJUDICATION_REQUIRED"
)

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// ErrorCode extracts the machine code from any of the typed errors above.
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var se *StateError
	if errors.As(err, &se) {
		return se.Code
	}
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
