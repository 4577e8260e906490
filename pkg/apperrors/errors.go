package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrConnection             = errors.New("tenant database connection failed")
	ErrTransientWriteConflict = errors.New("transient write conflict")
	ErrUnparsableModelReply   = errors.New("unparsable model reply")
	ErrBlockedQuery           = errors.New("query blocked")
	ErrPlanValidationFailed   = errors.New("plan validation failed")
	ErrGenerationFailed       = errors.New("generation failed")
	ErrExecution              = errors.New("execution failed")
	ErrCredentialsKeyMismatch = errors.New("endpoint credentials were encrypted with a different key")
)

// BlockedQueryError reports the mutating keyword that tripped the safety gate.
type BlockedQueryError struct {
	Keyword string
}

func (e *BlockedQueryError) Error() string {
	return fmt.Sprintf("query blocked: contains %s", e.Keyword)
}

func (e *BlockedQueryError) Unwrap() error { return ErrBlockedQuery }

// PlanError is a dry-run rejection from the tenant database planner.
type PlanError struct {
	SQL   string
	Cause error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan validation failed: %v", e.Cause)
}

func (e *PlanError) Unwrap() []error { return []error{ErrPlanValidationFailed, e.Cause} }

// ExecutionError wraps a database failure raised while running a query.
// Message is safe to show to the caller.
type ExecutionError struct {
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Message
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Cause} }
