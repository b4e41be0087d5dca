package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrDuplicatePeriod        = errors.New("payroll cycle already exists for this period")
	ErrCycleNotFound          = errors.New("payroll cycle not found")
	ErrSlipNotFound           = errors.New("payroll slip not found")
	ErrDuplicateSlip          = errors.New("payroll slip already exists for this employee in the cycle")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidPeriod          = errors.New("invalid payroll period")
	ErrUpstreamFailure        = errors.New("upstream collaborator failure")
	ErrConcurrentModification = errors.New("slip was modified by another request")
	ErrDeductionRatesNotFound = errors.New("deduction rates not configured")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrNoEligibleEmployees    = errors.New("no active employees to generate slips for")
)

// ForbiddenError names who was refused and what they attempted.
type ForbiddenError struct {
	UserID string
	Role   string
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s (role %q) is not authorized to %s", e.UserID, e.Role, e.Action)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// TransitionError describes an illegal status change on a cycle or slip.
type TransitionError struct {
	Entity  string // "cycle" or "slip"
	ID      string
	Action  string
	From    string
	Allowed []string
	Reason  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s %s %s: status is %s", e.Action, e.Entity, e.ID, e.From)
	if len(e.Allowed) > 0 {
		msg += fmt.Sprintf(" (requires %s)", strings.Join(e.Allowed, " or "))
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// UpstreamError wraps a failed call to an external collaborator.
type UpstreamError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Collaborator, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamFailure, e.Err}
}
