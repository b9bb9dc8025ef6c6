package domain

import (
	"fmt"
	"strings"
)

// Error types for consistent error handling across the console.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a transport-level failure calling the payout API.
// Local state is left untouched so the operator can retry.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a local validation error. No network call was made.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrPartialFailure indicates the payout API accepted some sellers and
// rejected others.
type ErrPartialFailure struct {
	Outcome *ScheduleOutcome
}

func (e *ErrPartialFailure) Error() string {
	ids := make([]string, 0, len(e.Outcome.Failed))
	for _, f := range e.Outcome.Failed {
		ids = append(ids, f.SellerID)
	}
	return fmt.Sprintf("partial failure: %d seller(s) scheduled, %d rejected [%s]",
		len(e.Outcome.Succeeded), len(e.Outcome.Failed), strings.Join(ids, ","))
}

// ErrInconsistentState indicates schedules were created but not processed.
// The operator must reconcile by reloading the pending payouts.
type ErrInconsistentState struct {
	SellerID    string
	ScheduleIDs []string
	Err         error
}

func (e *ErrInconsistentState) Error() string {
	return fmt.Sprintf("schedule(s) [%s] created for seller %s but not processed: %v",
		strings.Join(e.ScheduleIDs, ","), e.SellerID, e.Err)
}

func (e *ErrInconsistentState) Unwrap() error {
	return e.Err
}

// ErrConcurrentOperation indicates the same logical action is already in flight.
type ErrConcurrentOperation struct {
	Action string
}

func (e *ErrConcurrentOperation) Error() string {
	return fmt.Sprintf("operation already in progress: %s", e.Action)
}

// ErrMalformedResponse indicates the payout API returned data of an
// unexpected shape. Amounts are never defaulted.
type ErrMalformedResponse struct {
	Service string
	Reason  string
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Service, e.Reason)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}
