package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTree is returned when a scenario tree violates its structural or
// probability invariants.
var ErrMalformedTree = errors.New("malformed scenario tree")

// ErrNonConvexReformulation is returned when a chance constraint has no convex form
// for the requested risk measure.
var ErrNonConvexReformulation = errors.New("no convex reformulation")

// ErrSolverFailure is returned when the numerical solver fails, times out or crashes.
var ErrSolverFailure = errors.New("solver failure")

// ErrInvalidSpec is returned when a resource spec or run configuration is invalid.
var ErrInvalidSpec = errors.New("invalid specification")

// ErrResultNotFound is returned when a run record cannot be found in the store.
var ErrResultNotFound = errors.New("result not found")

// MalformedTreeError reports which node broke the tree invariants.
type MalformedTreeError struct {
	Node   NodeID
	Reason string
}

func (e *MalformedTreeError) Error() string {
	if e.Node == NoParent {
		return fmt.Sprintf("%s: %s", ErrMalformedTree, e.Reason)
	}
	return fmt.Sprintf("%s: node %d: %s", ErrMalformedTree, e.Node, e.Reason)
}

func (e *MalformedTreeError) Unwrap() error { return ErrMalformedTree }

// NonConvexReformulationError names the constraint family and risk measure that
// cannot be reformulated.
type NonConvexReformulationError struct {
	Family string
	Risk   string
	Reason string
}

func (e *NonConvexReformulationError) Error() string {
	return fmt.Sprintf("%s for %q under %s: %s", ErrNonConvexReformulation, e.Family, e.Risk, e.Reason)
}

func (e *NonConvexReformulationError) Unwrap() error { return ErrNonConvexReformulation }

// SolverFailureError carries the diagnostic text reported by the backend.
type SolverFailureError struct {
	Backend    string
	Diagnostic string
	Err        error
}

func (e *SolverFailureError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", ErrSolverFailure, e.Backend)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Diagnostic != "" {
		fmt.Fprintf(&sb, "\nDiagnostic: %s", e.Diagnostic)
	}
	return sb.String()
}

func (e *SolverFailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSolverFailure}
	}
	return []error{ErrSolverFailure, e.Err}
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string // Field path, e.g. "yields[2].process"
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %v)", e.Key, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSpec }

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
