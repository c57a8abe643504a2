package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for registry lookups.
var (
	// ErrDuplicateName is returned when a capability name is registered twice.
	ErrDuplicateName = errors.New("capability name already registered")

	// ErrUnknownCapability is returned when a delegation targets a name that
	// was never registered.
	ErrUnknownCapability = errors.New("unknown capability")
)

// ValidationError reports arguments that failed a capability's input schema
// before dispatch. Validation failures are never retried.
type ValidationError struct {
	Capability string
	Missing    []string
	Detail     string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid arguments for %s: missing required %s", e.Capability, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Capability, e.Detail)
}

// UpstreamTimeoutError reports a remote agent call that exceeded its deadline.
// The outcome of the upstream operation is unknown.
type UpstreamTimeoutError struct {
	Capability string
	Elapsed    time.Duration
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream call to %s timed out after %s", e.Capability, e.Elapsed)
}

// UpstreamFormatError reports an upstream response that was not valid
// structured data, after embedded-JSON recovery was attempted.
type UpstreamFormatError struct {
	Capability string
	Raw        string
}

func (e *UpstreamFormatError) Error() string {
	return fmt.Sprintf("upstream response from %s is not valid structured data", e.Capability)
}

// DataIsolationWarning flags a response that carried no evidence of the
// expected user identifier. It is logged and surfaced, never treated as a
// silent success, but it does not fail the request.
type DataIsolationWarning struct {
	Capability string
	UserID     string
}

func (e *DataIsolationWarning) Error() string {
	return fmt.Sprintf("response from %s does not reference user %s", e.Capability, e.UserID)
}

// ApprovalDeniedError reports a human decision against a gated action.
type ApprovalDeniedError struct {
	ApprovalID string
	Summary    string
}

func (e *ApprovalDeniedError) Error() string {
	return fmt.Sprintf("action not approved: %s", e.Summary)
}

// ApprovalTimeoutError reports an approval request that expired undecided.
type ApprovalTimeoutError struct {
	ApprovalID string
	Summary    string
}

func (e *ApprovalTimeoutError) Error() string {
	return fmt.Sprintf("approval timed out: %s", e.Summary)
}

// DepthExceededError is the cycle guard for agent-as-tool nesting.
type DepthExceededError struct {
	Capability string
	Depth      int
	Max        int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("delegation depth %d exceeds limit %d at %s", e.Depth, e.Max, e.Capability)
}
