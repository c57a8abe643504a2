package core

import "encoding/json"

// Status is the outcome class of a delegation.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusPendingApproval Status = "pending_approval"

	// StatusNeedsInput means the delegation cannot proceed without more
	// information from the user, e.g. an ambiguous record identifier. The
	// payload carries the listing to choose from.
	StatusNeedsInput Status = "needs_input"
)

// DelegationRequest is one outbound call from an agent to a capability.
type DelegationRequest struct {
	ID         string         `json:"id"`
	Capability string         `json:"capability"`
	Arguments  map[string]any `json:"arguments"`

	// CallerID identifies the issuing agent, for logging and cycle tracing.
	CallerID string `json:"caller_id"`

	// Depth counts agent-as-tool nesting. The dispatcher rejects requests
	// past the configured limit so mutually referencing agents terminate.
	Depth int `json:"depth"`
}

// DelegationResponse is the structured result of a delegation. Payload is
// capability-specific but always valid structured data, never free text the
// caller must re-parse.
type DelegationResponse struct {
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`

	// ApprovalID is set when Status is pending_approval.
	ApprovalID string `json:"approval_id,omitempty"`

	// IsolationWarning is set when the payload carried no evidence of the
	// requesting user's identifier.
	IsolationWarning bool `json:"isolation_warning,omitempty"`
}

// ErrorResponse wraps an error into the structured response shape. Malformed
// upstream results never propagate as crashes; worst case is this envelope.
func ErrorResponse(err error) *DelegationResponse {
	return &DelegationResponse{Status: StatusError, ErrorDetail: err.Error()}
}

// SuccessResponse marshals v as the response payload.
func SuccessResponse(v any) *DelegationResponse {
	raw, err := json.Marshal(v)
	if err != nil {
		return ErrorResponse(err)
	}
	return &DelegationResponse{Status: StatusSuccess, Payload: raw}
}
