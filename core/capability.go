// Package core defines the shared types of the orchestration layer:
// capabilities, delegation envelopes, sessions, and the error taxonomy.
package core

import "context"

// Kind classifies how a capability executes.
type Kind string

const (
	// KindLocalTool is a pure in-process function call.
	KindLocalTool Kind = "local_tool"

	// KindSubAgent wraps a full agent so it can be invoked as a terminal
	// step. Internally it runs its own plan/delegate cycle.
	KindSubAgent Kind = "sub_agent"

	// KindRemoteAgent is reachable only over the network, addressed by a
	// published agent-card descriptor.
	KindRemoteAgent Kind = "remote_agent"
)

// Handler executes a local tool capability.
type Handler func(ctx context.Context, call *ToolCall) (*ToolResult, error)

// ToolCall carries the validated arguments of one local tool invocation.
type ToolCall struct {
	UserID    string
	RequestID string
	Arguments map[string]any
}

// ToolResult is the local tool contract: a status plus structured fields.
type ToolResult struct {
	Success bool
	Data    any
	Error   string
}

// AgentSpec configures a sub-agent capability: the instructions it plans
// against and the capability names it is allowed to delegate to.
type AgentSpec struct {
	Instruction  string
	Capabilities []string

	// TaskFormatter rewrites the caller's query into the sub-agent's task.
	TaskFormatter func(query string) string
}

// RemoteSpec binds a capability to a remote agent's published descriptor.
type RemoteSpec struct {
	// CardURL is the well-known agent-card document for the remote agent.
	CardURL string
}

// Capability is a named, independently invocable unit of functionality.
// Registered once at process start and immutable thereafter.
type Capability struct {
	Name        string
	Kind        Kind
	Description string

	// InputSchema is a JSON-schema object describing the named parameters.
	InputSchema map[string]any

	// Mutating capabilities must never be retried automatically after a
	// timeout with unknown outcome.
	Mutating bool

	// Sensitive capabilities are gated behind human approval.
	Sensitive bool

	// SummaryTemplate renders the human-readable approval description,
	// e.g. "Cancel the {{.merchant}} subscription".
	SummaryTemplate string

	// Lister names the read-only capability that enumerates the records a
	// mutating capability acts on. The router uses it to resolve missing
	// identifiers instead of guessing.
	Lister string

	// RequiredRef names the session-scoped identifier (goal_id, schedule_id,
	// meeting_id) this capability needs. Empty for capabilities that only
	// take free-form arguments.
	RequiredRef string

	// EscalationTarget optionally names the capability handling failures,
	// e.g. the support agent for duplicate-charge disputes.
	EscalationTarget string

	Handler Handler     // KindLocalTool
	Agent   *AgentSpec  // KindSubAgent
	Remote  *RemoteSpec // KindRemoteAgent
}

// References returns every capability name this capability points at. All of
// them must resolve at call time; the registry verifies them at startup.
func (c *Capability) References() []string {
	var refs []string
	if c.Agent != nil {
		refs = append(refs, c.Agent.Capabilities...)
	}
	if c.Lister != "" {
		refs = append(refs, c.Lister)
	}
	if c.EscalationTarget != "" {
		refs = append(refs, c.EscalationTarget)
	}
	return refs
}
