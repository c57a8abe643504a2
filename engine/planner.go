package engine

import (
	"context"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// PlannedCall is one delegation the planner wants issued.
type PlannedCall struct {
	Capability string
	Arguments  map[string]any
}

// Plan is a planner's decision for one iteration of an agent's turn: either
// delegations to issue, or a final reply, or a clarification question. A
// planner must never invent record identifiers; when one is missing it asks
// for the matching listing instead.
type Plan struct {
	Calls []PlannedCall

	// Reply ends the turn with a final answer.
	Reply string

	// Clarify ends the turn by asking the user a question. Out-of-domain
	// requests are answered this way, never delegated.
	Clarify string
}

// StepResult feeds a completed delegation back into the next plan iteration.
type StepResult struct {
	Call     PlannedCall
	Response *core.DelegationResponse
}

// PlanInput is everything a planner sees: the agent's instruction, the task
// text, the capabilities it may use, and results of delegations issued so
// far this turn.
type PlanInput struct {
	Session     *core.Session
	AgentName   string
	Instruction string
	Task        string
	Available   []*core.Capability
	Results     []StepResult
}

// Planner decides what an agent does next. Implementations include the
// deterministic rules planner and the LLM-backed planner.
type Planner interface {
	Plan(ctx context.Context, in *PlanInput) (*Plan, error)
}
