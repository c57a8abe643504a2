package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/tools"
)

func subscriptionCapabilities(t *testing.T) []*core.Capability {
	t.Helper()
	var caps []*core.Capability
	for _, c := range tools.NewBank().Capabilities() {
		if c.Name == "list_subscriptions" || c.Name == "cancel_subscription" {
			caps = append(caps, c)
		}
	}
	require.Len(t, caps, 2)
	return caps
}

func TestRulesMatchesCancellationWithoutGuessingIdentifier(t *testing.T) {
	t.Parallel()

	p := NewRules(zerolog.Nop())
	plan, err := p.Plan(context.Background(), &engine.PlanInput{
		AgentName: "subscriptions",
		Task:      "Why am I paying for GymPass every month? Cancel it.",
		Available: subscriptionCapabilities(t),
	})
	require.NoError(t, err)

	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "cancel_subscription", plan.Calls[0].Capability)

	// The identifier must come from a listing, never from the planner.
	_, hasID := plan.Calls[0].Arguments["subscription_id"]
	assert.False(t, hasID)
}

func TestRulesDeclinesOutOfDomainWithoutDelegating(t *testing.T) {
	t.Parallel()

	p := NewRules(zerolog.Nop())
	plan, err := p.Plan(context.Background(), &engine.PlanInput{
		AgentName: "router",
		Task:      "What's the weather in Paris?",
		Available: subscriptionCapabilities(t),
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Calls)
	assert.NotEmpty(t, plan.Clarify)
	assert.Empty(t, plan.Reply)
}

func TestRulesExtractsDateRange(t *testing.T) {
	t.Parallel()

	cap := &core.Capability{
		Name:        "get_transactions",
		Kind:        core.KindRemoteAgent,
		Description: "Fetch the user's transactions, optionally within a date range",
		InputSchema: tools.ObjectSchema(map[string]any{
			"start_date": tools.StringProperty("range start"),
			"end_date":   tools.StringProperty("range end"),
		}),
	}

	p := NewRules(zerolog.Nop())
	plan, err := p.Plan(context.Background(), &engine.PlanInput{
		AgentName: "transaction_history",
		Task:      "Show my transactions between 2026-01-01 and 2026-02-01",
		Available: []*core.Capability{cap},
	})
	require.NoError(t, err)

	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "2026-01-01", plan.Calls[0].Arguments["start_date"])
	assert.Equal(t, "2026-02-01", plan.Calls[0].Arguments["end_date"])
}

func TestRulesComposesReplyFromResults(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal([]map[string]any{{"merchant": "GymPass"}})
	p := NewRules(zerolog.Nop())
	plan, err := p.Plan(context.Background(), &engine.PlanInput{
		AgentName: "subscriptions",
		Task:      "anything",
		Results: []engine.StepResult{
			{
				Call:     engine.PlannedCall{Capability: "list_subscriptions"},
				Response: &core.DelegationResponse{Status: core.StatusSuccess, Payload: payload},
			},
			{
				Call:     engine.PlannedCall{Capability: "cancel_subscription"},
				Response: &core.DelegationResponse{Status: core.StatusError, ErrorDetail: "action not approved: Cancel the GymPass subscription"},
			},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Calls)
	assert.Contains(t, plan.Reply, "GymPass")
	assert.Contains(t, plan.Reply, "couldn't complete cancel_subscription")
}
