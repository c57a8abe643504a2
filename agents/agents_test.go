package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/tools"
)

const testCardURL = "http://localhost:8001/a2a/financial_agent/.well-known/agent-card.json"

func registered(t *testing.T) *engine.Registry {
	t.Helper()
	registry := engine.NewRegistry()
	require.NoError(t, Register(registry, tools.NewBank(), testCardURL))
	return registry
}

func TestRegisterBuildsConsistentTree(t *testing.T) {
	t.Parallel()

	registry := registered(t)
	require.NoError(t, registry.Verify())

	// Registering again collides on every name.
	assert.Error(t, Register(registry, tools.NewBank(), testCardURL))
}

func TestSessionAgentsResolve(t *testing.T) {
	t.Parallel()

	registry := registered(t)
	for name := range SessionAgents {
		cap, err := registry.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, core.KindSubAgent, cap.Kind, name)
		assert.NotNil(t, cap.Agent, name)
		assert.NotEmpty(t, cap.Agent.Instruction, name)
	}
}

func TestRootRoutesToEverySpecialist(t *testing.T) {
	t.Parallel()

	registry := registered(t)
	root, err := registry.Resolve(RootAgentName)
	require.NoError(t, err)

	for _, name := range []string{
		"daily_spendings", "investments", "transaction_history", "big_spendings",
		"support", "cash_flow", "proactive_insights", "financial",
	} {
		assert.Contains(t, root.Agent.Capabilities, name)
	}
}

func TestFinancialCapabilitiesAreReadOnlyRemote(t *testing.T) {
	t.Parallel()

	caps := FinancialCapabilities(testCardURL)
	require.Len(t, caps, 9)
	for _, c := range caps {
		assert.Equal(t, core.KindRemoteAgent, c.Kind, c.Name)
		assert.False(t, c.Mutating, c.Name)
		assert.False(t, c.Sensitive, c.Name)
		require.NotNil(t, c.Remote, c.Name)
		assert.Equal(t, testCardURL, c.Remote.CardURL, c.Name)
	}
}

func TestSensitiveActionsNeverReachableWithoutGating(t *testing.T) {
	t.Parallel()

	registry := registered(t)
	for _, name := range registry.List() {
		cap, err := registry.Resolve(name)
		require.NoError(t, err)
		if cap.Kind == core.KindLocalTool && cap.Mutating {
			assert.True(t, cap.Sensitive, "%s mutates without approval gating", name)
		}
	}
}
