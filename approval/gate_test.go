package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

func TestGateApprove(t *testing.T) {
	t.Parallel()

	g := NewGate(time.Second, zerolog.Nop())
	p := g.Request("cancel_subscription", "user-001", "Cancel the GymPass subscription", nil)
	assert.Equal(t, StateRequested, p.State)

	go func() {
		require.True(t, g.Resolve(p.ID, true))
	}()

	require.NoError(t, g.Await(context.Background(), p))
	assert.Equal(t, StateApproved, p.State)
}

func TestGateDeny(t *testing.T) {
	t.Parallel()

	g := NewGate(time.Second, zerolog.Nop())
	p := g.Request("send_email", "user-001", "Send a support email: dispute", nil)

	go g.Resolve(p.ID, false)

	err := g.Await(context.Background(), p)
	require.Error(t, err)

	var denied *core.ApprovalDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, p.ID, denied.ApprovalID)
	assert.Equal(t, StateDenied, p.State)
}

func TestGateTimeout(t *testing.T) {
	t.Parallel()

	g := NewGate(20*time.Millisecond, zerolog.Nop())
	p := g.Request("transfer_to_account", "user-001", "Transfer $50", nil)

	err := g.Await(context.Background(), p)
	require.Error(t, err)

	var timedOut *core.ApprovalTimeoutError
	require.True(t, errors.As(err, &timedOut))
	assert.Equal(t, StateTimedOut, p.State)

	// A late decision is a no-op.
	assert.False(t, g.Resolve(p.ID, true))
}

func TestGateFirstDecisionWins(t *testing.T) {
	t.Parallel()

	g := NewGate(time.Second, zerolog.Nop())
	p := g.Request("cancel_meeting", "user-001", "Cancel appointment", nil)

	require.True(t, g.Resolve(p.ID, true))
	assert.False(t, g.Resolve(p.ID, false))
	assert.Equal(t, StateApproved, p.State)
}

func TestGateResolveUnknownID(t *testing.T) {
	t.Parallel()

	g := NewGate(time.Second, zerolog.Nop())
	assert.False(t, g.Resolve("nope", true))
}

func TestGateLookup(t *testing.T) {
	t.Parallel()

	g := NewGate(time.Second, zerolog.Nop())
	p := g.Request("send_email", "user-001", "Send email", nil)

	got, ok := g.Lookup(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)

	g.Resolve(p.ID, true)
	_, ok = g.Lookup(p.ID)
	assert.False(t, ok)
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	out, err := RenderSummary("Cancel the {{.merchant}} subscription", map[string]any{"merchant": "GymPass"})
	require.NoError(t, err)
	assert.Equal(t, "Cancel the GymPass subscription", out)

	_, err = RenderSummary("Cancel {{.merchant}}", map[string]any{})
	assert.Error(t, err)
}
