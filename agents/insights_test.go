package agents

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/approval"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/planner"
)

func testRouter(t *testing.T) *engine.Router {
	t.Helper()
	registry := registered(t)
	gate := approval.NewGate(time.Second, zerolog.Nop())
	dispatcher := engine.NewDispatcher(registry, planner.NewRules(zerolog.Nop()), gate, nil, 5, zerolog.Nop())
	return engine.NewRouter(registry, dispatcher, RootAgentName, zerolog.Nop())
}

func TestInsightsRunOnce(t *testing.T) {
	t.Parallel()

	s := NewInsightsScheduler(testRouter(t), func(Digest) {}, zerolog.Nop())

	digest, err := s.RunOnce(context.Background(), "user-001")
	require.NoError(t, err)
	assert.Equal(t, "user-001", digest.UserID)
	assert.NotEmpty(t, digest.Text)
	assert.False(t, digest.GeneratedAt.IsZero())
}

func TestInsightsRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := NewInsightsScheduler(testRouter(t), func(Digest) {}, zerolog.Nop())
	assert.Error(t, s.Start("not a cron expression"))
}

func TestInsightsSubscriptionRoster(t *testing.T) {
	t.Parallel()

	s := NewInsightsScheduler(testRouter(t), func(Digest) {}, zerolog.Nop())
	s.Subscribe("user-001")
	s.Subscribe("user-002")
	s.Unsubscribe("user-001")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, first := s.users["user-001"]
	_, second := s.users["user-002"]
	assert.False(t, first)
	assert.True(t, second)
}
