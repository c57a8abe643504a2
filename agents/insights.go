package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
)

// Digest is one proactive-insights run for a user.
type Digest struct {
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Deliver pushes a finished digest to wherever the user can see it.
type Deliver func(Digest)

// InsightsScheduler runs the proactive-insights agent for subscribed users
// on a cron schedule, without waiting for them to ask.
type InsightsScheduler struct {
	router  *engine.Router
	deliver Deliver
	cron    *cron.Cron
	log     zerolog.Logger

	mu    sync.Mutex
	users map[string]struct{}
}

// NewInsightsScheduler creates the scheduler. Call Subscribe for each user
// and Start with a cron expression.
func NewInsightsScheduler(router *engine.Router, deliver Deliver, log zerolog.Logger) *InsightsScheduler {
	return &InsightsScheduler{
		router:  router,
		deliver: deliver,
		cron:    cron.New(),
		log:     log,
		users:   make(map[string]struct{}),
	}
}

// Subscribe enrolls a user in the scheduled digest.
func (s *InsightsScheduler) Subscribe(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// Unsubscribe removes a user from the scheduled digest.
func (s *InsightsScheduler) Unsubscribe(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// Start begins running digests on the given cron schedule.
func (s *InsightsScheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runAll); err != nil {
		return fmt.Errorf("insights schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("insights scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running digest to finish.
func (s *InsightsScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *InsightsScheduler) runAll() {
	s.mu.Lock()
	users := make([]string, 0, len(s.users))
	for u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	for _, userID := range users {
		digest, err := s.RunOnce(context.Background(), userID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("insights digest failed")
			continue
		}
		s.deliver(*digest)
	}
}

// RunOnce produces a digest for one user immediately. Each run uses a fresh
// throwaway session bound to the insights agent.
func (s *InsightsScheduler) RunOnce(ctx context.Context, userID string) (*Digest, error) {
	sess := core.NewSession(uuid.NewString(), userID, "proactive_insights")
	reply, err := s.router.RunTurn(ctx, sess,
		"Review my recent activity and tell me anything worth knowing.", nil)
	if err != nil {
		return nil, err
	}
	return &Digest{UserID: userID, Text: reply, GeneratedAt: time.Now()}, nil
}
