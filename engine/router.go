package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// Router is the top-level entry for a user turn. It selects the session's
// active agent, runs its plan loop, and records the turn in the session
// history. Everything the user sees comes back through here.
type Router struct {
	registry   *Registry
	dispatcher *Dispatcher
	rootAgent  string
	log        zerolog.Logger
}

// NewRouter creates a router whose default entry point is rootAgent.
func NewRouter(registry *Registry, dispatcher *Dispatcher, rootAgent string, log zerolog.Logger) *Router {
	return &Router{
		registry:   registry,
		dispatcher: dispatcher,
		rootAgent:  rootAgent,
		log:        log,
	}
}

// RunTurn processes one user utterance and returns the assistant's reply.
// The session's active agent handles the turn; sessions opened without an
// explicit agent go through the root router agent, which delegates by
// capability description.
func (r *Router) RunTurn(ctx context.Context, sess *core.Session, text string, emit core.Emitter) (string, error) {
	agentName := sess.ActiveAgent
	if agentName == "" {
		agentName = r.rootAgent
	}

	agent, err := r.registry.Resolve(agentName)
	if err != nil {
		return "", err
	}
	if agent.Kind != core.KindSubAgent || agent.Agent == nil {
		return "", fmt.Errorf("capability %s cannot serve as a session agent", agentName)
	}

	sess.Append(core.NewUserMessage(text))

	r.log.Info().
		Str("session_id", sess.ID).
		Str("user_id", sess.UserID).
		Str("agent", agentName).
		Int("turn", sess.TurnCount).
		Msg("turn started")

	reply, err := r.dispatcher.RunAgent(ctx, sess, agent, text, 0, emit)
	if err != nil {
		return "", err
	}

	sess.Append(core.NewAssistantMessage(reply))
	return reply, nil
}
