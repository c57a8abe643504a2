// Package approval implements the human-approval gate for sensitive actions.
package approval

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// State is the lifecycle of one approval request. Requested transitions to
// exactly one of the terminal states; a decision arriving after a terminal
// state is a no-op.
type State string

const (
	StateRequested State = "requested"
	StateApproved  State = "approved"
	StateDenied    State = "denied"
	StateTimedOut  State = "timed_out"
)

// Pending is one action waiting on a human decision.
type Pending struct {
	ID         string
	Capability string
	UserID     string
	Summary    string
	Arguments  map[string]any
	State      State
	ExpiresAt  time.Time

	decided chan bool
}

// Gate tracks pending approvals and blocks gated actions until a decision or
// timeout. Decisions arrive out of band via Resolve, typically from a
// websocket frame.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*Pending
	timeout time.Duration
	log     zerolog.Logger
}

// NewGate creates a gate whose requests expire after timeout.
func NewGate(timeout time.Duration, log zerolog.Logger) *Gate {
	return &Gate{
		pending: make(map[string]*Pending),
		timeout: timeout,
		log:     log,
	}
}

// Request registers a pending approval and returns it. The caller notifies
// the user (e.g. with an approval_request event) and then calls Await.
func (g *Gate) Request(capability, userID, summary string, args map[string]any) *Pending {
	p := &Pending{
		ID:         uuid.NewString(),
		Capability: capability,
		UserID:     userID,
		Summary:    summary,
		Arguments:  args,
		State:      StateRequested,
		ExpiresAt:  time.Now().Add(g.timeout),
		decided:    make(chan bool, 1),
	}

	g.mu.Lock()
	g.pending[p.ID] = p
	g.mu.Unlock()

	g.log.Info().
		Str("approval_id", p.ID).
		Str("capability", capability).
		Str("user_id", userID).
		Str("summary", summary).
		Msg("approval requested")
	return p
}

// Await blocks until the request is approved, denied, times out, or the
// context is cancelled. Denial and timeout return typed errors; the original
// arguments are preserved on the Pending so an approved action executes
// exactly what was summarized.
func (g *Gate) Await(ctx context.Context, p *Pending) error {
	timer := time.NewTimer(time.Until(p.ExpiresAt))
	defer timer.Stop()

	select {
	case approved := <-p.decided:
		if !approved {
			return &core.ApprovalDeniedError{ApprovalID: p.ID, Summary: p.Summary}
		}
		return nil
	case <-timer.C:
		g.expire(p)
		return &core.ApprovalTimeoutError{ApprovalID: p.ID, Summary: p.Summary}
	case <-ctx.Done():
		g.expire(p)
		return ctx.Err()
	}
}

// Resolve applies a human decision. Unknown ids and already-decided requests
// return false; the first decision wins.
func (g *Gate) Resolve(id string, approved bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[id]
	if !ok || p.State != StateRequested {
		return false
	}

	if approved {
		p.State = StateApproved
	} else {
		p.State = StateDenied
	}
	delete(g.pending, id)
	p.decided <- approved

	g.log.Info().
		Str("approval_id", id).
		Bool("approved", approved).
		Msg("approval resolved")
	return true
}

// Lookup returns a pending request by id.
func (g *Gate) Lookup(id string) (*Pending, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[id]
	return p, ok
}

func (g *Gate) expire(p *Pending) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.State == StateRequested {
		p.State = StateTimedOut
		delete(g.pending, p.ID)
		g.log.Warn().Str("approval_id", p.ID).Msg("approval timed out")
	}
}

// RenderSummary fills a capability's summary template with the action's
// arguments, e.g. "Cancel the {{.merchant}} subscription".
func RenderSummary(tmpl string, args map[string]any) (string, error) {
	t, err := template.New("summary").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse summary template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return buf.String(), nil
}
