package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// Envelope is the wire format of one remote tool invocation: the tool name,
// the requesting user, and the tool's named arguments flattened alongside.
type Envelope struct {
	ToolName  string
	UserID    string
	Arguments map[string]any
}

// MarshalJSON flattens the arguments into the top-level object next to
// tool_name and user_id.
func (e Envelope) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(e.Arguments)+2)
	for k, v := range e.Arguments {
		body[k] = v
	}
	body["tool_name"] = e.ToolName
	body["user_id"] = e.UserID
	return json.Marshal(body)
}

// Client invokes tools on remote agents. Calls are bounded by a deadline and
// routed through a circuit breaker so a failing upstream sheds load fast
// instead of stacking timed-out requests.
type Client struct {
	resolver   *CardResolver
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[json.RawMessage]
	timeout    time.Duration
	retryWait  time.Duration
	log        zerolog.Logger
}

// NewClient builds a remote client with the given per-call deadline.
func NewClient(resolver *CardResolver, timeout time.Duration, log zerolog.Logger) *Client {
	// The per-call context carries the deadline; no client-level timeout on
	// top of it.
	c := &Client{
		resolver:   resolver,
		httpClient: &http.Client{},
		timeout:    timeout,
		retryWait:  2 * time.Second,
		log:        log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "remote-agent",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return c
}

// Invoke calls a tool on the remote agent behind cardURL. Read-only calls
// that time out are retried exactly once after a short backoff; mutating
// calls are never retried automatically because the first attempt's outcome
// is unknown.
func (c *Client) Invoke(ctx context.Context, cardURL string, env Envelope, mutating bool) (json.RawMessage, error) {
	card, err := c.resolver.Resolve(ctx, cardURL)
	if err != nil {
		return nil, err
	}

	raw, err := c.post(ctx, card.URL, env)
	if err == nil {
		return raw, nil
	}

	var timeoutErr *core.UpstreamTimeoutError
	if mutating || !errors.As(err, &timeoutErr) {
		return nil, err
	}

	c.log.Warn().
		Str("tool", env.ToolName).
		Dur("backoff", c.retryWait).
		Msg("read-only remote call timed out, retrying once")

	select {
	case <-time.After(c.retryWait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.post(ctx, card.URL, env)
}

func (c *Client) post(ctx context.Context, serviceURL string, env Envelope) (json.RawMessage, error) {
	started := time.Now()

	raw, err := c.breaker.Execute(func() (json.RawMessage, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		body, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal envelope: %w", err)
		}

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, serviceURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
				return nil, &core.UpstreamTimeoutError{Capability: env.ToolName, Elapsed: time.Since(started)}
			}
			return nil, fmt.Errorf("call %s: %w", env.ToolName, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", env.ToolName, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("call %s: status %d: %s", env.ToolName, resp.StatusCode, truncate(string(payload), 256))
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
