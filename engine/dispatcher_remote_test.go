package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/approval"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/remote"
)

// remoteDispatcher wires a dispatcher against a fake remote agent whose tool
// endpoint answers with the given body.
func remoteDispatcher(t *testing.T, body string) (*Dispatcher, *core.Capability) {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/agent-card.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"financial_agent","url":"%s/invoke","version":"1.0"}`, srv.URL)
	})
	mux.HandleFunc("/invoke", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	})

	cap := &core.Capability{
		Name:        "get_accounts",
		Kind:        core.KindRemoteAgent,
		Description: "fetches accounts",
		Remote:      &core.RemoteSpec{CardURL: srv.URL + "/.well-known/agent-card.json"},
	}

	registry := NewRegistry()
	require.NoError(t, registry.Register(cap))

	resolver, err := remote.NewCardResolver(nil, time.Minute)
	require.NoError(t, err)
	client := remote.NewClient(resolver, time.Second, zerolog.Nop())

	gate := approval.NewGate(time.Second, zerolog.Nop())
	return NewDispatcher(registry, plannerFunc(noPlan), gate, client, 5, zerolog.Nop()), cap
}

func TestRemoteProseBecomesFormatError(t *testing.T) {
	t.Parallel()

	d, cap := remoteDispatcher(t, "I'm sorry, I can't look that up right now.")
	sess := core.NewSession("s1", "user-001", "")

	resp := d.Dispatch(context.Background(), sess, &core.DelegationRequest{Capability: cap.Name}, nil)

	assert.Equal(t, core.StatusError, resp.Status)
	assert.Contains(t, resp.ErrorDetail, "not valid structured data")
	assert.Nil(t, resp.Payload)
}

func TestRemotePayloadWithoutUserReferenceIsFlagged(t *testing.T) {
	t.Parallel()

	d, cap := remoteDispatcher(t, `[{"Account ID": "someone-else-checking", "Amount": 10}]`)
	sess := core.NewSession("s1", "user-001", "")

	resp := d.Dispatch(context.Background(), sess, &core.DelegationRequest{Capability: cap.Name}, nil)

	require.Equal(t, core.StatusSuccess, resp.Status)
	assert.True(t, resp.IsolationWarning)
}

func TestRemotePayloadScopedToUserIsNotFlagged(t *testing.T) {
	t.Parallel()

	d, cap := remoteDispatcher(t, "Here you go:\n```json\n[{\"Account ID\": \"user-001-checking\"}]\n```")
	sess := core.NewSession("s1", "user-001", "")

	resp := d.Dispatch(context.Background(), sess, &core.DelegationRequest{Capability: cap.Name}, nil)

	require.Equal(t, core.StatusSuccess, resp.Status)
	assert.False(t, resp.IsolationWarning)
	assert.Contains(t, string(resp.Payload), "user-001-checking")
}
