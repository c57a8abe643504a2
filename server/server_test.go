package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/approval"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/store"
)

type plannerFunc func(ctx context.Context, in *engine.PlanInput) (*engine.Plan, error)

func (f plannerFunc) Plan(ctx context.Context, in *engine.PlanInput) (*engine.Plan, error) {
	return f(ctx, in)
}

// newGateway spins up a gateway over the given capabilities and planner,
// with a root agent that can reach all of them.
func newGateway(t *testing.T, planner engine.Planner, caps ...*core.Capability) *httptest.Server {
	t.Helper()

	registry := engine.NewRegistry()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		require.NoError(t, registry.Register(c))
		names = append(names, c.Name)
	}
	require.NoError(t, registry.Register(&core.Capability{
		Name: "router", Kind: core.KindSubAgent, Description: "test root",
		Agent: &core.AgentSpec{Instruction: "route", Capabilities: names},
	}))
	require.NoError(t, registry.Register(&core.Capability{
		Name: "transaction_history", Kind: core.KindSubAgent, Description: "history",
		Agent: &core.AgentSpec{Instruction: "history", Capabilities: names},
	}))

	gate := approval.NewGate(2*time.Second, zerolog.Nop())
	dispatcher := engine.NewDispatcher(registry, planner, gate, nil, 5, zerolog.Nop())
	router := engine.NewRouter(registry, dispatcher, "router", zerolog.Nop())

	gateway := New(router, gate, store.NewConversations(), 5*time.Second, zerolog.Nop())
	srv := httptest.NewServer(gateway.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendText(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	data, _ := json.Marshal(text)
	require.NoError(t, ws.WriteJSON(ClientFrame{MimeType: MimeText, Data: data}))
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame map[string]any
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestWebsocketTurnRoundTrip(t *testing.T) {
	t.Parallel()

	planner := plannerFunc(func(_ context.Context, in *engine.PlanInput) (*engine.Plan, error) {
		return &engine.Plan{Reply: "you said: " + in.Task}, nil
	})
	srv := newGateway(t, planner)

	ws := dial(t, srv, "/ws/user-001")
	sendText(t, ws, "hello")

	text := readFrame(t, ws)
	assert.Equal(t, MimeText, text["mime_type"])
	assert.Equal(t, "you said: hello", text["data"])

	transcript := readFrame(t, ws)
	assert.Equal(t, MimeJSON, transcript["mime_type"])
	assert.Equal(t, "you said: hello", transcript["data"].(map[string]any)["transcript"])

	done := readFrame(t, ws)
	assert.Equal(t, true, done["turn_complete"])
}

func TestWebsocketApprovalFlow(t *testing.T) {
	t.Parallel()

	gift := &core.Capability{
		Name: "send_gift", Kind: core.KindLocalTool, Description: "sends a gift card",
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Send a gift card",
		Handler: func(_ context.Context, _ *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: map[string]any{"sent": true}}, nil
		},
	}
	planner := plannerFunc(func(_ context.Context, in *engine.PlanInput) (*engine.Plan, error) {
		if len(in.Results) > 0 {
			return &engine.Plan{Reply: "gift result: " + string(in.Results[0].Response.Payload)}, nil
		}
		return &engine.Plan{Calls: []engine.PlannedCall{{Capability: "send_gift"}}}, nil
	})
	srv := newGateway(t, planner, gift)

	ws := dial(t, srv, "/ws/user-001")
	sendText(t, ws, "send a gift")

	request := readFrame(t, ws)
	require.Equal(t, MimeJSON, request["mime_type"])
	body := request["data"].(map[string]any)
	assert.Equal(t, "approval_request", body["type"])
	approvalID := body["approval_id"].(string)
	require.NotEmpty(t, approvalID)
	assert.Equal(t, "Send a gift card", body["summary"])

	decision, _ := json.Marshal(ApprovalDecision{ApprovalID: approvalID, Approved: true})
	require.NoError(t, ws.WriteJSON(ClientFrame{MimeType: MimeJSON, Data: decision}))

	text := readFrame(t, ws)
	assert.Equal(t, MimeText, text["mime_type"])
	assert.Contains(t, text["data"], "sent")

	readFrame(t, ws) // transcript
	done := readFrame(t, ws)
	assert.Equal(t, true, done["turn_complete"])
}

func TestWebsocketDeniedApproval(t *testing.T) {
	t.Parallel()

	gift := &core.Capability{
		Name: "send_gift", Kind: core.KindLocalTool, Description: "sends a gift card",
		Mutating:  true,
		Sensitive: true,
		Handler: func(_ context.Context, _ *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: map[string]any{"sent": true}}, nil
		},
	}
	planner := plannerFunc(func(_ context.Context, in *engine.PlanInput) (*engine.Plan, error) {
		if len(in.Results) > 0 {
			return &engine.Plan{Reply: in.Results[0].Response.ErrorDetail}, nil
		}
		return &engine.Plan{Calls: []engine.PlannedCall{{Capability: "send_gift"}}}, nil
	})
	srv := newGateway(t, planner, gift)

	ws := dial(t, srv, "/ws/user-001")
	sendText(t, ws, "send a gift")

	request := readFrame(t, ws)
	approvalID := request["data"].(map[string]any)["approval_id"].(string)

	decision, _ := json.Marshal(ApprovalDecision{ApprovalID: approvalID, Approved: false})
	require.NoError(t, ws.WriteJSON(ClientFrame{MimeType: MimeJSON, Data: decision}))

	text := readFrame(t, ws)
	assert.Contains(t, text["data"], "not approved")
}

func TestWebsocketRejectsUnknownAgent(t *testing.T) {
	t.Parallel()

	srv := newGateway(t, plannerFunc(func(_ context.Context, _ *engine.PlanInput) (*engine.Plan, error) {
		return &engine.Plan{Reply: "ok"}, nil
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/user-001?agent_id=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransactionHistoryEndpoint(t *testing.T) {
	t.Parallel()

	fetch := &core.Capability{
		Name: "fetch_history", Kind: core.KindLocalTool, Description: "fetches history",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: []map[string]any{{
				"Transaction ID": "t-1",
				"Account ID":     call.UserID + "-checking",
				"Amount":         -15.99,
				"Category":       "Entertainment",
				"Date":           "2026-08-01",
				"Description":    "StreamFlix",
			}}}, nil
		},
	}
	planner := plannerFunc(func(_ context.Context, in *engine.PlanInput) (*engine.Plan, error) {
		if len(in.Results) > 0 {
			return &engine.Plan{Reply: "Here you go:\n```json\n" + string(in.Results[0].Response.Payload) + "\n```"}, nil
		}
		return &engine.Plan{Calls: []engine.PlannedCall{{Capability: "fetch_history"}}}, nil
	})
	srv := newGateway(t, planner, fetch)

	resp, err := http.Get(srv.URL + "/api/transaction-history/user-001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var txns []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&txns))
	require.Len(t, txns, 1)
	assert.Equal(t, "t-1", txns[0]["Transaction ID"])
	assert.Empty(t, resp.Header.Get("X-Data-Isolation-Warning"))
}

func TestTransactionHistoryParseFailure(t *testing.T) {
	t.Parallel()

	planner := plannerFunc(func(_ context.Context, _ *engine.PlanInput) (*engine.Plan, error) {
		return &engine.Plan{Reply: "Sorry, I could not retrieve your transactions right now."}, nil
	})
	srv := newGateway(t, planner)

	resp, err := http.Get(srv.URL + "/api/transaction-history/user-001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "error")
	assert.Contains(t, body["raw_response"], "Sorry")
	assert.NotZero(t, body["response_length"])
	assert.NotZero(t, body["chunks_received"])
}

func TestTransactionHistoryTurnErrorDiagnostics(t *testing.T) {
	t.Parallel()

	planner := plannerFunc(func(_ context.Context, _ *engine.PlanInput) (*engine.Plan, error) {
		return nil, context.DeadlineExceeded
	})
	srv := newGateway(t, planner)

	resp, err := http.Get(srv.URL + "/api/transaction-history/user-001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "error")
	// Even when the turn itself fails, the diagnostic chunk count floors at 1.
	assert.Equal(t, float64(1), body["chunks_received"])
}

func TestTransactionHistoryFlagsForeignData(t *testing.T) {
	t.Parallel()

	fetch := &core.Capability{
		Name: "fetch_history", Kind: core.KindLocalTool, Description: "fetches history",
		Handler: func(_ context.Context, _ *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: []map[string]any{{
				"Transaction ID": "t-9",
				"Account ID":     "someone-else-checking",
			}}}, nil
		},
	}
	planner := plannerFunc(func(_ context.Context, in *engine.PlanInput) (*engine.Plan, error) {
		if len(in.Results) > 0 {
			return &engine.Plan{Reply: string(in.Results[0].Response.Payload)}, nil
		}
		return &engine.Plan{Calls: []engine.PlannedCall{{Capability: "fetch_history"}}}, nil
	})
	srv := newGateway(t, planner, fetch)

	resp, err := http.Get(srv.URL + "/api/transaction-history/user-001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Data-Isolation-Warning"))
}
