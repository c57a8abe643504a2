package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/aggregate"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/approval"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/remote"
)

// maxPlanIterations bounds one agent's plan/delegate loop within a turn.
const maxPlanIterations = 8

// Dispatcher routes delegation requests to their capability's executor:
// in-process handlers, nested sub-agents, or remote agents. It owns the
// cross-cutting checks every delegation passes through, in order: depth
// bound, argument validation, identifier resolution, and the approval gate.
type Dispatcher struct {
	registry *Registry
	planner  Planner
	gate     *approval.Gate
	remote   *remote.Client
	maxDepth int
	log      zerolog.Logger
}

// NewDispatcher wires a dispatcher. maxDepth caps agent-as-tool nesting;
// zero or negative selects the default of 5.
func NewDispatcher(registry *Registry, planner Planner, gate *approval.Gate, rc *remote.Client, maxDepth int, log zerolog.Logger) *Dispatcher {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return &Dispatcher{
		registry: registry,
		planner:  planner,
		gate:     gate,
		remote:   rc,
		maxDepth: maxDepth,
		log:      log,
	}
}

// Dispatch executes one delegation and always returns a structured response;
// failures become error responses, never panics or free text.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *core.Session, req *core.DelegationRequest, emit core.Emitter) *core.DelegationResponse {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	log := d.log.With().
		Str("request_id", req.ID).
		Str("capability", req.Capability).
		Str("caller", req.CallerID).
		Str("user_id", sess.UserID).
		Int("depth", req.Depth).
		Logger()

	if req.Depth > d.maxDepth {
		err := &core.DepthExceededError{Capability: req.Capability, Depth: req.Depth, Max: d.maxDepth}
		log.Error().Err(err).Msg("delegation rejected")
		return core.ErrorResponse(err)
	}

	cap, err := d.registry.Resolve(req.Capability)
	if err != nil {
		log.Error().Err(err).Msg("delegation rejected")
		return core.ErrorResponse(err)
	}

	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	if resp := d.resolveRequiredRef(ctx, sess, cap, req, emit, log); resp != nil {
		return resp
	}

	if err := d.registry.ValidateArguments(cap.Name, req.Arguments); err != nil {
		log.Warn().Err(err).Msg("argument validation failed")
		return core.ErrorResponse(err)
	}

	if cap.Sensitive {
		if resp := d.awaitApproval(ctx, sess, cap, req, emit, log); resp != nil {
			return resp
		}
	}

	started := time.Now()
	resp := d.execute(ctx, sess, cap, req, emit)
	if resp.Status == core.StatusSuccess && cap.Mutating && cap.RequiredRef != "" {
		// The record behind the carried identifier is gone once the
		// mutation lands; the next request must go back through the lister.
		sess.Forget(cap.RequiredRef)
	}
	log.Info().
		Str("status", string(resp.Status)).
		Dur("elapsed", time.Since(started)).
		Msg("delegation completed")
	return resp
}

// resolveRequiredRef enforces the no-fabricated-identifier rule. When a
// capability needs a record identifier the arguments don't carry, the
// dispatcher first tries the session's carried references, then runs the
// capability's read-only lister. A single listed candidate is adopted;
// anything else turns into a clarification carrying the listing, and the
// mutating call is never issued with a guessed id.
func (d *Dispatcher) resolveRequiredRef(ctx context.Context, sess *core.Session, cap *core.Capability, req *core.DelegationRequest, emit core.Emitter, log zerolog.Logger) *core.DelegationResponse {
	if cap.RequiredRef == "" {
		return nil
	}
	if v, ok := req.Arguments[cap.RequiredRef]; ok && v != nil && v != "" {
		return nil
	}
	if v, ok := sess.Recall(cap.RequiredRef); ok {
		req.Arguments[cap.RequiredRef] = v
		return nil
	}
	if cap.Lister == "" {
		return core.ErrorResponse(&core.ValidationError{Capability: cap.Name, Missing: []string{cap.RequiredRef}})
	}

	log.Info().Str("lister", cap.Lister).Str("ref", cap.RequiredRef).Msg("resolving missing identifier via listing")

	listResp := d.Dispatch(ctx, sess, &core.DelegationRequest{
		Capability: cap.Lister,
		Arguments:  map[string]any{},
		CallerID:   cap.Name,
		Depth:      req.Depth,
	}, emit)
	if listResp.Status != core.StatusSuccess {
		return listResp
	}

	id, ok := soleIdentifier(listResp.Payload, cap.RequiredRef)
	if !ok {
		return &core.DelegationResponse{
			Status:      core.StatusNeedsInput,
			Payload:     listResp.Payload,
			ErrorDetail: fmt.Sprintf("which %s did you mean? here are the current records", strings.ReplaceAll(cap.RequiredRef, "_", " ")),
		}
	}

	sess.Remember(cap.RequiredRef, id)
	req.Arguments[cap.RequiredRef] = id
	return nil
}

// soleIdentifier extracts the identifier from a listing payload when it
// contains exactly one record.
func soleIdentifier(payload json.RawMessage, ref string) (string, bool) {
	var records []map[string]any
	if err := json.Unmarshal(payload, &records); err != nil {
		var wrapper map[string]any
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return "", false
		}
		for _, v := range wrapper {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					if rec, ok := item.(map[string]any); ok {
						records = append(records, rec)
					}
				}
				break
			}
		}
	}
	if len(records) != 1 {
		return "", false
	}
	for _, key := range []string{ref, "id"} {
		if v, ok := records[0][key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// awaitApproval blocks a sensitive delegation on a human decision. A nil
// return means approved; otherwise the returned response ends the
// delegation.
func (d *Dispatcher) awaitApproval(ctx context.Context, sess *core.Session, cap *core.Capability, req *core.DelegationRequest, emit core.Emitter, log zerolog.Logger) *core.DelegationResponse {
	summary := cap.Description
	if cap.SummaryTemplate != "" {
		rendered, err := approval.RenderSummary(cap.SummaryTemplate, req.Arguments)
		if err != nil {
			log.Warn().Err(err).Msg("summary template failed, falling back to description")
		} else {
			summary = rendered
		}
	}

	pending := d.gate.Request(cap.Name, sess.UserID, summary, req.Arguments)
	if emit != nil {
		emit(core.Event{
			Type:       core.EventApprovalRequest,
			ApprovalID: pending.ID,
			Summary:    summary,
			ExpiresAt:  pending.ExpiresAt.Unix(),
		})
	}

	if err := d.gate.Await(ctx, pending); err != nil {
		log.Warn().Err(err).Msg("sensitive action not executed")
		resp := core.ErrorResponse(err)
		resp.ApprovalID = pending.ID
		return resp
	}
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, sess *core.Session, cap *core.Capability, req *core.DelegationRequest, emit core.Emitter) *core.DelegationResponse {
	switch cap.Kind {
	case core.KindLocalTool:
		return d.executeLocal(ctx, sess, cap, req)
	case core.KindSubAgent:
		return d.executeSubAgent(ctx, sess, cap, req, emit)
	case core.KindRemoteAgent:
		return d.executeRemote(ctx, sess, cap, req)
	default:
		return core.ErrorResponse(fmt.Errorf("capability %s has unknown kind %q", cap.Name, cap.Kind))
	}
}

func (d *Dispatcher) executeLocal(ctx context.Context, sess *core.Session, cap *core.Capability, req *core.DelegationRequest) *core.DelegationResponse {
	result, err := cap.Handler(ctx, &core.ToolCall{
		UserID:    sess.UserID,
		RequestID: req.ID,
		Arguments: req.Arguments,
	})
	if err != nil {
		return core.ErrorResponse(fmt.Errorf("tool %s: %w", cap.Name, err))
	}
	if !result.Success {
		return &core.DelegationResponse{Status: core.StatusError, ErrorDetail: result.Error}
	}
	return core.SuccessResponse(result.Data)
}

// executeSubAgent runs a nested plan/delegate cycle for an agent invoked as
// a tool. The session and user identity pass through unchanged; only the
// depth grows.
func (d *Dispatcher) executeSubAgent(ctx context.Context, sess *core.Session, cap *core.Capability, req *core.DelegationRequest, emit core.Emitter) *core.DelegationResponse {
	task := taskText(req.Arguments)
	if cap.Agent.TaskFormatter != nil {
		task = cap.Agent.TaskFormatter(task)
	}

	reply, err := d.RunAgent(ctx, sess, cap, task, req.Depth+1, emit)
	if err != nil {
		return core.ErrorResponse(err)
	}
	return core.SuccessResponse(map[string]any{"agent": cap.Name, "result": reply})
}

func taskText(args map[string]any) string {
	for _, key := range []string{"task", "query", "request", "question"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	raw, _ := json.Marshal(args)
	return string(raw)
}

func (d *Dispatcher) executeRemote(ctx context.Context, sess *core.Session, cap *core.Capability, req *core.DelegationRequest) *core.DelegationResponse {
	raw, err := d.remote.Invoke(ctx, cap.Remote.CardURL, remote.Envelope{
		ToolName:  cap.Name,
		UserID:    sess.UserID,
		Arguments: req.Arguments,
	}, cap.Mutating)
	if err != nil {
		return core.ErrorResponse(err)
	}

	payload, ok := aggregate.Recover(string(raw))
	if !ok {
		return core.ErrorResponse(&core.UpstreamFormatError{Capability: cap.Name, Raw: string(raw)})
	}

	resp := &core.DelegationResponse{Status: core.StatusSuccess, Payload: payload}
	if warn := aggregate.VerifyUserScope(cap.Name, sess.UserID, payload); warn != nil {
		d.log.Warn().
			Str("capability", cap.Name).
			Str("user_id", sess.UserID).
			Msg("response carries no reference to requesting user")
		resp.IsolationWarning = true
	}
	return resp
}

// RunAgent executes one agent's full plan/delegate loop: ask the planner
// what to do, dispatch its calls, feed results back, and repeat until the
// planner produces a reply or clarification.
func (d *Dispatcher) RunAgent(ctx context.Context, sess *core.Session, agent *core.Capability, task string, depth int, emit core.Emitter) (string, error) {
	if depth > d.maxDepth {
		return "", &core.DepthExceededError{Capability: agent.Name, Depth: depth, Max: d.maxDepth}
	}

	in := &PlanInput{
		Session:     sess,
		AgentName:   agent.Name,
		Instruction: agent.Agent.Instruction,
		Task:        task,
		Available:   d.registry.Capabilities(agent.Agent.Capabilities),
	}

	for i := 0; i < maxPlanIterations; i++ {
		plan, err := d.planner.Plan(ctx, in)
		if err != nil {
			return "", fmt.Errorf("agent %s: plan: %w", agent.Name, err)
		}

		if len(plan.Calls) == 0 {
			if plan.Clarify != "" {
				return plan.Clarify, nil
			}
			return plan.Reply, nil
		}

		for _, call := range plan.Calls {
			resp := d.Dispatch(ctx, sess, &core.DelegationRequest{
				Capability: call.Capability,
				Arguments:  call.Arguments,
				CallerID:   agent.Name,
				Depth:      depth,
			}, emit)
			in.Results = append(in.Results, StepResult{Call: call, Response: resp})
		}
	}
	return "", fmt.Errorf("agent %s: no reply after %d plan iterations", agent.Name, maxPlanIterations)
}
