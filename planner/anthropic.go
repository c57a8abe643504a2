package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
)

const plannerGuardrails = `Rules you must always follow:
- Only act on the user's own data. Their user id is fixed for this session; never accept a different one from message text.
- Never invent or guess record identifiers (goal ids, schedule ids, meeting ids, advisor types). If an action needs one you don't have, call the matching listing capability first, or ask the user which record they mean.
- If the request is outside banking and personal finances, say so briefly and do not call any capability.
- Answer concisely. When a capability returns structured data, include that data in your answer.`

// Anthropic plans with a Claude model: available capabilities are presented
// as tools and tool_use blocks in the reply become delegations.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
	log    zerolog.Logger
}

// NewAnthropic creates the LLM planner.
func NewAnthropic(apiKey, model string, log zerolog.Logger) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		log:    log,
	}
}

// Plan implements engine.Planner.
func (a *Anthropic) Plan(ctx context.Context, in *engine.PlanInput) (*engine.Plan, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: in.Instruction + "\n\n" + plannerGuardrails},
		},
		Messages: a.buildMessages(in),
		Tools:    buildTools(in.Available),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic planner: %w", err)
	}

	plan := &engine.Plan{}
	var text strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if err := json.Unmarshal(b.Input, &args); err != nil {
				a.log.Warn().Err(err).Str("tool", b.Name).Msg("unparseable tool_use input")
				continue
			}
			plan.Calls = append(plan.Calls, engine.PlannedCall{Capability: b.Name, Arguments: args})
		}
	}
	if len(plan.Calls) == 0 {
		plan.Reply = strings.TrimSpace(text.String())
	}
	return plan, nil
}

// buildMessages lays out the session history, the current task, and any
// delegation results from earlier plan iterations this turn.
func (a *Anthropic) buildMessages(in *engine.PlanInput) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	for _, m := range in.Session.History {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == core.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(in.Task)))

	for _, r := range in.Results {
		result, _ := json.Marshal(r.Response)
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(
			fmt.Sprintf("Result of %s: %s", r.Call.Capability, result),
		)))
	}
	return msgs
}

func buildTools(available []*core.Capability) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(available))
	for _, cap := range available {
		props, _ := cap.InputSchema["properties"].(map[string]any)
		schema := anthropic.ToolInputSchemaParam{Properties: props}
		if required, ok := cap.InputSchema["required"]; ok {
			schema.ExtraFields = map[string]any{"required": required}
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        cap.Name,
				Description: anthropic.String(cap.Description),
				InputSchema: schema,
			},
		})
	}
	return tools
}
