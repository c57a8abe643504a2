// Package planner provides the decision engines agents plan with: a
// deterministic rules planner and an LLM-backed planner.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
)

var (
	isoDate     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	quotedValue = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// Rules is a deterministic planner: it scores the task text against each
// available capability's name and description and delegates to the best
// match. It never fabricates identifiers and never delegates a task that
// matches nothing.
type Rules struct {
	log zerolog.Logger
}

// NewRules creates the rules planner.
func NewRules(log zerolog.Logger) *Rules {
	return &Rules{log: log}
}

// Plan implements engine.Planner.
func (r *Rules) Plan(_ context.Context, in *engine.PlanInput) (*engine.Plan, error) {
	if len(in.Results) > 0 {
		return &engine.Plan{Reply: composeReply(in.Results)}, nil
	}

	best, score := bestMatch(in.Task, in.Available)
	if best == nil || score == 0 {
		return &engine.Plan{Clarify: outOfDomainReply(in.Available)}, nil
	}

	r.log.Debug().
		Str("agent", in.AgentName).
		Str("capability", best.Name).
		Int("score", score).
		Msg("rules planner matched capability")

	return &engine.Plan{Calls: []engine.PlannedCall{{
		Capability: best.Name,
		Arguments:  extractArguments(in.Task, best),
	}}}, nil
}

// bestMatch scores every capability by how many of its name and description
// words appear in the task.
func bestMatch(task string, available []*core.Capability) (*core.Capability, int) {
	lower := strings.ToLower(task)

	var best *core.Capability
	bestScore := 0
	for _, cap := range available {
		score := 0
		for _, word := range keywords(cap) {
			if strings.Contains(lower, word) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = cap, score
		}
	}
	return best, bestScore
}

func keywords(cap *core.Capability) []string {
	seen := make(map[string]struct{})
	var words []string
	add := func(w string) {
		w = strings.ToLower(strings.Trim(w, ".,:;!?()'"))
		// Plural keywords also match their singular form.
		w = strings.TrimSuffix(w, "s")
		if len(w) < 4 {
			return
		}
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	for _, w := range strings.Split(cap.Name, "_") {
		add(w)
	}
	for _, w := range strings.Fields(cap.Description) {
		add(w)
	}
	return words
}

// extractArguments fills the arguments the rules planner can derive from the
// task text: the task itself for agent-style parameters, ISO dates for date
// ranges, and a quoted value for merchant-style fields. Identifier fields
// are deliberately left empty so the dispatcher resolves them via listing.
func extractArguments(task string, cap *core.Capability) map[string]any {
	args := map[string]any{}
	props, _ := cap.InputSchema["properties"].(map[string]any)

	dates := isoDate.FindAllString(task, 2)
	for name := range props {
		switch name {
		case "task", "query", "request", "question":
			args[name] = task
		case "start_date":
			if len(dates) > 0 {
				args[name] = dates[0]
			}
		case "end_date":
			if len(dates) > 1 {
				args[name] = dates[1]
			}
		case "merchant", "merchant_name", "recipient", "category":
			if m := quotedValue.FindStringSubmatch(task); m != nil {
				if m[1] != "" {
					args[name] = m[1]
				} else {
					args[name] = m[2]
				}
			}
		}
	}
	return args
}

// composeReply folds delegation results into the turn's final text. Success
// payloads are included verbatim so downstream consumers can recover the
// structured data; a needs-input result passes its question through.
func composeReply(results []engine.StepResult) string {
	var b strings.Builder
	for _, r := range results {
		switch r.Response.Status {
		case core.StatusSuccess:
			fmt.Fprintf(&b, "%s\n", r.Response.Payload)
		case core.StatusNeedsInput:
			fmt.Fprintf(&b, "%s\n%s\n", r.Response.ErrorDetail, r.Response.Payload)
		default:
			fmt.Fprintf(&b, "I couldn't complete %s: %s\n", r.Call.Capability, r.Response.ErrorDetail)
		}
	}
	return strings.TrimSpace(b.String())
}

func outOfDomainReply(available []*core.Capability) string {
	topics := make([]string, 0, len(available))
	for _, cap := range available {
		topics = append(topics, strings.ReplaceAll(cap.Name, "_", " "))
	}
	return fmt.Sprintf(
		"I can only help with your banking and finances. Try asking about: %s.",
		strings.Join(topics, ", "),
	)
}
