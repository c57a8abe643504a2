package tools

import (
	"context"
	"strings"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// marketNotes is a small curated corpus standing in for a web search
// backend. Topics map to short, source-free summaries.
var marketNotes = map[string][]string{
	"index funds": {
		"Broad index funds spread risk across the whole market and carry low fees.",
		"Dollar-cost averaging into an index fund smooths out entry-price risk.",
	},
	"bonds": {
		"Bond prices move inversely to interest rates; shorter durations are less sensitive.",
		"Government bonds trade growth for stability relative to equities.",
	},
	"retirement": {
		"Tax-advantaged retirement accounts compound faster than taxable ones.",
		"A common rule of thumb targets saving 15% of gross income for retirement.",
	},
	"mortgage rates": {
		"Mortgage rates track long-term government yields plus a lender spread.",
		"Points paid upfront lower the rate; the break-even depends on how long you keep the loan.",
	},
}

// SearchCapability is a read-only market and personal-finance topic lookup
// used by the investments agent for context beyond the user's own data.
func SearchCapability() *core.Capability {
	return &core.Capability{
		Name:        "search_financial_topics",
		Kind:        core.KindLocalTool,
		Description: "Look up general market and personal-finance information on a topic",
		InputSchema: ObjectSchema(map[string]any{
			"query": StringProperty("the topic to look up"),
		}, "query"),
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			query := strings.ToLower(asString(call.Arguments["query"]))

			var notes []string
			for topic, entries := range marketNotes {
				if strings.Contains(query, topic) || strings.Contains(topic, query) {
					notes = append(notes, entries...)
				}
			}
			if len(notes) == 0 {
				notes = []string{"No curated notes on that topic; consider asking an advisor."}
			}
			return &core.ToolResult{Success: true, Data: map[string]any{
				"query": query,
				"notes": notes,
			}}, nil
		},
	}
}
