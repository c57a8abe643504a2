// Package agents defines the assistant's agent tree: the root router, the
// specialist sub-agents, and the remote financial-data capabilities.
package agents

import (
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/tools"
)

// FinancialCapabilities declares the tool surface of the remote
// financial-data agent published at cardURL. All of them are read-only
// queries scoped to the requesting user.
func FinancialCapabilities(cardURL string) []*core.Capability {
	remote := &core.RemoteSpec{CardURL: cardURL}

	query := func(name, description string, schema map[string]any) *core.Capability {
		return &core.Capability{
			Name:        name,
			Kind:        core.KindRemoteAgent,
			Description: description,
			InputSchema: schema,
			Remote:      remote,
		}
	}

	dateRange := tools.ObjectSchema(map[string]any{
		"start_date": tools.StringProperty("inclusive range start, YYYY-MM-DD"),
		"end_date":   tools.StringProperty("inclusive range end, YYYY-MM-DD"),
	})
	empty := tools.ObjectSchema(map[string]any{})

	return []*core.Capability{
		query("get_transactions", "Fetch the user's transactions, optionally within a date range", dateRange),
		query("get_financial_summary", "Fetch the user's overall financial summary", empty),
		query("get_net_worth", "Fetch the user's net worth breakdown", empty),
		query("get_cash_flow", "Fetch the user's monthly cash flow", empty),
		query("get_goals", "Fetch the user's savings goals", empty),
		query("get_accounts", "Fetch the user's accounts and balances", empty),
		query("get_debts", "Fetch the user's outstanding debts", empty),
		query("get_partners", "Fetch partner merchants with member offers", empty),
		query("get_spending_by_category", "Fetch the user's spending grouped by category", dateRange),
	}
}
