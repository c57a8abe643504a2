package agents

import (
	"fmt"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/tools"
)

// RootAgentName is the default session entry point.
const RootAgentName = "router"

// SessionAgents are the capability names a client may select with the
// agent_id connection parameter.
var SessionAgents = map[string]bool{
	RootAgentName:         true,
	"daily_spendings":     true,
	"investments":         true,
	"financial":           true,
	"transaction_history": true,
}

func agent(name, description, instruction string, capabilities ...string) *core.Capability {
	return &core.Capability{
		Name:        name,
		Kind:        core.KindSubAgent,
		Description: description,
		InputSchema: tools.ObjectSchema(map[string]any{
			"task": tools.StringProperty("the task to perform, in the user's words"),
		}, "task"),
		Agent: &core.AgentSpec{Instruction: instruction, Capabilities: capabilities},
	}
}

// Register builds the whole agent tree and every capability it uses into the
// registry, then verifies the references resolve.
func Register(registry *engine.Registry, bank *tools.Bank, financialCardURL string) error {
	var caps []*core.Capability
	caps = append(caps, bank.Capabilities()...)
	caps = append(caps, tools.AnalysisCapabilities()...)
	caps = append(caps, tools.SearchCapability())
	caps = append(caps, FinancialCapabilities(financialCardURL)...)

	caps = append(caps,
		agent("subscriptions",
			"Review recurring subscriptions, find which can be cancelled, and cancel them on request",
			"You manage the user's recurring subscriptions. List them before acting. Cancellation needs the subscription id from the listing and always goes through user confirmation.",
			"list_subscriptions", "cancel_subscription", "get_transactions", "detect_recurring_payments"),

		agent("discounts",
			"Find cheaper alternatives and promotions for merchants the user pays regularly",
			"You find savings on the user's regular spending. Use the discount finder per merchant and summarize the best offers.",
			"find_discounts", "list_subscriptions"),

		agent("duplicate_charges",
			"Detect duplicate charges in recent transactions and help dispute them",
			"You look for same-day duplicate charges. Fetch transactions first, run duplicate detection on them, and offer to escalate confirmed duplicates to support.",
			"get_transactions", "find_duplicate_charges", "support"),

		agent("daily_spendings",
			"Analyze everyday spending: category breakdowns, subscriptions, discounts, and duplicate charges",
			"You analyze the user's day-to-day spending. Delegate subscription questions, discount hunting, and duplicate-charge checks to the matching specialist; answer category and total questions from the spending data.",
			"get_transactions", "get_spending_by_category", "subscriptions", "discounts", "duplicate_charges"),

		agent("investments",
			"Answer questions about investments, net worth, and savings goals",
			"You cover the user's investments and savings. Use the financial summary, net worth, and goals data; look up general market topics when the question goes beyond their own accounts. Never invent goal ids; the goals listing is the only source of them.",
			"get_financial_summary", "get_net_worth", "get_goals", "search_financial_topics"),

		agent("transaction_history",
			"Retrieve and summarize the user's transaction history",
			"You fetch transaction history. Pass through any date range the user gives. Return the transaction records as structured data.",
			"get_transactions"),

		agent("big_spendings",
			"Advise on large purchases using the 28/36 affordability rule and book advisor appointments",
			"You advise on large purchases and mortgages. Assess affordability with the 28/36 rule using income and debt data. Offer an advisor appointment when the numbers are tight; advisor types come from the listing, never from guesswork.",
			"assess_affordability", "get_debts", "get_financial_summary", "list_advisors", "schedule_appointment", "list_meetings", "cancel_meeting"),

		agent("support",
			"Handle support requests: disputes, complaints, and emails to the bank",
			"You handle support matters. Draft and send emails on the user's behalf, e.g. duplicate-charge disputes. Email sending always goes through user confirmation.",
			"send_email"),

		agent("cash_flow",
			"Optimize cash flow: move money between accounts and manage scheduled transfers",
			"You optimize the user's cash flow. Use accounts and cash-flow data to recommend moves. Transfers and schedule changes always go through user confirmation, and cancelling a schedule needs its id from the listing.",
			"get_cash_flow", "get_accounts", "transfer_to_account", "schedule_transfer", "list_scheduled_transfers", "cancel_scheduled_transfer"),

		agent("proactive_insights",
			"Produce an unprompted digest of notable findings: new recurring charges, duplicates, goal progress",
			"You produce a short digest of things worth the user's attention. Fetch recent transactions, detect recurring payments and duplicates, check goal progress, and report only what is notable.",
			"get_transactions", "detect_recurring_payments", "find_duplicate_charges", "get_goals"),

		agent("financial",
			"Direct access to the user's financial data: accounts, debts, partners, summaries",
			"You answer data questions directly from the financial records. Return structured data; do not editorialize.",
			"get_transactions", "get_financial_summary", "get_net_worth", "get_cash_flow",
			"get_goals", "get_accounts", "get_debts", "get_partners", "get_spending_by_category"),

		agent(RootAgentName,
			"Route each banking request to the specialist that handles it",
			"You are a personal banking assistant. Route each request to the one specialist that covers it: daily_spendings for everyday spending, investments for portfolios and goals, transaction_history for record lookups, big_spendings for large purchases, support for disputes and emails, cash_flow for transfers, proactive_insights for digests, financial for raw data. Decline anything outside banking and personal finances without delegating.",
			"daily_spendings", "investments", "transaction_history", "big_spendings",
			"support", "cash_flow", "proactive_insights", "financial"),
	)

	if err := registry.RegisterAll(caps...); err != nil {
		return fmt.Errorf("register agent tree: %w", err)
	}
	if err := registry.Verify(); err != nil {
		return fmt.Errorf("verify agent tree: %w", err)
	}
	return nil
}
