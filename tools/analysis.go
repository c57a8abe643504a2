package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/aggregate"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// RecurringPayment is a merchant charged at a steady cadence and amount,
// inferred from transaction history.
type RecurringPayment struct {
	Merchant    string  `json:"merchant"`
	Amount      float64 `json:"amount"`
	Occurrences int     `json:"occurrences"`
	Category    string  `json:"category"`
}

// DetectRecurring finds merchants that appear at least minOccurrences times
// with near-identical amounts. Amounts within 1% of each other count as the
// same charge.
func DetectRecurring(txns []aggregate.Transaction, minOccurrences int) []RecurringPayment {
	if minOccurrences < 2 {
		minOccurrences = 2
	}

	type bucket struct {
		total    float64
		count    int
		category string
	}
	buckets := map[string]*bucket{}
	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		key := normalizeMerchant(t.Description)
		b, ok := buckets[key]
		if !ok {
			buckets[key] = &bucket{total: t.Amount, count: 1, category: t.Category}
			continue
		}
		mean := b.total / float64(b.count)
		if math.Abs(t.Amount-mean) > math.Abs(mean)*0.01 {
			continue
		}
		b.total += t.Amount
		b.count++
	}

	var recurring []RecurringPayment
	for merchant, b := range buckets {
		if b.count >= minOccurrences {
			recurring = append(recurring, RecurringPayment{
				Merchant:    merchant,
				Amount:      math.Abs(b.total / float64(b.count)),
				Occurrences: b.count,
				Category:    b.category,
			})
		}
	}
	sort.Slice(recurring, func(i, j int) bool { return recurring[i].Merchant < recurring[j].Merchant })
	return recurring
}

func normalizeMerchant(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}

// DuplicateCharge is a pair of transactions with the same merchant, amount,
// and date, flagged for dispute.
type DuplicateCharge struct {
	Merchant       string   `json:"merchant"`
	Amount         float64  `json:"amount"`
	Date           string   `json:"date"`
	TransactionIDs []string `json:"transaction_ids"`
}

// FindDuplicateCharges flags transactions repeated on the same day with the
// same merchant and amount.
func FindDuplicateCharges(txns []aggregate.Transaction) []DuplicateCharge {
	type key struct {
		merchant string
		amount   float64
		date     string
	}
	groups := map[key][]string{}
	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		k := key{merchant: normalizeMerchant(t.Description), amount: t.Amount, date: t.Date}
		groups[k] = append(groups[k], t.TransactionID)
	}

	var dupes []DuplicateCharge
	for k, ids := range groups {
		if len(ids) > 1 {
			sort.Strings(ids)
			dupes = append(dupes, DuplicateCharge{
				Merchant:       k.merchant,
				Amount:         math.Abs(k.amount),
				Date:           k.date,
				TransactionIDs: ids,
			})
		}
	}
	sort.Slice(dupes, func(i, j int) bool { return dupes[i].Date < dupes[j].Date })
	return dupes
}

// Affordability is the outcome of the 28/36 mortgage rule: housing costs at
// most 28% of gross monthly income, total debt payments at most 36%.
type Affordability struct {
	Affordable        bool    `json:"affordable"`
	HousingRatio      float64 `json:"housing_ratio"`
	TotalDebtRatio    float64 `json:"total_debt_ratio"`
	MaxHousingPayment float64 `json:"max_housing_payment"`
	Explanation       string  `json:"explanation"`
}

// AssessAffordability applies the 28/36 rule.
func AssessAffordability(monthlyIncome, housingPayment, otherDebtPayments float64) Affordability {
	housingRatio := housingPayment / monthlyIncome
	totalRatio := (housingPayment + otherDebtPayments) / monthlyIncome
	a := Affordability{
		HousingRatio:      round2(housingRatio),
		TotalDebtRatio:    round2(totalRatio),
		MaxHousingPayment: round2(monthlyIncome * 0.28),
	}
	a.Affordable = housingRatio <= 0.28 && totalRatio <= 0.36
	if a.Affordable {
		a.Explanation = "within the 28/36 rule: housing and total debt are inside the recommended limits"
	} else {
		a.Explanation = fmt.Sprintf(
			"outside the 28/36 rule: housing uses %.0f%% of income (limit 28%%) and total debt %.0f%% (limit 36%%)",
			housingRatio*100, totalRatio*100,
		)
	}
	return a
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AnalysisCapabilities exposes the detection and affordability helpers as
// local tools. Each takes a transactions array produced by an earlier
// get_transactions call, so agents chain a fetch with an analysis.
func AnalysisCapabilities() []*core.Capability {
	return []*core.Capability{
		{
			Name:        "detect_recurring_payments",
			Kind:        core.KindLocalTool,
			Description: "Detect recurring subscription-like payments in a list of transactions",
			InputSchema: ObjectSchema(map[string]any{"transactions": map[string]any{"type": "array", "description": "transaction records from get_transactions"}}, "transactions"),
			Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
				txns, err := transactionsArg(call.Arguments)
				if err != nil {
					return &core.ToolResult{Success: false, Error: err.Error()}, nil
				}
				return &core.ToolResult{Success: true, Data: DetectRecurring(txns, 2)}, nil
			},
		},
		{
			Name:             "find_duplicate_charges",
			Kind:             core.KindLocalTool,
			Description:      "Flag same-day duplicate charges in a list of transactions",
			InputSchema:      ObjectSchema(map[string]any{"transactions": map[string]any{"type": "array", "description": "transaction records from get_transactions"}}, "transactions"),
			EscalationTarget: "support",
			Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
				txns, err := transactionsArg(call.Arguments)
				if err != nil {
					return &core.ToolResult{Success: false, Error: err.Error()}, nil
				}
				return &core.ToolResult{Success: true, Data: FindDuplicateCharges(txns)}, nil
			},
		},
		{
			Name:        "assess_affordability",
			Kind:        core.KindLocalTool,
			Description: "Check a large purchase or mortgage payment against the 28/36 affordability rule",
			InputSchema: ObjectSchema(map[string]any{
				"monthly_income":      NumberProperty("gross monthly income"),
				"housing_payment":     NumberProperty("proposed monthly housing payment"),
				"other_debt_payments": NumberProperty("existing monthly debt payments"),
			}, "monthly_income", "housing_payment"),
			Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
				income, _ := call.Arguments["monthly_income"].(float64)
				housing, _ := call.Arguments["housing_payment"].(float64)
				other, _ := call.Arguments["other_debt_payments"].(float64)
				if income <= 0 {
					return &core.ToolResult{Success: false, Error: "monthly_income must be positive"}, nil
				}
				return &core.ToolResult{Success: true, Data: AssessAffordability(income, housing, other)}, nil
			},
		},
	}
}

func transactionsArg(args map[string]any) ([]aggregate.Transaction, error) {
	raw, err := json.Marshal(args["transactions"])
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	var txns []aggregate.Transaction
	if err := json.Unmarshal(raw, &txns); err != nil {
		return nil, fmt.Errorf("transactions must be an array of transaction records: %w", err)
	}
	return txns, nil
}
