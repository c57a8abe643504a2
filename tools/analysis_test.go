package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/aggregate"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

func txn(id, date, desc string, amount float64) aggregate.Transaction {
	return aggregate.Transaction{
		TransactionID: id,
		AccountID:     "user-001-checking",
		Amount:        amount,
		Category:      "Entertainment",
		Date:          date,
		Description:   desc,
	}
}

func TestDetectRecurring(t *testing.T) {
	t.Parallel()

	txns := []aggregate.Transaction{
		txn("t-1", "2026-06-01", "StreamFlix", -15.99),
		txn("t-2", "2026-07-01", "StreamFlix", -15.99),
		txn("t-3", "2026-08-01", "StreamFlix", -15.99),
		txn("t-4", "2026-07-12", "One-off Cafe", -8.40),
		txn("t-5", "2026-07-15", "Salary", 3200.00),
	}

	recurring := DetectRecurring(txns, 2)
	require.Len(t, recurring, 1)
	assert.Equal(t, "streamflix", recurring[0].Merchant)
	assert.Equal(t, 3, recurring[0].Occurrences)
	assert.InDelta(t, 15.99, recurring[0].Amount, 0.01)
}

func TestDetectRecurringIgnoresVaryingAmounts(t *testing.T) {
	t.Parallel()

	txns := []aggregate.Transaction{
		txn("t-1", "2026-06-03", "Grocer", -54.20),
		txn("t-2", "2026-07-05", "Grocer", -87.90),
		txn("t-3", "2026-08-02", "Grocer", -41.00),
	}
	assert.Empty(t, DetectRecurring(txns, 2))
}

func TestFindDuplicateCharges(t *testing.T) {
	t.Parallel()

	txns := []aggregate.Transaction{
		txn("t-1", "2026-08-10", "GymPass", -49.00),
		txn("t-2", "2026-08-10", "GymPass", -49.00),
		txn("t-3", "2026-08-11", "GymPass", -49.00),
	}

	dupes := FindDuplicateCharges(txns)
	require.Len(t, dupes, 1)
	assert.Equal(t, "2026-08-10", dupes[0].Date)
	assert.Equal(t, []string{"t-1", "t-2"}, dupes[0].TransactionIDs)
	assert.InDelta(t, 49.00, dupes[0].Amount, 0.001)
}

func TestAssessAffordability(t *testing.T) {
	t.Parallel()

	ok := AssessAffordability(10000, 2500, 800)
	assert.True(t, ok.Affordable)
	assert.InDelta(t, 0.25, ok.HousingRatio, 0.001)
	assert.InDelta(t, 0.33, ok.TotalDebtRatio, 0.001)
	assert.InDelta(t, 2800, ok.MaxHousingPayment, 0.001)

	tight := AssessAffordability(10000, 3200, 900)
	assert.False(t, tight.Affordable)
	assert.Contains(t, tight.Explanation, "28/36")
}

func TestAnalysisCapabilityRejectsBadTransactions(t *testing.T) {
	t.Parallel()

	var detect *core.Capability
	for _, c := range AnalysisCapabilities() {
		if c.Name == "detect_recurring_payments" {
			detect = c
		}
	}
	require.NotNil(t, detect)

	result, err := detect.Handler(context.Background(), &core.ToolCall{
		UserID:    "user-001",
		Arguments: map[string]any{"transactions": "not a list"},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
