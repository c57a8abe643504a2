// Package aggregate normalizes upstream agent output into structured
// responses: it recovers JSON embedded in prose, extracts transaction lists,
// and checks that results reference the requesting user.
package aggregate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	// Lazy first so surrounding prose is not swallowed, greedy as fallback
	// for nested structures.
	bareArrayLazy    = regexp.MustCompile(`(?s)\[.*?\]`)
	bareArrayGreedy  = regexp.MustCompile(`(?s)\[.*\]`)
	bareObjectLazy   = regexp.MustCompile(`(?s)\{.*?\}`)
	bareObjectGreedy = regexp.MustCompile(`(?s)\{.*\}`)
)

// Recover extracts the first valid JSON value embedded in text. Upstream
// agents wrap payloads in markdown fences or surround them with prose;
// recovery tries, in order, a fenced block, a bare array, and a bare object.
func Recover(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if isJSON(trimmed) {
		return json.RawMessage(trimmed), true
	}

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if isJSON(candidate) {
			return json.RawMessage(candidate), true
		}
	}
	for _, re := range []*regexp.Regexp{bareArrayLazy, bareArrayGreedy, bareObjectLazy, bareObjectGreedy} {
		if m := re.FindString(text); m != "" && isJSON(m) {
			return json.RawMessage(m), true
		}
	}
	return nil, false
}

func isJSON(s string) bool {
	if s == "" {
		return false
	}
	return json.Valid([]byte(s))
}

// Transaction is one record of the transaction-history surface.
type Transaction struct {
	TransactionID string  `json:"Transaction ID"`
	AccountID     string  `json:"Account ID"`
	Amount        float64 `json:"Amount"`
	Category      string  `json:"Category"`
	Date          string  `json:"Date"`
	Description   string  `json:"Description"`
}

// ExtractTransactions pulls a transaction list out of recovered JSON: either
// a top-level array or an object with a "transactions" field.
func ExtractTransactions(raw json.RawMessage) ([]Transaction, bool) {
	var txns []Transaction
	if err := json.Unmarshal(raw, &txns); err == nil {
		return txns, true
	}

	var wrapper struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Transactions != nil {
		return wrapper.Transactions, true
	}
	return nil, false
}

// VerifyUserScope checks that a payload carries some reference to the
// requesting user's identifier. A miss does not fail the request; the caller
// logs it and sets the isolation flag on the response.
func VerifyUserScope(capability, userID string, raw json.RawMessage) *core.DataIsolationWarning {
	if userID == "" {
		return nil
	}
	if strings.Contains(string(raw), userID) {
		return nil
	}
	return &core.DataIsolationWarning{Capability: capability, UserID: userID}
}

// ParseFailure is the diagnostic body returned when no structured data could
// be recovered from an upstream response.
type ParseFailure struct {
	Error          string `json:"error"`
	RawResponse    string `json:"raw_response"`
	ResponseLength int    `json:"response_length"`
	ChunksReceived int    `json:"chunks_received"`
}

// NewParseFailure builds the diagnostic for a chunked response that never
// yielded valid JSON. The raw text is truncated to keep the body bounded.
func NewParseFailure(text string, chunks int) *ParseFailure {
	const maxRaw = 2000
	raw := text
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return &ParseFailure{
		Error:          "could not parse structured data from agent response",
		RawResponse:    raw,
		ResponseLength: len(text),
		ChunksReceived: chunks,
	}
}
