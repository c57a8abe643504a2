package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/aggregate"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// handleTransactionHistory serves the REST view of the transaction-history
// agent: it runs a one-shot session, recovers the structured transaction
// list from the agent's reply, and returns it as a JSON array. If nothing
// parseable comes back, the response is a 500 with parse diagnostics rather
// than free text.
func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	log := s.log.With().Str("user_id", userID).Str("endpoint", "transaction-history").Logger()

	ctx, cancel := context.WithTimeout(r.Context(), s.remoteTimeout)
	defer cancel()

	request := fmt.Sprintf(
		"Get transaction history for user ID: %s. Return the complete transaction history as structured data.",
		userID,
	)

	chunks := 0
	emit := func(ev core.Event) {
		if ev.Type == core.EventTextChunk {
			chunks++
		}
	}

	sess := core.NewSession(uuid.NewString(), userID, "transaction_history")
	started := time.Now()
	reply, err := s.router.RunTurn(ctx, sess, request, emit)
	if chunks == 0 {
		chunks = 1
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("transaction history turn failed")
		writeJSON(w, http.StatusInternalServerError, aggregate.NewParseFailure(err.Error(), chunks))
		return
	}

	raw, ok := aggregate.Recover(reply)
	if !ok {
		log.Error().Int("response_length", len(reply)).Msg("no structured data in agent reply")
		writeJSON(w, http.StatusInternalServerError, aggregate.NewParseFailure(reply, chunks))
		return
	}

	txns, ok := aggregate.ExtractTransactions(raw)
	if !ok {
		log.Error().Msg("recovered JSON is not a transaction list")
		writeJSON(w, http.StatusInternalServerError, aggregate.NewParseFailure(reply, chunks))
		return
	}

	if warn := aggregate.VerifyUserScope("transaction_history", userID, raw); warn != nil {
		log.Warn().Msg("transaction payload carries no reference to requesting user")
		w.Header().Set("X-Data-Isolation-Warning", "true")
	}

	log.Info().
		Int("transactions", len(txns)).
		Dur("elapsed", time.Since(started)).
		Msg("transaction history served")
	writeJSON(w, http.StatusOK, txns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
