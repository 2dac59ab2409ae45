package api

import (
	"encoding/json"
	"net/http"

	"github.com/karollnt/goldstory-backend/store"
)

// StatusResponse summarizes the pipeline's durable state.
type StatusResponse struct {
	Status           string           `json:"status"`
	CasesByState     map[string]int64 `json:"cases_by_state,omitempty"`
	OpenTransactions int64            `json:"open_transactions"`
}

// ErrorResponse is the error body returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health. It answers while the rest of the pipeline
// may be down, so operators can tell "process dead" from "ingestion dead".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStatus handles GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StatusResponse{Status: "ok"}

	if s.database != nil {
		type stateCount struct {
			State string
			Count int64
		}
		var counts []stateCount
		err := s.database.Client().
			Model(&store.CaseEvent{}).
			Select("state, count(distinct case_id) as count").
			Group("state").
			Scan(&counts).Error
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to query case counts")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "status query failed"})
			return
		}

		response.CasesByState = make(map[string]int64, len(counts))
		for _, c := range counts {
			response.CasesByState[c.State] = c.Count
		}

		s.database.Client().
			Model(&store.PendingTransaction{}).
			Where("status IN ?", []string{store.TxStatusPending, store.TxStatusTimedOut}).
			Count(&response.OpenTransactions)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
