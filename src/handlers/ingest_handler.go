package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"ruleflow-server/src/engine"
	"ruleflow-server/src/models"
)

// IngestTransactions receives a batch of raw transactions from the source and
// runs it through the engine, returning the batch summary once every dispatch
// has settled.
func IngestTransactions(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transactions []models.RawTransaction `json:"transactions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode ingest request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if len(req.Transactions) == 0 {
			http.Error(w, "transactions are required", http.StatusBadRequest)
			return
		}

		result, err := eng.ProcessBatch(r.Context(), req.Transactions)
		if err != nil {
			log.Printf("ERROR: Batch %s aborted: %v", result.BatchID, err)
			http.Error(w, "failed to process batch", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// GetEngineState reports the orchestrator's current state.
func GetEngineState(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"state": string(eng.State())})
	}
}
