package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"ruleflow-server/src/engine"
	"ruleflow-server/src/models"

	"github.com/go-chi/chi/v5"
)

// GetRuleTriggers pages through a rule's execution log. The UI polls this to
// show "rule triggered" feedback; `after` takes the last record id seen and
// resumes from there. An `after` value naming no known record is a client
// error, not an empty page.
func GetRuleTriggers(triggerLog engine.TriggerLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID := chi.URLParam(r, "rule_id")
		afterID := r.URL.Query().Get("after")
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		records, err := triggerLog.QueryByRule(r.Context(), ruleID, afterID, limit)
		if errors.Is(err, engine.ErrUnknownCursor) {
			http.Error(w, "unknown after cursor", http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Printf("ERROR: Failed to query triggers for rule %s: %v", ruleID, err)
			http.Error(w, "failed to query triggers", http.StatusInternalServerError)
			return
		}

		next := ""
		if len(records) > 0 {
			next = records[len(records)-1].ID
		}
		if records == nil {
			records = []models.TriggerRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"triggers": records,
			"next":     next,
		})
	}
}
