package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	db "ruleflow-server/src/db/sql"
	"ruleflow-server/src/engine"
	"ruleflow-server/src/models"

	"github.com/go-chi/chi/v5"
)

func CreateRule(store *db.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string           `json:"name"`
			Description string           `json:"description"`
			Condition   models.Condition `json:"condition"`
			Action      models.Action    `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode create rule request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		rule := &models.Rule{
			Name:        req.Name,
			Description: req.Description,
			Condition:   req.Condition,
			Action:      req.Action,
		}
		created, err := store.Create(r.Context(), rule)
		if err != nil {
			var ve *engine.ValidationError
			if errors.As(err, &ve) {
				log.Printf("ERROR: Rule validation failed: %v", ve)
				http.Error(w, ve.Reason, http.StatusBadRequest)
				return
			}
			log.Printf("ERROR: Failed to create rule: %v", err)
			http.Error(w, "failed to create rule", http.StatusInternalServerError)
			return
		}
		log.Printf("INFO: Created rule %s, name %s", created.ID, created.Name)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	}
}

func GetRule(store *db.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID := chi.URLParam(r, "rule_id")
		rule, err := store.Get(r.Context(), ruleID)
		if errors.Is(err, engine.ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("ERROR: Failed to get rule %s: %v", ruleID, err)
			http.Error(w, "failed to get rule", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rule)
	}
}

func ListRules(store *db.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			rules []models.Rule
			err   error
		)
		if r.URL.Query().Get("active") == "true" {
			rules, err = store.ListActive(r.Context())
		} else {
			rules, err = store.ListAll(r.Context())
		}
		if err != nil {
			log.Printf("ERROR: Failed to list rules: %v", err)
			http.Error(w, "failed to list rules", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rules)
	}
}

func UpdateRule(store *db.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID := chi.URLParam(r, "rule_id")
		var req struct {
			Name        string           `json:"name"`
			Description string           `json:"description"`
			Condition   models.Condition `json:"condition"`
			Action      models.Action    `json:"action"`
			IsActive    bool             `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode update rule request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		rule := &models.Rule{
			ID:          ruleID,
			Name:        req.Name,
			Description: req.Description,
			Condition:   req.Condition,
			Action:      req.Action,
			IsActive:    req.IsActive,
		}
		updated, err := store.Update(r.Context(), rule)
		if err != nil {
			var ve *engine.ValidationError
			switch {
			case errors.As(err, &ve):
				log.Printf("ERROR: Rule validation failed for %s: %v", ruleID, ve)
				http.Error(w, ve.Reason, http.StatusBadRequest)
			case errors.Is(err, engine.ErrRuleNotFound):
				http.Error(w, "rule not found", http.StatusNotFound)
			default:
				log.Printf("ERROR: Failed to update rule %s: %v", ruleID, err)
				http.Error(w, "failed to update rule", http.StatusInternalServerError)
			}
			return
		}
		log.Printf("INFO: Updated rule %s", updated.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(updated)
	}
}

// DeactivateRule is the logical delete. The rule stops matching immediately;
// its trigger records stay queryable.
func DeactivateRule(store *db.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID := chi.URLParam(r, "rule_id")
		err := store.Deactivate(r.Context(), ruleID)
		if errors.Is(err, engine.ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("ERROR: Failed to deactivate rule %s: %v", ruleID, err)
			http.Error(w, "failed to deactivate rule", http.StatusInternalServerError)
			return
		}
		log.Printf("INFO: Deactivated rule %s", ruleID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "rule deactivated"})
	}
}
