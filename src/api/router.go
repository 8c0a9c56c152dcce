package api

import (
	"net/http"

	db "ruleflow-server/src/db/sql"
	"ruleflow-server/src/engine"
	"ruleflow-server/src/handlers"
	"ruleflow-server/src/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(eng *engine.Engine, rules *db.RuleStore, triggerLog *db.TriggerLog, registry *prometheus.Registry, allowedOrigins []string, readOnly bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	r.Use(middleware.ReadOnlyMiddleware(readOnly))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.JWTAuthMiddleware).Group(func(r chi.Router) {
			// Ingestion
			r.Post("/transactions/ingest", handlers.IngestTransactions(eng))
			r.Get("/engine/state", handlers.GetEngineState(eng))

			// Rules
			r.Post("/rules", handlers.CreateRule(rules))
			r.Get("/rules", handlers.ListRules(rules))
			r.Get("/rules/{rule_id}", handlers.GetRule(rules))
			r.Put("/rules/{rule_id}", handlers.UpdateRule(rules))
			r.Delete("/rules/{rule_id}", handlers.DeactivateRule(rules))

			// Execution log
			r.Get("/rules/{rule_id}/triggers", handlers.GetRuleTriggers(triggerLog))
		})
	})

	return r
}
