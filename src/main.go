package main

import (
	"context"
	"log"
	"net/http"

	"ruleflow-server/src/api"
	"ruleflow-server/src/config"
	"ruleflow-server/src/db"
	sqldb "ruleflow-server/src/db/sql"
	"ruleflow-server/src/effector"
	"ruleflow-server/src/engine"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	// Connect to database
	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}

	db.InitCache()

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)

	rules := sqldb.NewRuleStore(pool)
	ledger := sqldb.NewDispatchLedger(pool, cfg.ClaimStaleAge)
	triggerLog := sqldb.NewTriggerLog(pool)

	retrier := engine.NewRetrier()
	defer retrier.Close()

	dispatcher := &engine.Dispatcher{
		Rules:       rules,
		Ledger:      ledger,
		Log:         triggerLog,
		Notifier:    effector.NewHTTPNotifier(cfg.NotifyWebhookURL, cfg.EffectorTimeout),
		Transfers:   effector.NewHTTPTransferService(cfg.TransferServiceURL, cfg.EffectorTimeout),
		Retrier:     retrier,
		MaxAttempts: cfg.MaxDispatchRetries,
		BackoffBase: cfg.RetryBackoffBase,
		Timeout:     cfg.EffectorTimeout,
		Metrics:     metrics,
	}
	eng := engine.New(rules, dispatcher, metrics, cfg.EvalParallelism)

	// Router
	router := api.NewRouter(eng, rules, triggerLog, registry, cfg.AllowedOrigins, cfg.ReadOnly)

	log.Println("Rule engine server running on port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
