package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	NotifyWebhookURL   string
	TransferServiceURL string
	EffectorTimeout    time.Duration
	MaxDispatchRetries int
	RetryBackoffBase   time.Duration
	ClaimStaleAge      time.Duration
	EvalParallelism    int
	ReadOnly           bool
	AllowedOrigins     []string
}

func Load() Config {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		TransferServiceURL: getEnv("TRANSFER_SERVICE_URL", ""),
		EffectorTimeout:    time.Duration(getEnvInt("EFFECTOR_TIMEOUT_SECONDS", 5)) * time.Second,
		MaxDispatchRetries: getEnvInt("DISPATCH_MAX_ATTEMPTS", 4),
		RetryBackoffBase:   time.Duration(getEnvInt("RETRY_BACKOFF_MS", 500)) * time.Millisecond,
		ClaimStaleAge:      time.Duration(getEnvInt("CLAIM_STALE_SECONDS", 300)) * time.Second,
		EvalParallelism:    getEnvInt("EVAL_PARALLELISM", 8),
		ReadOnly:           getEnv("READ_ONLY", "false") == "true",
		AllowedOrigins:     []string{getEnv("ALLOWED_ORIGIN", "http://localhost:3000")},
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}
	if cfg.TransferServiceURL == "" {
		log.Fatal("TRANSFER_SERVICE_URL is required")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid value for %s: %v", key, err)
	}
	return n
}
