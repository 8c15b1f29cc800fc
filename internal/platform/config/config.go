package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	Environment string

	// JWTSigningKey validates session tokens supplied by the credential
	// provider; actor identity for audit entries comes from these tokens.
	JWTSigningKey string

	// MasterSecret seeds per-institution MAC keys for document integrity
	// hashes. Never used directly; keys are derived per institution.
	MasterSecret string

	// VerificationBaseURL is embedded into verification payloads
	// (e.g. https://verify.trustdoc.example).
	VerificationBaseURL string

	DatabaseURL string
	RedisURL    string

	KafkaBrokers    string
	KafkaAuditTopic string

	// ImportBudget is the wall-clock limit for a single import job before it
	// is cancelled. ImportWorkers bounds row-level parallelism per job.
	ImportBudget  time.Duration
	ImportWorkers int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                getEnv("TRUSTDOC_ADDR", ":8080"),
		Environment:         getEnv("TRUSTDOC_ENV", "development"),
		JWTSigningKey:       getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		MasterSecret:        getEnv("TRUSTDOC_MASTER_SECRET", "dev-master-secret-change-in-production"),
		VerificationBaseURL: getEnv("VERIFICATION_BASE_URL", "https://verify.trustdoc.africa"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		KafkaAuditTopic:     getEnv("KAFKA_AUDIT_TOPIC", "trustdoc.audit.entries"),
		ImportBudget:        10 * time.Minute,
		ImportWorkers:       4,
	}

	if v := os.Getenv("IMPORT_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ImportBudget = d
		}
	}
	if v := os.Getenv("IMPORT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ImportWorkers = n
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
