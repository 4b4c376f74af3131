package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the service reads from the environment. The
// variable names match the original deployment so existing .env files
// keep working.
type Config struct {
	Port          string
	DatabaseURL   string
	PublicBaseURL string // BASE_URL_PUBLICA

	MPAccessToken string
	MPPayerEmail  string
	MPRequireCPF  bool
	MPBaseURL     string
	CreateTimeout time.Duration // MP_CREATE_TIMEOUT_MS
	GetTimeout    time.Duration // MP_GET_TIMEOUT_MS

	PollerEnabled  bool
	PollerInterval time.Duration // POLLER_INTERVAL_MS
	PollerLookback time.Duration // POLLER_LOOKBACK_MIN
	PollerBatch    int           // POLLER_BATCH

	KafkaBroker string
	KafkaTopic  string

	DefaultAmount      float64
	DefaultDescription string
}

// Load reads the configuration from environment variables.
// MP_ACCESS_TOKEN and a database location are required; everything
// else has a default.
func Load() (*Config, error) {
	token := os.Getenv("MP_ACCESS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("MP_ACCESS_TOKEN is required")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = pgURLFromParts()
	}
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL (or PGHOST/PGUSER/PGDATABASE) is required")
	}

	return &Config{
		Port:          envString("PORT", "3002"),
		DatabaseURL:   dbURL,
		PublicBaseURL: os.Getenv("BASE_URL_PUBLICA"),

		MPAccessToken: token,
		MPPayerEmail:  os.Getenv("MP_PAYER_EMAIL"),
		MPRequireCPF:  envBool("MP_REQUIRE_CPF", false),
		MPBaseURL:     envString("MP_BASE_URL", "https://api.mercadopago.com"),
		CreateTimeout: envMillis("MP_CREATE_TIMEOUT_MS", 15000),
		GetTimeout:    envMillis("MP_GET_TIMEOUT_MS", 10000),

		PollerEnabled:  envBool("POLLER_ENABLED", true),
		PollerInterval: envMillis("POLLER_INTERVAL_MS", 15000),
		PollerLookback: time.Duration(envInt("POLLER_LOOKBACK_MIN", 60)) * time.Minute,
		PollerBatch:    envInt("POLLER_BATCH", 25),

		KafkaBroker: os.Getenv("KAFKA_BROKER"),
		KafkaTopic:  envString("KAFKA_TOPIC", "payments.paid"),

		DefaultAmount:      envFloat("DEFAULT_AMOUNT", 10.0),
		DefaultDescription: envString("DEFAULT_DESCRIPTION", "Acesso PIX"),
	}, nil
}

func pgURLFromParts() string {
	host := os.Getenv("PGHOST")
	user := os.Getenv("PGUSER")
	dbname := os.Getenv("PGDATABASE")
	if host == "" || user == "" || dbname == "" {
		return ""
	}
	port := envString("PGPORT", "5432")
	pass := os.Getenv("PGPASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, dbname)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
