// Package config loads runtime configuration from the environment (and an
// optional local .env file) into a single explicit Config value, instead of
// the teacher's package-level var block — Design Note §9 calls out global
// singletons for DB/HTTP/logger state and asks for explicit dependencies
// constructed once at the composition root.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully-resolved set of values the composition root needs to
// build every adapter (C1–C18). Nothing downstream reads the environment
// directly; everything takes a *Config or one of its fields.
type Config struct {
	// OpenAI (chat completion + embeddings), required.
	OpenAIAPIKey string

	// Gemini, optional — enables C17 audio transcription when set.
	GeminiAPIKey string

	// WATI gateway, required.
	WatiAPIKey            string
	WatiAPIURL            string
	WatiWebhookVerifyToken string

	// LLM rate-limit guard (C11.1 / §4.11).
	LLMMinRequestInterval time.Duration
	LLMMaxRetries         int
	LLMBaseDelay          time.Duration

	// Admission allow-list (§4.8 step 1). Empty means allow everyone.
	AllowedPhones []string

	// Pause registry default TTL (§4.2).
	PauseDefaultTTL time.Duration

	// Sync schedule (§4.10), "HH:MM" 24h local time.
	SyncDailyTime string

	// Riyadh-region exclusion list, surfaced per the Design Note §9 open
	// question instead of being hard-coded as {6,7,8,9}.
	CatalogSyncExcludedCityIDs []int

	// Relational store DSN. Defaults to a local sqlite file; set
	// DATABASE_URL to a postgres DSN to use gorm.io/driver/postgres instead.
	DatabaseURL string

	// Vector store directory (chromem-go persistent DB).
	VectorStorePath string

	// Pause registry backend (valkey-go). Empty falls back to
	// 127.0.0.1:6379 (see cmd/app.go).
	ValkeyAddress string

	HTTPPort string
}

const (
	defaultLLMMinRequestInterval = 500 * time.Millisecond
	defaultLLMMaxRetries         = 3
	defaultLLMBaseDelay          = 1 * time.Second
	defaultPauseTTL              = 10 * time.Hour
	defaultSyncDailyTime         = "02:00"
	defaultDatabaseURL           = "file:storages/abar.db?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	defaultVectorStorePath       = "storages/vectorstore"
	defaultHTTPPort              = "3000"
)

var defaultExcludedCityIDs = []int{6, 7, 8, 9}

// Load reads .env (if present, development convenience only — never
// required) then the process environment, and returns a validated Config.
// Missing required keys are a fatal programmer error per spec §7: Load
// returns an error and the caller (cmd/) must refuse to start rather than
// limp along with zero-value secrets.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("LLM_MIN_REQUEST_INTERVAL", defaultLLMMinRequestInterval.String())
	v.SetDefault("LLM_MAX_RETRIES", defaultLLMMaxRetries)
	v.SetDefault("LLM_BASE_DELAY", defaultLLMBaseDelay.String())
	v.SetDefault("PAUSE_DEFAULT_TTL_HOURS", "10")
	v.SetDefault("SYNC_DAILY_TIME", defaultSyncDailyTime)
	v.SetDefault("DATABASE_URL", defaultDatabaseURL)
	v.SetDefault("VECTOR_STORE_PATH", defaultVectorStorePath)
	v.SetDefault("HTTP_PORT", defaultHTTPPort)

	cfg := &Config{
		OpenAIAPIKey:           v.GetString("OPENAI_API_KEY"),
		GeminiAPIKey:           v.GetString("GEMINI_API_KEY"),
		WatiAPIKey:             v.GetString("WATI_API_KEY"),
		WatiAPIURL:             v.GetString("WATI_API_URL"),
		WatiWebhookVerifyToken: v.GetString("WATI_WEBHOOK_VERIFY_TOKEN"),
		SyncDailyTime:          v.GetString("SYNC_DAILY_TIME"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		VectorStorePath:        v.GetString("VECTOR_STORE_PATH"),
		ValkeyAddress:          v.GetString("VALKEY_ADDRESS"),
		HTTPPort:               v.GetString("HTTP_PORT"),
	}

	var err error
	cfg.LLMMinRequestInterval, err = time.ParseDuration(v.GetString("LLM_MIN_REQUEST_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("config: LLM_MIN_REQUEST_INTERVAL: %w", err)
	}
	cfg.LLMMaxRetries = v.GetInt("LLM_MAX_RETRIES")
	cfg.LLMBaseDelay, err = time.ParseDuration(v.GetString("LLM_BASE_DELAY"))
	if err != nil {
		return nil, fmt.Errorf("config: LLM_BASE_DELAY: %w", err)
	}

	ttlHours := v.GetFloat64("PAUSE_DEFAULT_TTL_HOURS")
	if ttlHours <= 0 {
		cfg.PauseDefaultTTL = defaultPauseTTL
	} else {
		cfg.PauseDefaultTTL = time.Duration(ttlHours * float64(time.Hour))
	}

	cfg.AllowedPhones = splitNonEmpty(v.GetString("ALLOWED_PHONES"), ",")

	cfg.CatalogSyncExcludedCityIDs, err = parseCityIDs(v.GetString("CATALOG_SYNC_EXCLUDED_CITY_IDS"))
	if err != nil {
		return nil, fmt.Errorf("config: CATALOG_SYNC_EXCLUDED_CITY_IDS: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the fail-fast-at-startup rule from spec §7: a missing
// required key must never surface as a request-time error.
func (c *Config) validate() error {
	var missing []string
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.WatiAPIKey == "" {
		missing = append(missing, "WATI_API_KEY")
	}
	if c.WatiAPIURL == "" {
		missing = append(missing, "WATI_API_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCityIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return defaultExcludedCityIDs, nil
	}
	parts := splitNonEmpty(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid city id %q: %w", p, err)
		}
		out = append(out, id)
	}
	return out, nil
}
