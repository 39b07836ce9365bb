package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion context service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	SessionRetention         time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	BrainMode    string
	BrainModel   string
	BrainBaseURL string
	BrainAPIKey  string
	BrainTimeout time.Duration

	EmbeddingMode    string
	EmbeddingModel   string
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingDim     int

	DatabaseURL string

	RetrievalTopK       int
	RetrievalMinScore   float64
	RetrievalTimeout    time.Duration
	PersonaFetchTimeout time.Duration

	RecentWindow      time.Duration
	RecentMaxEntries  int
	RecentMaxChars    int
	SummaryMaxEntries int
	SummaryMaxChars   int

	PromptMaxChars  int
	ContextMinChars int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "aria"),
		AllowAnyOrigin:   false,

		BrainMode:    envOrDefault("BRAIN_MODE", "auto"),
		BrainModel:   envOrDefault("BRAIN_MODEL", "gpt-4o-mini"),
		BrainBaseURL: trimmedEnv("BRAIN_BASE_URL"),
		BrainAPIKey:  trimmedEnv("BRAIN_API_KEY"),
		BrainTimeout: 60 * time.Second,

		EmbeddingMode:    envOrDefault("EMBEDDING_MODE", "auto"),
		EmbeddingModel:   envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBaseURL: trimmedEnv("EMBEDDING_BASE_URL"),
		EmbeddingAPIKey:  trimmedEnv("EMBEDDING_API_KEY"),
		EmbeddingDim:     1536,

		DatabaseURL: trimmedEnv("DATABASE_URL"),

		RetrievalTopK:       12,
		RetrievalMinScore:   0.30,
		RetrievalTimeout:    3 * time.Second,
		PersonaFetchTimeout: 3 * time.Second,

		RecentWindow:      24 * time.Hour,
		RecentMaxEntries:  10,
		RecentMaxChars:    600,
		SummaryMaxEntries: 5,
		SummaryMaxChars:   200,

		PromptMaxChars:  24000,
		ContextMinChars: 80,

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		SessionRetention:         5 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRetention, err = durationFromEnv("APP_SESSION_RETENTION", cfg.SessionRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalMinScore, err = floatFromEnv("RETRIEVAL_MIN_SCORE", cfg.RetrievalMinScore)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTimeout, err = durationFromEnv("RETRIEVAL_TIMEOUT", cfg.RetrievalTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PersonaFetchTimeout, err = durationFromEnv("PERSONA_FETCH_TIMEOUT", cfg.PersonaFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentWindow, err = durationFromEnv("MEMORY_RECENT_WINDOW", cfg.RecentWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentMaxEntries, err = intFromEnv("MEMORY_RECENT_MAX_ENTRIES", cfg.RecentMaxEntries)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentMaxChars, err = intFromEnv("MEMORY_RECENT_MAX_CHARS", cfg.RecentMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryMaxEntries, err = intFromEnv("MEMORY_SUMMARY_MAX_ENTRIES", cfg.SummaryMaxEntries)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryMaxChars, err = intFromEnv("MEMORY_SUMMARY_MAX_CHARS", cfg.SummaryMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.PromptMaxChars, err = intFromEnv("PROMPT_MAX_CHARS", cfg.PromptMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextMinChars, err = intFromEnv("CONTEXT_MIN_CHARS", cfg.ContextMinChars)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if cfg.RetrievalMinScore < 0 || cfg.RetrievalMinScore > 1 {
		return Config{}, fmt.Errorf("RETRIEVAL_MIN_SCORE must be in [0, 1]")
	}
	if cfg.RecentWindow <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RECENT_WINDOW must be positive")
	}
	if cfg.RecentMaxEntries <= 0 || cfg.SummaryMaxEntries <= 0 {
		return Config{}, fmt.Errorf("memory tier entry limits must be positive")
	}
	if cfg.RecentMaxChars <= 0 || cfg.SummaryMaxChars <= 0 {
		return Config{}, fmt.Errorf("memory tier char budgets must be positive")
	}
	// The recent tier carries whole turns verbatim; a recent budget below the
	// summary budget would make truncation structural instead of exceptional.
	if cfg.RecentMaxChars < cfg.SummaryMaxChars {
		return Config{}, fmt.Errorf("MEMORY_RECENT_MAX_CHARS must be >= MEMORY_SUMMARY_MAX_CHARS")
	}
	if cfg.PromptMaxChars <= 0 {
		return Config{}, fmt.Errorf("PROMPT_MAX_CHARS must be positive")
	}
	if cfg.ContextMinChars < 0 {
		return Config{}, fmt.Errorf("CONTEXT_MIN_CHARS must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
