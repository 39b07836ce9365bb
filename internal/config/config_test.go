package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BrainMode != "auto" {
		t.Fatalf("BrainMode = %q, want %q", cfg.BrainMode, "auto")
	}
	if cfg.RecentWindow != 24*time.Hour {
		t.Fatalf("RecentWindow = %v, want 24h", cfg.RecentWindow)
	}
	if cfg.RecentMaxEntries != 10 || cfg.SummaryMaxEntries != 5 {
		t.Fatalf("tier entry limits = %d/%d, want 10/5", cfg.RecentMaxEntries, cfg.SummaryMaxEntries)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadParsesTierBudgets(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("MEMORY_RECENT_WINDOW", "48h")
	t.Setenv("MEMORY_RECENT_MAX_CHARS", "800")
	t.Setenv("MEMORY_SUMMARY_MAX_CHARS", "150")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RecentWindow != 48*time.Hour {
		t.Fatalf("RecentWindow = %v, want 48h", cfg.RecentWindow)
	}
	if cfg.RecentMaxChars != 800 || cfg.SummaryMaxChars != 150 {
		t.Fatalf("char budgets = %d/%d, want 800/150", cfg.RecentMaxChars, cfg.SummaryMaxChars)
	}
}

func TestLoadRejectsInvertedTierBudgets(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("MEMORY_RECENT_MAX_CHARS", "100")
	t.Setenv("MEMORY_SUMMARY_MAX_CHARS", "200")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted recent budget below summary budget")
	}
}

func TestLoadRejectsBadMinScore(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("RETRIEVAL_MIN_SCORE", "1.5")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted RETRIEVAL_MIN_SCORE outside [0, 1]")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_SESSION_RETENTION",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"BRAIN_MODE",
		"BRAIN_MODEL",
		"BRAIN_BASE_URL",
		"BRAIN_API_KEY",
		"BRAIN_TIMEOUT",
		"EMBEDDING_MODE",
		"EMBEDDING_MODEL",
		"EMBEDDING_BASE_URL",
		"EMBEDDING_API_KEY",
		"EMBEDDING_DIM",
		"DATABASE_URL",
		"RETRIEVAL_TOP_K",
		"RETRIEVAL_MIN_SCORE",
		"RETRIEVAL_TIMEOUT",
		"PERSONA_FETCH_TIMEOUT",
		"MEMORY_RECENT_WINDOW",
		"MEMORY_RECENT_MAX_ENTRIES",
		"MEMORY_RECENT_MAX_CHARS",
		"MEMORY_SUMMARY_MAX_ENTRIES",
		"MEMORY_SUMMARY_MAX_CHARS",
		"PROMPT_MAX_CHARS",
		"CONTEXT_MIN_CHARS",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
