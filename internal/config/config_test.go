package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "ontoforge" {
		t.Errorf("expected Name=ontoforge, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected Provider=openai, got %s", cfg.LLM.Provider)
	}
	if cfg.Session.BuildMaxTurns != 80 {
		t.Errorf("expected BuildMaxTurns=80, got %d", cfg.Session.BuildMaxTurns)
	}
	if cfg.Session.RetrievalMaxTurns != 20 {
		t.Errorf("expected RetrievalMaxTurns=20, got %d", cfg.Session.RetrievalMaxTurns)
	}
	if cfg.Graph.FactLimit != 1000000 {
		t.Errorf("expected FactLimit=1000000, got %d", cfg.Graph.FactLimit)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("ONTOFORGE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ONTOFORGE_MODEL", "")
	t.Setenv("ONTOFORGE_BASE_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "sk-test"
	cfg.Session.BuildMaxTurns = 40

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", loaded.LLM.Provider)
	}
	if loaded.LLM.APIKey != "sk-test" {
		t.Errorf("expected APIKey=sk-test, got %s", loaded.LLM.APIKey)
	}
	if loaded.Session.BuildMaxTurns != 40 {
		t.Errorf("expected BuildMaxTurns=40, got %d", loaded.Session.BuildMaxTurns)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("ONTOFORGE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ONTOFORGE_MODEL", "")
	t.Setenv("ONTOFORGE_BASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected default provider, got %s", cfg.LLM.Provider)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ONTOFORGE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	t.Setenv("ONTOFORGE_MODEL", "claude-sonnet-4-20250514")
	t.Setenv("ONTOFORGE_BASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.APIKey != "env-anthropic-key" {
		t.Errorf("expected env API key, got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected provider switched to anthropic, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model override, got %s", cfg.LLM.Model)
	}
}

func TestConfig_GenericKeyWins(t *testing.T) {
	t.Setenv("ONTOFORGE_API_KEY", "generic-key")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ONTOFORGE_MODEL", "")
	t.Setenv("ONTOFORGE_BASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.APIKey != "generic-key" {
		t.Errorf("expected ONTOFORGE_API_KEY to win, got %s", cfg.LLM.APIKey)
	}
	// Provider stays whatever the config says when the generic key is used.
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider unchanged, got %s", cfg.LLM.Provider)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error with no API key")
	}

	cfg.LLM.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.LLM.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown provider")
	}

	cfg.LLM.Provider = "openai"
	cfg.Session.BuildMaxTurns = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero turn bound")
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetLLMTimeout(); got != 120*time.Second {
		t.Errorf("GetLLMTimeout = %v", got)
	}
	if got := cfg.GetQueryTimeout(); got != 30*time.Second {
		t.Errorf("GetQueryTimeout = %v", got)
	}
	if got := cfg.GetRetryBackoff(); got != 15*time.Second {
		t.Errorf("GetRetryBackoff = %v", got)
	}

	cfg.LLM.Timeout = "bogus"
	if got := cfg.GetLLMTimeout(); got != 120*time.Second {
		t.Errorf("GetLLMTimeout fallback = %v", got)
	}
}
