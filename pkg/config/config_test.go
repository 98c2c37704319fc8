package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Model.Provider != "openai" {
		t.Fatalf("Provider = %q", cfg.Model.Provider)
	}
	if cfg.Retrieval.CacheTTLMinutes != 60 {
		t.Fatalf("CacheTTLMinutes = %d", cfg.Retrieval.CacheTTLMinutes)
	}
	if cfg.Retrieval.ConfidenceThreshold != 0.7 {
		t.Fatalf("ConfidenceThreshold = %v", cfg.Retrieval.ConfidenceThreshold)
	}
	if len(cfg.Fallback.OutOfDomainCategories) != 5 {
		t.Fatalf("OutOfDomainCategories = %v", cfg.Fallback.OutOfDomainCategories)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHATRAG_MODEL_PROVIDER", "anthropic")
	t.Setenv("CHATRAG_CACHE_TTL_MINUTES", "5")
	t.Setenv("CHATRAG_OUT_OF_DOMAIN", "weather,stocks")
	t.Setenv("CHATRAG_CHAT_TEMPERATURE", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Provider != "anthropic" {
		t.Fatalf("Provider = %q", cfg.Model.Provider)
	}
	if cfg.Retrieval.CacheTTLMinutes != 5 {
		t.Fatalf("CacheTTLMinutes = %d", cfg.Retrieval.CacheTTLMinutes)
	}
	if len(cfg.Fallback.OutOfDomainCategories) != 2 || cfg.Fallback.OutOfDomainCategories[1] != "stocks" {
		t.Fatalf("OutOfDomainCategories = %v", cfg.Fallback.OutOfDomainCategories)
	}
	if cfg.Model.ChatTemperature != 0.9 {
		t.Fatalf("ChatTemperature = %v", cfg.Model.ChatTemperature)
	}
}
