package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, kv := range originalEnv {
			if k, v, ok := strings.Cut(kv, "="); ok {
				os.Setenv(k, v)
			}
		}
	}()

	os.Clearenv()

	cfg := Load()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8080},
		{"LogLevel", cfg.LogLevel, "info"},
		{"StoreProvider", cfg.StoreProvider, "postgres"},
		{"QueueProvider", cfg.QueueProvider, "nats"},
		{"EmbeddingProvider", cfg.EmbeddingProvider, "openai"},
		{"EmbeddingModel", cfg.EmbeddingModel, "text-embedding-3-large"},
		{"EmbeddingDimensions", cfg.EmbeddingDimensions, 3072},
		{"EmbeddingBatchSize", cfg.EmbeddingBatchSize, 2048},
		{"ChunkTargetWords", cfg.ChunkTargetWords, 800},
		{"ChunkMinWords", cfg.ChunkMinWords, 100},
		{"ChunkMaxWords", cfg.ChunkMaxWords, 1000},
		{"ChunkOverlap", cfg.ChunkOverlap, 0.15},
		{"TokensPerWord", cfg.TokensPerWord, 1.3},
		{"CostPer1KTokens", cfg.CostPer1KTokens, 0.00013},
		{"CostThreshold", cfg.CostThreshold, 0.10},
		{"EmbedAutoApprove", cfg.EmbedAutoApprove, false},
		{"FMPBaseURL", cfg.FMPBaseURL, "https://financialmodelingprep.com/api/v3"},
		{"FMPDailyLimit", cfg.FMPDailyLimit, 250},
		{"FMPCallsPerMinute", cfg.FMPCallsPerMinute, 750},
		{"FetchWorkers", cfg.FetchWorkers, 20},
		{"EDGARFilingPause", cfg.EDGARFilingPause, 2 * time.Second},
		{"OutputDir", cfg.OutputDir, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CHUNK_MAX_WORDS", "500")
	t.Setenv("EMBED_AUTO_APPROVE", "true")
	t.Setenv("EDGAR_FILING_PAUSE", "500ms")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.ChunkMaxWords != 500 {
		t.Errorf("expected max words 500, got %d", cfg.ChunkMaxWords)
	}
	if !cfg.EmbedAutoApprove {
		t.Error("expected auto approve to be enabled")
	}
	if cfg.EDGARFilingPause != 500*time.Millisecond {
		t.Errorf("expected pause 500ms, got %v", cfg.EDGARFilingPause)
	}
}

func validConfig() Config {
	return Config{
		Port:                8080,
		MaxUploadSize:       52428800,
		CacheTTL:            3600,
		EmbeddingDimensions: 3072,
		EmbeddingBatchSize:  2048,
		ChunkTargetWords:    800,
		ChunkMinWords:       100,
		ChunkMaxWords:       1000,
		ChunkOverlap:        0.15,
		TokensPerWord:       1.3,
		CostPer1KTokens:     0.00013,
		CostThreshold:       0.10,
		FMPCallsPerMinute:   750,
		FetchWorkers:        20,
		SECUserAgent:        "BalanceSheetsApp/1.0 (contact@example.com)",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero overlap", mutate: func(c *Config) { c.ChunkOverlap = 0 }},
		{name: "min equals max", mutate: func(c *Config) { c.ChunkMinWords, c.ChunkMaxWords = 500, 500 }},
		{name: "daily limit disabled", mutate: func(c *Config) { c.FMPDailyLimit = -1 }},
		{name: "min above max", mutate: func(c *Config) { c.ChunkMinWords, c.ChunkMaxWords = 1200, 1000 }, wantErr: true},
		{name: "overlap of one", mutate: func(c *Config) { c.ChunkOverlap = 1 }, wantErr: true},
		{name: "negative overlap", mutate: func(c *Config) { c.ChunkOverlap = -0.1 }, wantErr: true},
		{name: "negative threshold", mutate: func(c *Config) { c.CostThreshold = -1 }, wantErr: true},
		{name: "zero tokens per word", mutate: func(c *Config) { c.TokensPerWord = 0 }, wantErr: true},
		{name: "batch above provider limit", mutate: func(c *Config) { c.EmbeddingBatchSize = 4096 }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.FetchWorkers = 0 }, wantErr: true},
		{name: "no user agent", mutate: func(c *Config) { c.SECUserAgent = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Load().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
