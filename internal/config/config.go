// Package config loads presupuestor configuration from
// .presupuestor/config.json with environment overrides. The BudgetConfig
// section is read once at the start of a generation run and treated as
// immutable for that run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all presupuestor configuration.
type Config struct {
	// LLM configuration
	LLM LLMConfig `json:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `json:"embedding"`

	// Catalog storage
	Catalog CatalogConfig `json:"catalog"`

	// Financial roll-up parameters
	Budget BudgetConfig `json:"budget"`

	// Logging
	Logging LoggingConfig `json:"logging"`
}

// LLMConfig configures the reasoning/generation client.
type LLMConfig struct {
	APIKey          string `json:"api_key"`
	Model           string `json:"model"`
	BaseURL         string `json:"base_url"`
	Timeout         string `json:"timeout"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}

// ParseTimeout returns the configured timeout or a default.
func (l LLMConfig) ParseTimeout() time.Duration {
	if d, err := time.ParseDuration(l.Timeout); err == nil && d > 0 {
		return d
	}
	return 2 * time.Minute
}

// EmbeddingConfig configures the text-to-vector function.
type EmbeddingConfig struct {
	// Provider: "genai" or "ollama"
	Provider string `json:"provider"`

	GenAIAPIKey string `json:"genai_api_key"`
	GenAIModel  string `json:"genai_model"`

	OllamaEndpoint string `json:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model"`
}

// CatalogConfig configures the SQLite-backed catalogs.
type CatalogConfig struct {
	DBPath string `json:"db_path"`
	// TopK is the default candidate count per retrieval.
	TopK int `json:"top_k"`
}

// BudgetConfig holds the financial roll-up percentages, all as decimals
// (0.13 means 13%). GlobalAdjustmentFactor is a multiplier (1.0 = no change).
type BudgetConfig struct {
	OverheadExpenses       float64 `json:"overhead_expenses"`
	IndustrialBenefit      float64 `json:"industrial_benefit"`
	IVA                    float64 `json:"iva"`
	GlobalAdjustmentFactor float64 `json:"global_adjustment_factor"`
}

// LoggingConfig mirrors internal/logging's view of the config file.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
}

// DefaultConfig returns the stock configuration: Spanish construction
// defaults for the roll-up (13% overhead, 6% benefit, 10% reduced IVA)
// and GenAI embeddings.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:           "gemini-2.5-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "2m",
			MaxOutputTokens: 8192,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
		},
		Catalog: CatalogConfig{
			DBPath: filepath.Join(".presupuestor", "catalog.db"),
			TopK:   5,
		},
		Budget: BudgetConfig{
			OverheadExpenses:       0.13,
			IndustrialBenefit:      0.06,
			IVA:                    0.10,
			GlobalAdjustmentFactor: 1.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at .presupuestor/config.json under workspace,
// falling back to defaults when it does not exist, then applies environment
// overrides. A malformed file is an error; a missing one is not.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ".presupuestor", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Budget.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if key := os.Getenv("PRESUPUESTOR_GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.Embedding.GenAIAPIKey = key
	}
	if model := os.Getenv("PRESUPUESTOR_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if provider := os.Getenv("PRESUPUESTOR_EMBEDDING_PROVIDER"); provider != "" {
		c.Embedding.Provider = provider
	}
	if path := os.Getenv("PRESUPUESTOR_DB"); path != "" {
		c.Catalog.DBPath = path
	}
	if v := os.Getenv("PRESUPUESTOR_ADJUSTMENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Budget.GlobalAdjustmentFactor = f
		}
	}
}

// Validate rejects roll-up parameters that would produce nonsense budgets.
func (b BudgetConfig) Validate() error {
	if b.OverheadExpenses < 0 || b.OverheadExpenses >= 1 {
		return fmt.Errorf("overhead_expenses must be a decimal in [0,1): got %v", b.OverheadExpenses)
	}
	if b.IndustrialBenefit < 0 || b.IndustrialBenefit >= 1 {
		return fmt.Errorf("industrial_benefit must be a decimal in [0,1): got %v", b.IndustrialBenefit)
	}
	if b.IVA < 0 || b.IVA >= 1 {
		return fmt.Errorf("iva must be a decimal in [0,1): got %v", b.IVA)
	}
	if b.GlobalAdjustmentFactor <= 0 {
		return fmt.Errorf("global_adjustment_factor must be positive: got %v", b.GlobalAdjustmentFactor)
	}
	return nil
}
