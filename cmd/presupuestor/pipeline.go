package main

import (
	"fmt"
	"path/filepath"

	"presupuestor/internal/agents"
	"presupuestor/internal/budget"
	"presupuestor/internal/catalog"
	"presupuestor/internal/config"
	"presupuestor/internal/embedding"
	"presupuestor/internal/llm"

	"go.uber.org/zap"
)

// =============================================================================
// COMPOSITION ROOT
// =============================================================================
// All pipeline dependencies are constructed here and passed down explicitly;
// no package reaches for ambient singletons.

type pipeline struct {
	cfg       *config.Config
	store     *catalog.Store
	assembler *budget.Assembler
}

func (p *pipeline) Close() {
	if p.store != nil {
		_ = p.store.Close()
	}
}

// openStore opens the catalog database and attaches the embedding engine
// when one can be built. A missing embedding engine is not fatal: retrieval
// degrades to keyword search.
func openStore(cfg *config.Config) (*catalog.Store, error) {
	dbPath := cfg.Catalog.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	store, err := catalog.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding engine unavailable, catalog search degrades to keywords", zap.Error(err))
	} else {
		store.SetEmbeddingEngine(engine)
	}
	return store, nil
}

// buildPipeline wires the full generation pipeline from config.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key: use --api-key or set GEMINI_API_KEY")
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budget config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	client := llm.NewGeminiClient(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.LLM.ParseTimeout(),
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
	})

	resolver := budget.NewResolver(store, cfg.Catalog.TopK)
	orchestrator := budget.NewOrchestrator(
		agents.NewTriage(client),
		resolver,
		agents.NewAnalyst(client),
		agents.NewEstimator(client),
	)
	assembler := budget.NewAssembler(
		agents.NewExtractor(client),
		orchestrator,
		agents.NewValidator(client),
		agents.NewArchitect(client),
		budget.LogSink{},
		cfg.Budget,
	)

	return &pipeline{cfg: cfg, store: store, assembler: assembler}, nil
}
