package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"presupuestor/internal/config"

	"github.com/spf13/cobra"
)

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after merging defaults, the workspace file
(.presupuestor/config.json) and environment overrides. API keys are redacted.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the workspace",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}

	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "***"
	}
	if cfg.Embedding.GenAIAPIKey != "" {
		cfg.Embedding.GenAIAPIKey = "***"
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	dir := filepath.Join(workspace, ".presupuestor")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	data, err := json.MarshalIndent(config.DefaultConfig(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
