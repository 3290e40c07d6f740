package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"presupuestor/internal/catalog"
	"presupuestor/internal/config"
	"presupuestor/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// CATALOG COMMANDS
// =============================================================================

var (
	importKind string
	importYear int
	searchKind string
	searchLimit int
	searchYear int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the labor price book and material catalog",
	Long: `Manage the local catalogs backing budget generation.

Subcommands:
  import  - Load labor or material items from a JSON file
  search  - Query a catalog the way the pipeline does
  stats   - Show item counts`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import catalog items from a JSON file",
	Long: `Imports items into a catalog. The file is a JSON array.

Labor items ("--kind labor"):
  [{"code":"RA-010","description":"Alicatado...","unit":"m2","price_total":28.5,
    "breakdown":[{"description":"Oficial","code":"mo020","price":18.0,"quantity":0.5}]}]

Material items ("--kind material"):
  [{"sku":"KB-2210","name":"Azulejo Keraben","description":"...","price":18.4,
    "unit":"m2","category":"ceramica"}]

Import embeds every item for vector search; with no embedding engine
configured, items remain searchable by keyword.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCatalogSearch,
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog item counts",
	RunE:  runCatalogStats,
}

func init() {
	catalogImportCmd.Flags().StringVar(&importKind, "kind", "labor", "Catalog to import into: labor or material")
	catalogImportCmd.Flags().IntVar(&importYear, "year", time.Now().Year(), "Price-book year (labor only)")
	catalogSearchCmd.Flags().StringVar(&searchKind, "kind", "labor", "Catalog to search: labor or material")
	catalogSearchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum results")
	catalogSearchCmd.Flags().IntVar(&searchYear, "year", 0, "Restrict to a price-book year (labor only)")

	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
}

func openStoreFromConfig() (*catalog.Store, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	store, err := openStoreFromConfig()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	switch importKind {
	case "labor":
		var items []types.LaborCandidate
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to parse labor items: %w", err)
		}
		if err := store.ImportLabor(ctx, items, importYear); err != nil {
			return err
		}
		logger.Info("labor items imported",
			zap.Int("count", len(items)),
			zap.Int("year", importYear),
			zap.Duration("elapsed", time.Since(start)))

	case "material":
		var items []types.MaterialCandidate
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to parse material items: %w", err)
		}
		if err := store.ImportMaterials(ctx, items); err != nil {
			return err
		}
		logger.Info("material items imported",
			zap.Int("count", len(items)),
			zap.Duration("elapsed", time.Since(start)))

	default:
		return fmt.Errorf("unknown catalog kind %q (use labor or material)", importKind)
	}
	return nil
}

func runCatalogSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	store, err := openStoreFromConfig()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f := catalog.Filters{Year: searchYear}
	switch searchKind {
	case "labor":
		hits := store.SearchLabor(ctx, query, searchLimit, f)
		if len(hits) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, h := range hits {
			fmt.Printf("%d. [%s] %s - %.2f EUR/%s\n", i+1, h.Code, h.Description, h.PriceTotal, h.Unit)
		}

	case "material":
		hits := store.SearchMaterials(ctx, query, searchLimit, f)
		if len(hits) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, h := range hits {
			fmt.Printf("%d. [%s] %s - %.2f EUR/%s (%s)\n", i+1, h.SKU, h.Name, h.Price, h.Unit, h.Category)
		}

	default:
		return fmt.Errorf("unknown catalog kind %q (use labor or material)", searchKind)
	}
	return nil
}

func runCatalogStats(cmd *cobra.Command, args []string) error {
	store, err := openStoreFromConfig()
	if err != nil {
		return err
	}
	defer store.Close()

	labor, materials := store.Counts()
	fmt.Printf("Labor price book:  %d items\n", labor)
	fmt.Printf("Material catalog:  %d items\n", materials)
	return nil
}
