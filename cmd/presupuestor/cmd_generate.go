package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"presupuestor/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// GENERATE COMMAND
// =============================================================================

var (
	generateByChapters  bool
	generateConcurrency int
	generateJSON        bool
	generateSession     string
	generateTimeout     time.Duration
)

var generateCmd = &cobra.Command{
	Use:   "generate [project description]",
	Short: "Generate a priced budget from a project description",
	Long: `Generates an itemized budget from a natural-language project description.

Example:
  presupuestor generate "Instalar 20 m2 de parquet de roble y pintar las paredes"

With --by-chapters the project is first structured into named chapters
(Demoliciones, Fontaneria, Pintura...) and each chapter's tasks are resolved
with the chapter name as search context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateByChapters, "by-chapters", false, "Structure the budget into named chapters first")
	generateCmd.Flags().IntVar(&generateConcurrency, "concurrency", 1, "Parallel subtask resolutions (1 = sequential)")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Print the budget as JSON")
	generateCmd.Flags().StringVar(&generateSession, "session", "cli", "Session id attached to progress events")
	generateCmd.Flags().DurationVar(&generateTimeout, "timeout", 10*time.Minute, "Overall generation timeout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	narrative := strings.Join(args, " ")

	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	if labor, materials := p.store.Counts(); labor == 0 && materials == 0 {
		logger.Warn("catalogs are empty; items will be decomposed or estimated",
			zap.String("hint", "run 'presupuestor catalog import' first"))
	}

	p.assembler.Concurrency = generateConcurrency

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	start := time.Now()
	var b *types.Budget
	if generateByChapters {
		b, err = p.assembler.GenerateByChapters(ctx, generateSession, narrative)
	} else {
		b, err = p.assembler.Generate(ctx, generateSession, narrative)
	}
	if err != nil {
		return err
	}
	logger.Info("budget generated",
		zap.Int("chapters", len(b.Chapters)),
		zap.Float64("total", b.TotalEstimated),
		zap.Duration("elapsed", time.Since(start)))

	if generateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	printBudget(b)
	return nil
}

func printBudget(b *types.Budget) {
	for _, ch := range b.Chapters {
		fmt.Printf("\n%d. %s\n", ch.Order, ch.Name)
		for _, it := range ch.Items {
			marker := " "
			if it.IsEstimate {
				marker = "~"
			}
			ref := it.Code
			if it.Type == types.TypeMaterial {
				ref = it.SKU
			}
			fmt.Printf("  %s [%-10s] %-50s %8.2f %-4s x %8.2f = %10.2f EUR\n",
				marker, ref, truncate(it.Description, 50), it.Quantity, it.Unit, it.UnitPrice, it.TotalPrice)
			if it.Note != "" {
				fmt.Printf("               %s\n", truncate(it.Note, 90))
			}
		}
		fmt.Printf("     Subtotal: %.2f EUR\n", ch.TotalPrice)
	}

	cb := b.CostBreakdown
	fmt.Printf("\nEjecucion material:   %12.2f EUR\n", cb.MaterialExecutionPrice)
	fmt.Printf("Gastos generales:     %12.2f EUR\n", cb.OverheadExpenses)
	fmt.Printf("Beneficio industrial: %12.2f EUR\n", cb.IndustrialBenefit)
	fmt.Printf("IVA:                  %12.2f EUR\n", cb.Tax)
	if cb.GlobalAdjustment != 0 {
		fmt.Printf("Ajuste global:        %12.2f EUR\n", cb.GlobalAdjustment)
	}
	fmt.Printf("TOTAL:                %12.2f EUR\n", cb.Total)

	if b.Validation != nil && len(b.Validation.Issues) > 0 {
		fmt.Printf("\nRevision de coherencia (%.0f/100):\n", b.Validation.OverallScore)
		for _, issue := range b.Validation.Issues {
			fmt.Printf("  [%s] %s\n", issue.Severity, issue.Message)
			if issue.Suggestion != "" {
				fmt.Printf("          -> %s\n", issue.Suggestion)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
