package budget

import (
	"presupuestor/internal/config"
	"presupuestor/internal/types"
)

// ComputeBreakdown applies the financial roll-up to a raw execution cost.
// Order matters: overhead and benefit apply to the execution cost, tax to
// the resulting subtotal, and the adjustment factor to the taxed total. The
// stored GlobalAdjustment is the delta the factor introduced, not the
// multiplied total, so the breakdown components always sum to Total.
func ComputeBreakdown(materialExecutionPrice float64, cfg config.BudgetConfig) types.CostBreakdown {
	overhead := materialExecutionPrice * cfg.OverheadExpenses
	benefit := materialExecutionPrice * cfg.IndustrialBenefit
	subtotal := materialExecutionPrice + overhead + benefit
	tax := subtotal * cfg.IVA
	taxed := subtotal + tax
	adjustment := taxed*cfg.GlobalAdjustmentFactor - taxed

	b := types.CostBreakdown{
		MaterialExecutionPrice: types.Round2(materialExecutionPrice),
		OverheadExpenses:       types.Round2(overhead),
		IndustrialBenefit:      types.Round2(benefit),
		Tax:                    types.Round2(tax),
		GlobalAdjustment:       types.Round2(adjustment),
	}
	// Total is the sum of the rounded components, keeping the breakdown
	// internally consistent at cent resolution.
	b.Total = types.Round2(b.MaterialExecutionPrice + b.OverheadExpenses +
		b.IndustrialBenefit + b.Tax + b.GlobalAdjustment)
	return b
}
