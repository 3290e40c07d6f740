package budget

import (
	"context"
	"fmt"
	"strings"

	"presupuestor/internal/agents"
	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// ITEM RESOLUTION ORCHESTRATOR
// =============================================================================
// The per-subtask state machine: triage, then catalog search, then
// decomposition, then freeform estimation. Every path ends in exactly one
// LineItem; the worst case is a zero-priced estimate placeholder, never a
// propagated failure.

const clarificationPrefix = "[ACLARACION REQUERIDA] "

type triageAgent interface {
	Classify(ctx context.Context, taskDescription string) types.TriageDecision
}

type analystAgent interface {
	Decompose(ctx context.Context, description, chapterContext string) []agents.DecomposedItem
	Reconcile(ctx context.Context, labor types.LaborCandidate, material types.MaterialCandidate) (agents.ReconciledItem, bool)
}

type estimatorAgent interface {
	Estimate(ctx context.Context, description, unit string) (float64, string, bool)
}

type searchResolver interface {
	Resolve(ctx context.Context, p types.TriageParameters) Resolution
}

// Orchestrator resolves one subtask into one line item.
type Orchestrator struct {
	triage    triageAgent
	resolver  searchResolver
	analyst   analystAgent
	estimator estimatorAgent
}

func NewOrchestrator(triage triageAgent, resolver searchResolver, analyst analystAgent, estimator estimatorAgent) *Orchestrator {
	return &Orchestrator{
		triage:    triage,
		resolver:  resolver,
		analyst:   analyst,
		estimator: estimator,
	}
}

// ResolveItem turns one subtask into a line item. chapterContext biases the
// catalog search and decomposition when the subtask belongs to a named
// chapter; pass "" otherwise.
func (o *Orchestrator) ResolveItem(ctx context.Context, task types.Subtask, chapterContext string) types.LineItem {
	timer := logging.StartTimer(logging.CategoryResolver, "resolve_item")
	defer timer.Stop()

	decision := o.triage.Classify(ctx, task.SearchQuery)

	switch decision.Tool {
	case types.ToolBudgetSearch:
		params := decision.Parameters
		if params.Context == "" {
			params.Context = chapterContext
		}
		res := o.resolver.Resolve(ctx, params)

		switch {
		case res.Labor != nil && res.Material != nil:
			if item, ok := o.analyst.Reconcile(ctx, *res.Labor, *res.Material); ok {
				li := types.NewPartida(res.Labor.Code, item.Description, item.Unit, task.Quantity, item.UnitPrice)
				li.Breakdown = item.Breakdown
				li.OriginalTask = task.SearchQuery
				li.Note = fmt.Sprintf("Precio ajustado con material real %s (%s)", res.Material.Name, res.Material.SKU)
				return li
			}
			// Reconciliation failed: the plain labor match is still the best
			// priced answer we have.
			fallthrough

		case res.Partida != nil:
			p := res.Partida
			li := types.NewPartida(p.Code, p.Description, p.Unit, task.Quantity, p.UnitPrice)
			li.Breakdown = p.Breakdown
			li.OriginalTask = task.SearchQuery
			li.Note = "Partida generica del banco de precios"
			return li

		case res.Material != nil:
			m := res.Material
			li := types.NewMaterial(m.SKU, m.Name, m.Description, m.Unit, task.Quantity, m.Price)
			li.Merchant = m.Merchant
			li.OriginalTask = task.SearchQuery
			li.Note = "Producto del catalogo de materiales"
			return li
		}
		// Nothing in either catalog: try decomposition, then estimation.

	case types.ToolAskUser:
		li := types.NewPartida("", clarificationPrefix+task.SearchQuery, task.Unit, task.Quantity, 0)
		li.OriginalTask = task.SearchQuery
		li.Note = decision.Reasoning
		li.IsEstimate = true
		logging.Resolver("Subtask %q needs clarification, emitting placeholder", task.SearchQuery)
		return li

	case types.ToolEstimation:
		return o.estimate(ctx, task)
	}

	if li, ok := o.decompose(ctx, task, chapterContext); ok {
		return li
	}
	return o.estimate(ctx, task)
}

// decompose attempts the assembly fallback: a compound task priced as the sum
// of its decomposed sub-items, flattened into one line with a descriptive
// note. Nested children are not representable in the line-item shape.
func (o *Orchestrator) decompose(ctx context.Context, task types.Subtask, chapterContext string) (types.LineItem, bool) {
	items := o.analyst.Decompose(ctx, task.SearchQuery, chapterContext)
	if len(items) == 0 {
		return types.LineItem{}, false
	}

	var total float64
	parts := make([]string, 0, len(items))
	for _, it := range items {
		unitPrice := o.groundSubItem(ctx, it, chapterContext)
		total += types.Round2(unitPrice * it.Quantity)
		parts = append(parts, fmt.Sprintf("%s (%.2f %s x %.2f EUR)", it.Concept, it.Quantity, it.Unit, unitPrice))
	}

	li := types.NewPartida("", task.SearchQuery, "ud", 1, types.Round2(total))
	li.OriginalTask = task.SearchQuery
	li.Note = "Conjunto compuesto por: " + strings.Join(parts, "; ")
	logging.Assembly("Flattened %d sub-items for %q into one line (%.2f EUR)", len(items), task.SearchQuery, li.TotalPrice)
	return li, true
}

// groundSubItem re-prices a decomposed sub-item against the catalogs,
// falling back to the analyst's own estimate when nothing matches.
func (o *Orchestrator) groundSubItem(ctx context.Context, it agents.DecomposedItem, chapterContext string) float64 {
	intent := types.IntentPartida
	if it.Type == types.TypeMaterial {
		intent = types.IntentMaterial
	}
	res := o.resolver.Resolve(ctx, types.TriageParameters{
		Query:   it.Concept,
		Intent:  intent,
		Context: chapterContext,
	})
	switch {
	case it.Type == types.TypeMaterial && res.Material != nil:
		return res.Material.Price
	case it.Type != types.TypeMaterial && res.Partida != nil && res.Partida.UnitPrice > 0:
		return res.Partida.UnitPrice
	}
	return it.UnitPrice
}

// estimate is the last resort. When even the estimation agent cannot produce
// a figure, the subtask becomes a zero-priced placeholder rather than an error.
func (o *Orchestrator) estimate(ctx context.Context, task types.Subtask) types.LineItem {
	price, reasoning, ok := o.estimator.Estimate(ctx, task.SearchQuery, task.Unit)
	if !ok {
		li := types.NewPartida("", task.SearchQuery, task.Unit, task.Quantity, 0)
		li.OriginalTask = task.SearchQuery
		li.Note = "Sin precio: estimacion no disponible"
		li.IsEstimate = true
		return li
	}

	li := types.NewPartida("", task.SearchQuery, task.Unit, task.Quantity, price)
	li.OriginalTask = task.SearchQuery
	li.Note = "Estimacion de mercado: " + reasoning
	li.IsEstimate = true
	return li
}
