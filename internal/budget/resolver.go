package budget

import (
	"context"
	"strings"

	"presupuestor/internal/catalog"
	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// BUDGET SEARCH RESOLVER
// =============================================================================
// Orchestrates labor + material catalog retrieval for one task: specific
// query first, generic fallback second, and normalizes the raw hits into a
// candidate partida shape. A hybrid result (both labor and material found)
// is the signal for reconciliation upstream.

// CatalogSearcher is the slice of the catalog store the resolver needs.
type CatalogSearcher interface {
	SearchLabor(ctx context.Context, query string, limit int, f catalog.Filters) []types.LaborCandidate
	SearchMaterials(ctx context.Context, query string, limit int, f catalog.Filters) []types.MaterialCandidate
}

// PartidaCandidate is a labor hit normalized for line-item construction.
type PartidaCandidate struct {
	Code        string
	Description string
	Unit        string
	UnitPrice   float64
	Breakdown   []types.BreakdownComponent
}

// Resolution is the outcome of one catalog search pass. Partida and Material
// may both be set (a hybrid match) or both nil (nothing found).
type Resolution struct {
	Partida    *PartidaCandidate
	Labor      *types.LaborCandidate
	Material   *types.MaterialCandidate
	Confidence float64
	Source     string
}

// Resolver runs catalog retrieval for single tasks.
type Resolver struct {
	store CatalogSearcher
	topK  int
}

func NewResolver(store CatalogSearcher, topK int) *Resolver {
	if topK <= 0 {
		topK = 5
	}
	return &Resolver{store: store, topK: topK}
}

// Resolve searches the catalogs per the triage parameters. Intent gates which
// catalogs are consulted; a blank intent searches both.
func (r *Resolver) Resolve(ctx context.Context, p types.TriageParameters) Resolution {
	intent := p.Intent
	if intent == "" {
		intent = types.IntentBoth
	}
	f := catalog.Filters{Context: p.Context}

	var res Resolution

	wantLabor := intent == types.IntentBoth || intent == types.IntentPartida ||
		(intent == types.IntentMaterial && strings.TrimSpace(p.GenericQuery) != "")
	if wantLabor {
		query := p.Query
		if intent == types.IntentMaterial {
			// A branded product searches labor only through its generic phrase.
			query = p.GenericQuery
		}
		hits := r.store.SearchLabor(ctx, query, r.topK, f)
		if len(hits) == 0 && query == p.Query && strings.TrimSpace(p.GenericQuery) != "" {
			logging.Resolver("No labor hit for %q, retrying generic %q", p.Query, p.GenericQuery)
			hits = r.store.SearchLabor(ctx, p.GenericQuery, r.topK, f)
		}
		if len(hits) > 0 {
			labor := hits[0]
			partida := mapPartida(labor)
			res.Labor = &labor
			res.Partida = &partida
		}
	}

	if intent == types.IntentBoth || intent == types.IntentMaterial {
		if hits := r.store.SearchMaterials(ctx, p.Query, r.topK, f); len(hits) > 0 {
			res.Material = &hits[0]
		}
	}

	switch {
	case res.Partida != nil && res.Material != nil:
		res.Confidence, res.Source = 0.9, "hybrid"
	case res.Partida != nil:
		res.Confidence, res.Source = 0.9, "price_book"
	case res.Material != nil:
		res.Confidence, res.Source = 0.8, "material_catalog"
	default:
		res.Confidence, res.Source = 0, "none"
	}
	logging.Resolver("Resolved %q: source=%s confidence=%.1f", p.Query, res.Source, res.Confidence)
	return res
}

// mapPartida normalizes a raw price-book hit. When the catalog total is
// missing it is reconstructed from the breakdown components.
func mapPartida(labor types.LaborCandidate) PartidaCandidate {
	unitPrice := labor.PriceTotal
	if unitPrice <= 0 {
		for _, c := range labor.Breakdown {
			unitPrice += c.Price * c.Quantity
		}
		unitPrice = types.Round2(unitPrice)
	}

	var breakdown []types.BreakdownComponent
	for _, c := range labor.Breakdown {
		breakdown = append(breakdown, types.BreakdownComponent{
			Concept: c.Description,
			Type:    ComponentTypeForCode(c.Code),
			Price:   c.Price,
			Yield:   c.Quantity,
			Total:   types.Round2(c.Price * c.Quantity),
		})
	}

	return PartidaCandidate{
		Code:        labor.Code,
		Description: labor.Description,
		Unit:        labor.Unit,
		UnitPrice:   unitPrice,
		Breakdown:   breakdown,
	}
}

// ComponentTypeForCode classifies a breakdown component by its price-book
// code prefix: "mo" (mano de obra) and "mq" (maquinaria) are labor cost,
// anything else is material cost.
func ComponentTypeForCode(code string) types.ComponentType {
	lower := strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(lower, "mo") || strings.HasPrefix(lower, "mq") {
		return types.ComponentLabor
	}
	return types.ComponentMaterial
}
