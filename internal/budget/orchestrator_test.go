package budget

import (
	"context"
	"strings"
	"testing"

	"presupuestor/internal/agents"
	"presupuestor/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTriage struct {
	decision types.TriageDecision
}

func (f *fakeTriage) Classify(ctx context.Context, task string) types.TriageDecision {
	d := f.decision
	if d.Parameters.Query == "" {
		d.Parameters.Query = task
	}
	return d
}

type fakeResolution struct {
	res Resolution
}

func (f *fakeResolution) Resolve(ctx context.Context, p types.TriageParameters) Resolution {
	return f.res
}

type fakeAnalyst struct {
	decomposed  []agents.DecomposedItem
	reconciled  agents.ReconciledItem
	reconcileOK bool
}

func (f *fakeAnalyst) Decompose(ctx context.Context, description, chapterContext string) []agents.DecomposedItem {
	return f.decomposed
}

func (f *fakeAnalyst) Reconcile(ctx context.Context, labor types.LaborCandidate, material types.MaterialCandidate) (agents.ReconciledItem, bool) {
	return f.reconciled, f.reconcileOK
}

type fakeEstimator struct {
	price  float64
	reason string
	ok     bool
}

func (f *fakeEstimator) Estimate(ctx context.Context, description, unit string) (float64, string, bool) {
	return f.price, f.reason, f.ok
}

func searchDecision(intent types.SearchIntent) types.TriageDecision {
	return types.TriageDecision{
		Tool:       types.ToolBudgetSearch,
		Parameters: types.TriageParameters{Intent: intent},
	}
}

func TestResolveItem_CatalogMatch(t *testing.T) {
	// "Instalar 20 m2 de parquet de roble" against a 45.00 EUR/m2 price-book hit.
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentPartida)},
		&fakeResolution{res: Resolution{
			Partida: &PartidaCandidate{Code: "PQ-01", Description: "Instalacion de parquet de roble", Unit: "m2", UnitPrice: 45.00},
			Labor:   &types.LaborCandidate{Code: "PQ-01"},
		}},
		&fakeAnalyst{},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{
		SearchQuery: "instalacion de parquet de roble", Quantity: 20, Unit: "m2",
	}, "")

	assert.Equal(t, types.TypePartida, item.Type)
	assert.Equal(t, 45.00, item.UnitPrice)
	assert.Equal(t, 900.00, item.TotalPrice)
	assert.Equal(t, "PQ-01", item.Code)
	assert.False(t, item.IsEstimate)
	assert.NotEmpty(t, item.Note)
}

func TestResolveItem_HybridProducesSinglePartida(t *testing.T) {
	labor := types.LaborCandidate{Code: "RA-010", Unit: "m2", PriceTotal: 28.50}
	material := types.MaterialCandidate{SKU: "KB-2210", Name: "Azulejo Keraben", Price: 18.40}
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentBoth)},
		&fakeResolution{res: Resolution{
			Partida:  &PartidaCandidate{Code: "RA-010", Unit: "m2", UnitPrice: 28.50},
			Labor:    &labor,
			Material: &material,
		}},
		&fakeAnalyst{
			reconcileOK: true,
			reconciled: agents.ReconciledItem{
				Description: "Alicatado con azulejo Keraben 30x60",
				Unit:        "m2",
				UnitPrice:   34.93,
			},
		},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{
		SearchQuery: "azulejo ceramico Keraben", Quantity: 10, Unit: "m2",
	}, "")

	assert.Equal(t, types.TypePartida, item.Type, "hybrid match must collapse to one PARTIDA")
	assert.Equal(t, 34.93, item.UnitPrice)
	assert.NotEqual(t, labor.PriceTotal, item.UnitPrice, "reconciled price reflects the real material cost")
	assert.Equal(t, 349.30, item.TotalPrice)
	assert.Contains(t, item.Note, "KB-2210")
}

func TestResolveItem_HybridReconcileFailureFallsBackToLabor(t *testing.T) {
	labor := types.LaborCandidate{Code: "RA-010", Unit: "m2", PriceTotal: 28.50}
	material := types.MaterialCandidate{SKU: "KB-2210"}
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentBoth)},
		&fakeResolution{res: Resolution{
			Partida:  &PartidaCandidate{Code: "RA-010", Description: "Alicatado", Unit: "m2", UnitPrice: 28.50},
			Labor:    &labor,
			Material: &material,
		}},
		&fakeAnalyst{reconcileOK: false},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "alicatado", Quantity: 10, Unit: "m2"}, "")
	assert.Equal(t, types.TypePartida, item.Type)
	assert.Equal(t, 28.50, item.UnitPrice)
}

func TestResolveItem_MaterialOnly(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentMaterial)},
		&fakeResolution{res: Resolution{
			Material: &types.MaterialCandidate{SKU: "GR-77", Name: "Grifo monomando", Description: "Grifo cromado", Unit: "ud", Price: 54.90, Merchant: "Saneamientos Lopez"},
		}},
		&fakeAnalyst{},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "grifo monomando", Quantity: 2, Unit: "ud"}, "")
	assert.Equal(t, types.TypeMaterial, item.Type)
	assert.Equal(t, "GR-77", item.SKU)
	assert.Equal(t, "Saneamientos Lopez", item.Merchant)
	assert.Equal(t, 109.80, item.TotalPrice)
}

func TestResolveItem_AskUserPlaceholder(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: types.TriageDecision{Tool: types.ToolAskUser, Reasoning: "too vague"}},
		&fakeResolution{},
		&fakeAnalyst{},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "cambiar eso", Quantity: 1, Unit: "ud"}, "")
	assert.Equal(t, types.TypePartida, item.Type)
	assert.Zero(t, item.UnitPrice)
	assert.Zero(t, item.TotalPrice)
	assert.True(t, item.IsEstimate)
	assert.True(t, strings.HasPrefix(item.Description, clarificationPrefix))
}

func TestResolveItem_DecompositionAssembly(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentBoth)},
		&fakeResolution{}, // nothing found in either catalog
		&fakeAnalyst{decomposed: []agents.DecomposedItem{
			{Concept: "Demolicion de alicatado", Type: types.TypePartida, Unit: "m2", Quantity: 10, UnitPrice: 9.5},
			{Concept: "Azulejo ceramico", Type: types.TypeMaterial, Unit: "m2", Quantity: 10.5, UnitPrice: 14.0},
		}},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "reformar bano", Quantity: 1, Unit: "ud"}, "")
	assert.Equal(t, types.TypePartida, item.Type)
	assert.Equal(t, 1.0, item.Quantity, "assemblies are flattened into one unit line")
	assert.Equal(t, 242.0, item.TotalPrice)
	assert.Contains(t, item.Note, "Demolicion de alicatado")
	assert.Contains(t, item.Note, "Azulejo ceramico")
}

type keyedResolution struct {
	byQuery map[string]Resolution
}

func (f *keyedResolution) Resolve(ctx context.Context, p types.TriageParameters) Resolution {
	return f.byQuery[p.Query]
}

func TestResolveItem_DecompositionGroundsSubItemsInCatalog(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentBoth)},
		&keyedResolution{byQuery: map[string]Resolution{
			// The assembly itself has no catalog match, but one sub-item does.
			"Demolicion de alicatado": {
				Partida: &PartidaCandidate{Code: "DM-040", Unit: "m2", UnitPrice: 11.0},
				Labor:   &types.LaborCandidate{Code: "DM-040"},
			},
		}},
		&fakeAnalyst{decomposed: []agents.DecomposedItem{
			{Concept: "Demolicion de alicatado", Type: types.TypePartida, Unit: "m2", Quantity: 10, UnitPrice: 9.5},
			{Concept: "Azulejo ceramico", Type: types.TypeMaterial, Unit: "m2", Quantity: 10.5, UnitPrice: 14.0},
		}},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "reformar bano", Quantity: 1, Unit: "ud"}, "")
	// 10 x 11.0 from the price book plus 10.5 x 14.0 from the analyst.
	assert.Equal(t, 257.0, item.TotalPrice)
	assert.Contains(t, item.Note, "11.00 EUR")
}

func TestResolveItem_EstimationRoute(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: types.TriageDecision{Tool: types.ToolEstimation}},
		&fakeResolution{},
		&fakeAnalyst{},
		&fakeEstimator{price: 850, reason: "mural artists charge 700-1000 EUR", ok: true},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "mural pintado a mano", Quantity: 1, Unit: "ud"}, "")
	assert.True(t, item.IsEstimate)
	assert.Equal(t, 850.0, item.UnitPrice)
	assert.Contains(t, item.Note, "mural artists")
}

func TestResolveItem_EverythingFailsStillReturnsOneItem(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentBoth)},
		&fakeResolution{}, // no catalog hits
		&fakeAnalyst{},    // decomposition returns nothing
		&fakeEstimator{},  // estimation fails
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "tarea imposible", Quantity: 3, Unit: "ud"}, "")
	require.NotEmpty(t, item.ID)
	assert.Equal(t, types.TypePartida, item.Type)
	assert.Zero(t, item.TotalPrice)
	assert.True(t, item.IsEstimate)
	assert.Equal(t, "tarea imposible", item.OriginalTask)
}

func TestResolveItem_IdempotentExceptID(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentPartida)},
		&fakeResolution{res: Resolution{
			Partida: &PartidaCandidate{Code: "PQ-01", Description: "Instalacion de parquet", Unit: "m2", UnitPrice: 45.00},
			Labor:   &types.LaborCandidate{Code: "PQ-01"},
		}},
		&fakeAnalyst{},
		&fakeEstimator{},
	)
	task := types.Subtask{SearchQuery: "parquet", Quantity: 20, Unit: "m2"}

	first := o.ResolveItem(context.Background(), task, "")
	second := o.ResolveItem(context.Background(), task, "")

	assert.NotEqual(t, first.ID, second.ID)
	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(types.LineItem{}, "ID")); diff != "" {
		t.Errorf("resolution is not idempotent (-first +second):\n%s", diff)
	}
}

func TestResolveItem_TotalPriceInvariant(t *testing.T) {
	o := NewOrchestrator(
		&fakeTriage{decision: searchDecision(types.IntentPartida)},
		&fakeResolution{res: Resolution{
			Partida: &PartidaCandidate{Code: "X", Unit: "m2", UnitPrice: 13.33},
			Labor:   &types.LaborCandidate{Code: "X"},
		}},
		&fakeAnalyst{},
		&fakeEstimator{},
	)

	item := o.ResolveItem(context.Background(), types.Subtask{SearchQuery: "x", Quantity: 3, Unit: "m2"}, "")
	assert.Equal(t, types.Round2(item.UnitPrice*item.Quantity), item.TotalPrice)
}
