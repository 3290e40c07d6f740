// Package types defines the domain model shared by the budget pipeline:
// subtasks, catalog candidates, the LineItem tagged union, chapters and the
// financial breakdown. Persistence of these values is out of scope here;
// the pipeline produces plain aggregates and hands them off.
package types

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SUBTASKS
// =============================================================================

// Subtask is one unit of work extracted from a project narrative.
// It is ephemeral: consumed exactly once per budget generation.
type Subtask struct {
	SearchQuery string  `json:"search_query"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// =============================================================================
// CATALOG CANDIDATES (immutable reference data)
// =============================================================================

// CandidateComponent is one row of a price-book cost breakdown.
type CandidateComponent struct {
	Description string  `json:"description"`
	Code        string  `json:"code"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
}

// LaborCandidate is a price-book hit: a standardized labor/task price,
// optionally backed by a material+labor cost breakdown.
type LaborCandidate struct {
	Code          string               `json:"code"`
	Description   string               `json:"description"`
	Unit          string               `json:"unit"`
	PriceTotal    float64              `json:"price_total"`
	PriceLabor    float64              `json:"price_labor,omitempty"`
	PriceMaterial float64              `json:"price_material,omitempty"`
	Breakdown     []CandidateComponent `json:"breakdown,omitempty"`
}

// MaterialCandidate is a material-catalog hit: a purchasable product.
// Merchant names the supplier the price was sourced from.
type MaterialCandidate struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Unit        string  `json:"unit"`
	Category    string  `json:"category"`
	Merchant    string  `json:"merchant,omitempty"`
}

// =============================================================================
// LINE ITEMS (tagged union: PARTIDA | MATERIAL)
// =============================================================================

// ItemType discriminates the LineItem union.
type ItemType string

const (
	TypePartida  ItemType = "PARTIDA"
	TypeMaterial ItemType = "MATERIAL"
)

// ComponentType classifies a breakdown component as labor or material cost.
type ComponentType string

const (
	ComponentLabor    ComponentType = "LABOR"
	ComponentMaterial ComponentType = "MATERIAL"
)

// BreakdownComponent is one cost component backing a PARTIDA unit price.
// Invariant: Total == Price * Yield.
type BreakdownComponent struct {
	Concept string        `json:"concept"`
	Type    ComponentType `json:"type"`
	Price   float64       `json:"price"`
	Yield   float64       `json:"yield"`
	Total   float64       `json:"total"`
	Waste   float64       `json:"waste,omitempty"`
}

// LineItem is a resolved budget line. Exactly one variant is populated,
// selected by Type: PARTIDA uses Code/Breakdown, MATERIAL uses SKU/Name/
// Merchant. Invariant: TotalPrice == Round2(UnitPrice * Quantity).
type LineItem struct {
	ID   string   `json:"id"`
	Type ItemType `json:"type"`

	// PARTIDA fields
	Code      string               `json:"code,omitempty"`
	Breakdown []BreakdownComponent `json:"breakdown,omitempty"`

	// MATERIAL fields
	SKU      string `json:"sku,omitempty"`
	Name     string `json:"name,omitempty"`
	Merchant string `json:"merchant,omitempty"`

	Description  string  `json:"description"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	TotalPrice   float64 `json:"total_price"`
	OriginalTask string  `json:"original_task"`
	Note         string  `json:"note,omitempty"`
	IsEstimate   bool    `json:"is_estimate,omitempty"`
}

// NewPartida builds a PARTIDA line item with a fresh id and a consistent
// total. All PARTIDA construction goes through here so the price invariant
// holds at creation.
func NewPartida(code, description, unit string, quantity, unitPrice float64) LineItem {
	return LineItem{
		ID:          uuid.NewString(),
		Type:        TypePartida,
		Code:        code,
		Description: description,
		Unit:        unit,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  Round2(unitPrice * quantity),
	}
}

// NewMaterial builds a MATERIAL line item with a fresh id and a consistent total.
func NewMaterial(sku, name, description, unit string, quantity, unitPrice float64) LineItem {
	return LineItem{
		ID:          uuid.NewString(),
		Type:        TypeMaterial,
		SKU:         sku,
		Name:        name,
		Description: description,
		Unit:        unit,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  Round2(unitPrice * quantity),
	}
}

// Reprice sets a new unit price and recomputes the total, keeping the
// TotalPrice invariant after mutation.
func (li *LineItem) Reprice(unitPrice float64) {
	li.UnitPrice = unitPrice
	li.TotalPrice = Round2(unitPrice * li.Quantity)
}

// =============================================================================
// CHAPTERS AND FINANCIAL ROLL-UP
// =============================================================================

// Chapter groups line items. Invariant: TotalPrice == sum of item totals.
type Chapter struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Order      int        `json:"order"`
	Items      []LineItem `json:"items"`
	TotalPrice float64    `json:"total_price"`
}

// NewChapter builds a chapter and computes its total from the items.
func NewChapter(name string, order int, items []LineItem) Chapter {
	var total float64
	for _, it := range items {
		total += it.TotalPrice
	}
	return Chapter{
		ID:         uuid.NewString(),
		Name:       name,
		Order:      order,
		Items:      items,
		TotalPrice: Round2(total),
	}
}

// CostBreakdown is the client-facing financial roll-up, derived entirely
// from the raw execution cost and a BudgetConfig.
// Invariant: Total == MaterialExecutionPrice + OverheadExpenses +
// IndustrialBenefit + Tax + GlobalAdjustment (within float tolerance).
type CostBreakdown struct {
	MaterialExecutionPrice float64 `json:"material_execution_price"`
	OverheadExpenses       float64 `json:"overhead_expenses"`
	IndustrialBenefit      float64 `json:"industrial_benefit"`
	Tax                    float64 `json:"tax"`
	GlobalAdjustment       float64 `json:"global_adjustment"`
	Total                  float64 `json:"total"`
}

// Budget is the final aggregate handed to the caller (and, downstream, to
// persistence, which is external to this core).
type Budget struct {
	ID             string            `json:"id"`
	Narrative      string            `json:"narrative"`
	Chapters       []Chapter         `json:"chapters"`
	CostBreakdown  CostBreakdown     `json:"cost_breakdown"`
	TotalEstimated float64           `json:"total_estimated"`
	Validation     *ValidationReport `json:"validation,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// =============================================================================
// AGENT DECISION SHAPES (ephemeral)
// =============================================================================

// TriageTool identifies the route chosen for a single task.
type TriageTool string

const (
	ToolBudgetSearch TriageTool = "budgetSearchAgent"
	ToolEstimation   TriageTool = "estimationAgent"
	ToolAskUser      TriageTool = "askUser"
)

// SearchIntent narrows what the search resolver should look for.
type SearchIntent string

const (
	IntentPartida  SearchIntent = "PARTIDA"
	IntentMaterial SearchIntent = "MATERIAL"
	IntentBoth     SearchIntent = "BOTH"
)

// TriageParameters carries the routing payload for the selected tool.
type TriageParameters struct {
	Query        string       `json:"query"`
	GenericQuery string       `json:"generic_query,omitempty"`
	Intent       SearchIntent `json:"intent,omitempty"`
	Context      string       `json:"context,omitempty"`
}

// TriageDecision is the router's classification of one task description.
type TriageDecision struct {
	Tool       TriageTool       `json:"tool"`
	Reasoning  string           `json:"reasoning"`
	Parameters TriageParameters `json:"parameters"`
}

// =============================================================================
// VALIDATION (advisory only)
// =============================================================================

// IssueSeverity grades a coherence finding.
type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// ValidationIssue is one finding from the coherence review.
type ValidationIssue struct {
	Severity   IssueSeverity `json:"severity"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// ValidationReport is advisory: attached to a budget, never blocks assembly.
type ValidationReport struct {
	IsValid      bool              `json:"is_valid"`
	Issues       []ValidationIssue `json:"issues"`
	OverallScore float64           `json:"overall_score"`
}

// =============================================================================
// NUMERIC HELPERS
// =============================================================================

// Round2 rounds to two decimals, the resolution of every stored price.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
