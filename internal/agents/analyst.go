package agents

import (
	"context"
	"encoding/json"
	"strings"

	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// CONSTRUCTION ANALYST (decomposer / reconciler)
// =============================================================================
// Two modes over the same agent:
//   - Decompose: break a compound task into priced sub-items.
//   - Reconcile: merge a labor hit and a material hit for the same physical
//     task into one line whose unit price uses the real quoted material cost.
// Both modes degrade to "nothing" on failure; the orchestrator falls back.

const decomposeSystemPrompt = `You are a senior construction cost analyst.
Given a compound task, decompose it into the realistic ordered list of
sub-tasks a Spanish contractor would price: demolition, preparation,
materials, labor, finishing, sealing. Include waste factors where the trade
normally applies them (ceramics ~5-10%, wood ~8%).

Each sub-item carries:
- concept: short Spanish description
- type: "PARTIDA" for work, "MATERIAL" for a purchasable product
- unit: measurement unit (m2, m, ud, h, kg)
- quantity: amount needed for the stated task
- unit_price: realistic current market price in EUR

Return an empty items list only when the task genuinely cannot be decomposed.`

const decomposeSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["concept", "type", "unit", "quantity", "unit_price"],
        "properties": {
          "concept": {"type": "string"},
          "type": {"type": "string", "enum": ["PARTIDA", "MATERIAL"]},
          "unit": {"type": "string"},
          "quantity": {"type": "number"},
          "unit_price": {"type": "number"}
        }
      }
    }
  }
}`

const reconcileSystemPrompt = `You are a senior construction cost analyst.
You receive a price-book labor item (with its cost breakdown) and a real
material quote that both describe the same physical task. Produce exactly one
merged work item:

- Substitute the quoted material price for the breakdown's generic material
  components, keeping the original yield quantities and waste factors.
- Keep labor components (codes starting "mo" or "mq") unchanged.
- unit_price is the sum of component totals after substitution.
- description should mention the concrete product being installed.

Return the merged item with its full adjusted breakdown.`

const reconcileSchema = `{
  "type": "object",
  "required": ["description", "unit", "unit_price", "breakdown"],
  "properties": {
    "description": {"type": "string"},
    "unit": {"type": "string"},
    "unit_price": {"type": "number"},
    "breakdown": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["concept", "type", "price", "yield"],
        "properties": {
          "concept": {"type": "string"},
          "type": {"type": "string", "enum": ["LABOR", "MATERIAL"]},
          "price": {"type": "number"},
          "yield": {"type": "number"},
          "waste": {"type": "number"}
        }
      }
    }
  }
}`

// DecomposedItem is one sub-item of a compound task, priced but not yet a
// LineItem: the orchestrator decides how to materialize it.
type DecomposedItem struct {
	Concept   string         `json:"concept"`
	Type      types.ItemType `json:"type"`
	Unit      string         `json:"unit"`
	Quantity  float64        `json:"quantity"`
	UnitPrice float64        `json:"unit_price"`
}

// Total returns the rounded cost contribution of this sub-item.
func (d DecomposedItem) Total() float64 {
	return types.Round2(d.UnitPrice * d.Quantity)
}

// ReconciledItem is the single merged result of a hybrid labor+material match.
type ReconciledItem struct {
	Description string                     `json:"description"`
	Unit        string                     `json:"unit"`
	UnitPrice   float64                    `json:"unit_price"`
	Breakdown   []types.BreakdownComponent `json:"breakdown"`
}

// Analyst decomposes compound tasks and reconciles hybrid catalog matches.
type Analyst struct {
	llm types.LLMClient
}

func NewAnalyst(llm types.LLMClient) *Analyst {
	return &Analyst{llm: llm}
}

// Decompose breaks a compound task into priced sub-items. An empty slice
// means decomposition failed or produced nothing usable; it is never an
// error the caller must handle beyond falling back.
func (a *Analyst) Decompose(ctx context.Context, description, chapterContext string) []DecomposedItem {
	timer := logging.StartTimer(logging.CategoryAnalyst, "decompose")
	defer timer.Stop()

	user := description
	if chapterContext != "" {
		user = "Chapter context: " + chapterContext + "\n\nTask: " + description
	}
	raw, err := a.llm.CompleteWithSchema(ctx, decomposeSystemPrompt, user, decomposeSchema)
	if err != nil {
		logging.AnalystDebug("Decomposition call failed for %q: %v", description, err)
		return nil
	}

	var payload struct {
		Items []DecomposedItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &payload); err != nil {
		logging.AnalystDebug("Malformed decomposition for %q: %v", description, err)
		return nil
	}

	items := payload.Items[:0]
	for _, it := range payload.Items {
		if strings.TrimSpace(it.Concept) == "" || it.Quantity <= 0 || it.UnitPrice < 0 {
			continue
		}
		if it.Type != types.TypeMaterial {
			it.Type = types.TypePartida
		}
		items = append(items, it)
	}
	logging.Analyst("Decomposed %q into %d sub-items", description, len(items))
	return items
}

// Reconcile merges a labor candidate and a material candidate into one item.
// Returns (zero, false) on any failure so the caller can fall back to the
// plain labor match.
func (a *Analyst) Reconcile(ctx context.Context, labor types.LaborCandidate, material types.MaterialCandidate) (ReconciledItem, bool) {
	timer := logging.StartTimer(logging.CategoryAnalyst, "reconcile")
	defer timer.Stop()

	input, err := json.Marshal(map[string]interface{}{
		"partida":  labor,
		"material": material,
	})
	if err != nil {
		return ReconciledItem{}, false
	}

	raw, err := a.llm.CompleteWithSchema(ctx, reconcileSystemPrompt, string(input), reconcileSchema)
	if err != nil {
		logging.AnalystDebug("Reconciliation call failed for %q + %q: %v", labor.Code, material.SKU, err)
		return ReconciledItem{}, false
	}

	var item ReconciledItem
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &item); err != nil {
		logging.AnalystDebug("Malformed reconciliation for %q: %v", labor.Code, err)
		return ReconciledItem{}, false
	}
	if strings.TrimSpace(item.Description) == "" || item.UnitPrice <= 0 {
		return ReconciledItem{}, false
	}

	for i := range item.Breakdown {
		c := &item.Breakdown[i]
		if c.Total == 0 {
			c.Total = types.Round2(c.Price * c.Yield)
		}
	}
	if item.Unit == "" {
		item.Unit = labor.Unit
	}
	logging.Analyst("Reconciled %s + %s -> %.2f EUR/%s", labor.Code, material.SKU, item.UnitPrice, item.Unit)
	return item, true
}
