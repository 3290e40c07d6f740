package agents

import (
	"context"
	"encoding/json"

	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// ESTIMATION AGENT (last resort)
// =============================================================================
// Freeform market-price guess for work nothing else could price. Best effort:
// a failure here means the subtask becomes a zero-priced placeholder.

const estimatorSystemPrompt = `You estimate Spanish construction market prices.
Given a task with its unit, return your best realistic unit price in EUR for
the current market. Be conservative rather than optimistic. Briefly justify
the figure.`

const estimatorSchema = `{
  "type": "object",
  "required": ["unit_price", "reasoning"],
  "properties": {
    "unit_price": {"type": "number"},
    "reasoning": {"type": "string"}
  }
}`

// Estimator produces freeform unit-price guesses.
type Estimator struct {
	llm types.LLMClient
}

func NewEstimator(llm types.LLMClient) *Estimator {
	return &Estimator{llm: llm}
}

// Estimate returns a best-effort unit price for the task, with the model's
// justification. ok is false when no usable estimate could be produced.
func (e *Estimator) Estimate(ctx context.Context, description, unit string) (unitPrice float64, reasoning string, ok bool) {
	timer := logging.StartTimer(logging.CategoryAnalyst, "estimate")
	defer timer.Stop()

	user := "Task: " + description + "\nUnit: " + unit
	raw, err := e.llm.CompleteWithSchema(ctx, estimatorSystemPrompt, user, estimatorSchema)
	if err != nil {
		logging.AnalystDebug("Estimation call failed for %q: %v", description, err)
		return 0, "", false
	}

	var payload struct {
		UnitPrice float64 `json:"unit_price"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &payload); err != nil {
		logging.AnalystDebug("Malformed estimate for %q: %v", description, err)
		return 0, "", false
	}
	if payload.UnitPrice <= 0 {
		return 0, "", false
	}
	logging.Analyst("Estimated %q at %.2f EUR/%s", description, payload.UnitPrice, unit)
	return payload.UnitPrice, payload.Reasoning, true
}
