package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// SUBTASK EXTRACTOR
// =============================================================================
// Turns a free-text project narrative into discrete, quantified subtasks.
// This is the only agent whose failure is fatal for budget generation: a
// narrative that yields zero subtasks cannot be priced.

const extractorSystemPrompt = `You are a quantity surveyor for a Spanish construction company.
Given a project description, extract every distinct construction task it implies.

For each task produce:
- search_query: a concise catalog search phrase (Spanish, include material and action)
- quantity: the numeric amount stated or clearly implied (default 1 when absent)
- unit: the measurement unit (m2, m, ud, h, kg...); use "ud" when unclear
- reasoning: one short sentence on why this task exists

Rules:
- Do not invent tasks the description does not imply.
- Split compound requests ("alicatar y pintar el baño") into separate tasks.
- Keep quantities in the unit the text uses; never convert units.`

const extractorSchema = `{
  "type": "object",
  "required": ["subtasks"],
  "properties": {
    "subtasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["search_query", "quantity", "unit"],
        "properties": {
          "search_query": {"type": "string"},
          "quantity": {"type": "number"},
          "unit": {"type": "string"},
          "reasoning": {"type": "string"}
        }
      }
    }
  }
}`

// Extractor derives Subtasks from a narrative via structured LLM output.
type Extractor struct {
	llm types.LLMClient
}

func NewExtractor(llm types.LLMClient) *Extractor {
	return &Extractor{llm: llm}
}

type extractorPayload struct {
	Subtasks []types.Subtask `json:"subtasks"`
}

// Extract returns the subtasks implied by narrative. An empty result is
// returned as-is; the caller decides whether that is fatal.
func (e *Extractor) Extract(ctx context.Context, narrative string) ([]types.Subtask, error) {
	if strings.TrimSpace(narrative) == "" {
		return nil, fmt.Errorf("empty narrative")
	}

	timer := logging.StartTimer(logging.CategoryAnalyst, "extract_subtasks")
	raw, err := e.llm.CompleteWithSchema(ctx, extractorSystemPrompt, narrative, extractorSchema)
	timer.Stop()
	if err != nil {
		return nil, fmt.Errorf("subtask extraction: %w", err)
	}

	var payload extractorPayload
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("subtask extraction: malformed response: %w", err)
	}

	out := payload.Subtasks[:0]
	for _, st := range payload.Subtasks {
		if strings.TrimSpace(st.SearchQuery) == "" {
			continue
		}
		if st.Quantity <= 0 {
			st.Quantity = 1
		}
		if strings.TrimSpace(st.Unit) == "" {
			st.Unit = "ud"
		}
		out = append(out, st)
	}
	logging.Analyst("Extracted %d subtasks from narrative (%d chars)", len(out), len(narrative))
	return out, nil
}
