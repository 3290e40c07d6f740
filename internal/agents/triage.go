package agents

import (
	"context"
	"encoding/json"
	"strings"

	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// TRIAGE ROUTER
// =============================================================================
// Classifies a single task description into one of three handling routes.
// This component never fails: any generation or parse problem degrades to an
// askUser decision so the pipeline keeps moving.

const triageSystemPrompt = `You route construction tasks to the right pricing tool.

Tools:
1. budgetSearchAgent: standard construction work, including branded materials
   ("azulejo Keraben", "ventana PVC"). Set parameters.intent:
   - "PARTIDA" when it is labor with generic material
   - "MATERIAL" when a specific brand/product is named; also set
     parameters.generic_query to the generic labor phrase for that product
     (e.g. "azulejo Keraben 30x60" -> generic_query "alicatado con azulejo ceramico")
   - "BOTH" when both a labor task and a concrete product matter
2. estimationAgent: artisanal or bespoke work with no standard market price
   (hand-painted mural, custom forge work).
3. askUser: the request is too vague to search at all ("cambiar eso").

Prefer budgetSearchAgent whenever a catalog search could plausibly succeed.
Always fill parameters.query with the best search phrase.`

const triageSchema = `{
  "type": "object",
  "required": ["tool", "reasoning", "parameters"],
  "properties": {
    "tool": {
      "type": "string",
      "enum": ["budgetSearchAgent", "estimationAgent", "askUser"]
    },
    "reasoning": {"type": "string"},
    "parameters": {
      "type": "object",
      "required": ["query"],
      "properties": {
        "query": {"type": "string"},
        "generic_query": {"type": "string"},
        "intent": {"type": "string", "enum": ["PARTIDA", "MATERIAL", "BOTH"]},
        "context": {"type": "string"}
      }
    }
  }
}`

// Triage decides how a single task should be priced.
type Triage struct {
	llm types.LLMClient
}

func NewTriage(llm types.LLMClient) *Triage {
	return &Triage{llm: llm}
}

// Classify returns a routing decision for taskDescription. It never returns
// an error: failures fall back to askUser with the failure noted in the
// decision's reasoning.
func (t *Triage) Classify(ctx context.Context, taskDescription string) types.TriageDecision {
	timer := logging.StartTimer(logging.CategoryTriage, "classify")
	defer timer.Stop()

	raw, err := t.llm.CompleteWithSchema(ctx, triageSystemPrompt, taskDescription, triageSchema)
	if err != nil {
		logging.TriageDebug("Classification call failed for %q: %v", taskDescription, err)
		return askUserFallback(taskDescription, "classification failed: "+err.Error())
	}

	var decision types.TriageDecision
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &decision); err != nil {
		logging.TriageDebug("Malformed triage response for %q: %v", taskDescription, err)
		return askUserFallback(taskDescription, "malformed classification output")
	}

	switch decision.Tool {
	case types.ToolBudgetSearch, types.ToolEstimation, types.ToolAskUser:
	default:
		logging.TriageDebug("Unknown triage tool %q for %q", decision.Tool, taskDescription)
		return askUserFallback(taskDescription, "unknown tool "+string(decision.Tool))
	}

	if strings.TrimSpace(decision.Parameters.Query) == "" {
		decision.Parameters.Query = taskDescription
	}
	logging.Triage("Routed %q -> %s (intent=%s)", taskDescription, decision.Tool, decision.Parameters.Intent)
	return decision
}

func askUserFallback(taskDescription, reason string) types.TriageDecision {
	return types.TriageDecision{
		Tool:      types.ToolAskUser,
		Reasoning: reason,
		Parameters: types.TriageParameters{
			Query: taskDescription,
		},
	}
}
