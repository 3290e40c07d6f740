package agents

import (
	"context"
	"encoding/json"
	"strings"

	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// VALIDATION AGENT (advisory)
// =============================================================================
// Read-only coherence review of the assembled item list. Never blocks a
// budget: any failure degrades to "no report" with a warning log.

const validatorSystemPrompt = `You review a construction budget's line items
for coherence. Look for:
- missing dependent tasks (tiling without adhesive or grout, demolition
  without debris removal, plumbing rework without wall repair)
- logical contradictions between items
- missing preparation or finishing steps

Severity: "error" for a gap that would break the work on site, "warning" for
a likely omission, "info" for a suggestion. overall_score is 0-100 coherence.
An empty issues list with is_valid=true means the budget looks complete.`

const validatorSchema = `{
  "type": "object",
  "required": ["is_valid", "issues", "overall_score"],
  "properties": {
    "is_valid": {"type": "boolean"},
    "overall_score": {"type": "number"},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["severity", "message"],
        "properties": {
          "severity": {"type": "string", "enum": ["info", "warning", "error"]},
          "message": {"type": "string"},
          "suggestion": {"type": "string"}
        }
      }
    }
  }
}`

// Validator produces an advisory coherence report over item descriptions.
type Validator struct {
	llm types.LLMClient
}

func NewValidator(llm types.LLMClient) *Validator {
	return &Validator{llm: llm}
}

// Validate reviews the final item descriptions. Returns nil when the review
// could not be produced; callers treat nil as "no report".
func (v *Validator) Validate(ctx context.Context, itemDescriptions []string) *types.ValidationReport {
	if len(itemDescriptions) == 0 {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryValidation, "validate")
	defer timer.Stop()

	user := "Budget line items:\n- " + strings.Join(itemDescriptions, "\n- ")
	raw, err := v.llm.CompleteWithSchema(ctx, validatorSystemPrompt, user, validatorSchema)
	if err != nil {
		logging.ValidationWarn("Coherence review failed: %v", err)
		return nil
	}

	var report types.ValidationReport
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &report); err != nil {
		logging.ValidationWarn("Malformed coherence report: %v", err)
		return nil
	}
	logging.Validation("Coherence review: valid=%t score=%.0f issues=%d",
		report.IsValid, report.OverallScore, len(report.Issues))
	return &report
}
