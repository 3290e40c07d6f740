package agents

import (
	"context"
	"encoding/json"
	"strings"

	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// ARCHITECT (chapter planner)
// =============================================================================
// Alternative assembly front-end: derives named chapters from the narrative
// first, each with its own subtasks, so large projects come back grouped by
// trade instead of as one flat chapter.

const architectSystemPrompt = `You are a project architect structuring a
construction budget. Given a project description, group the implied work into
ordered chapters the way a Spanish budget is organized (Demoliciones,
Albanileria, Fontaneria, Electricidad, Carpinteria, Pintura...). Only create
chapters the project actually needs.

Each chapter lists its tasks with the same fields used for task extraction:
search_query, quantity, unit, reasoning.`

const architectSchema = `{
  "type": "object",
  "required": ["chapters"],
  "properties": {
    "chapters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "tasks"],
        "properties": {
          "name": {"type": "string"},
          "tasks": {
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
      }
    }
  }
}`

// ChapterPlan is one planned chapter with its unresolved tasks.
type ChapterPlan struct {
	Name  string          `json:"name"`
	Tasks []types.Subtask `json:"tasks"`
}

// Architect plans multi-chapter budget structure from a narrative.
type Architect struct {
	llm types.LLMClient
}

func NewArchitect(llm types.LLMClient) *Architect {
	return &Architect{llm: llm}
}

// PlanChapters derives named chapters from the narrative. An empty result
// means planning failed; callers fall back to single-chapter assembly.
func (a *Architect) PlanChapters(ctx context.Context, narrative string) []ChapterPlan {
	timer := logging.StartTimer(logging.CategoryAssembly, "plan_chapters")
	defer timer.Stop()

	raw, err := a.llm.CompleteWithSchema(ctx, architectSystemPrompt, narrative, architectSchema)
	if err != nil {
		logging.AssemblyWarn("Chapter planning failed: %v", err)
		return nil
	}

	var payload struct {
		Chapters []ChapterPlan `json:"chapters"`
	}
	if err := json.Unmarshal([]byte(types.ExtractJSON(raw)), &payload); err != nil {
		logging.AssemblyWarn("Malformed chapter plan: %v", err)
		return nil
	}

	plans := payload.Chapters[:0]
	for _, ch := range payload.Chapters {
		if strings.TrimSpace(ch.Name) == "" || len(ch.Tasks) == 0 {
			continue
		}
		tasks := ch.Tasks[:0]
		for _, st := range ch.Tasks {
			if strings.TrimSpace(st.SearchQuery) == "" {
				continue
			}
			if st.Quantity <= 0 {
				st.Quantity = 1
			}
			if st.Unit == "" {
				st.Unit = "ud"
			}
			tasks = append(tasks, st)
		}
		if len(tasks) == 0 {
			continue
		}
		ch.Tasks = tasks
		plans = append(plans, ch)
	}
	logging.Assembly("Planned %d chapters", len(plans))
	return plans
}
