package types

import "context"

// LLMClient is the reasoning/generation capability the agents depend on.
// Implementations must honor the context deadline and return an error rather
// than hang; agents translate errors into their own fallback behavior, so a
// failing client never takes down a budget generation on its own.
type LLMClient interface {
	// Complete sends a free-form prompt and returns the raw completion text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteWithSchema sends a prompt and enforces a JSON schema on the
	// response. The returned string is the raw JSON payload.
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}

// EventSink receives progress notifications during budget generation.
// Emission is fire-and-forget: implementations must not block, and the
// assembly loop ignores emission failures entirely.
type EventSink interface {
	Emit(sessionID, eventType string, payload map[string]interface{})
}

// Progress event types emitted by the assembly loop, in order of appearance.
const (
	EventSubtasksExtracted = "subtasks_extracted"
	EventChapterStart      = "chapter_start"
	EventItemResolved      = "item_resolved"
	EventCompleted         = "budget_completed"
)
