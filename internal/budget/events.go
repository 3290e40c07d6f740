package budget

import (
	"presupuestor/internal/logging"
)

// NopSink discards progress events. Used when no UI is listening, and as the
// default when callers pass a nil sink.
type NopSink struct{}

func (NopSink) Emit(sessionID, eventType string, payload map[string]interface{}) {}

// LogSink writes progress events to the assembly log. The CLI uses it so a
// generation run leaves a traceable event sequence without a connected UI.
type LogSink struct{}

func (LogSink) Emit(sessionID, eventType string, payload map[string]interface{}) {
	logging.Assembly("event session=%s type=%s payload=%v", sessionID, eventType, payload)
}
