package logging

import (
	"context"
	"log/slog"

	"setgen/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one pipeline invocation.
	FieldRunID = "run_id"
	// FieldSet is the card set identifier.
	FieldSet = "set"
	// FieldLanguage is the output language.
	FieldLanguage = "lang"
	// FieldKind is the output kind of a work item.
	FieldKind = "kind"
	// FieldPhase is the scheduler phase name.
	FieldPhase = "phase"
	// FieldTaskID identifies a scheduled task (set/lang/kind).
	FieldTaskID = "task_id"
	// FieldAttempt is the 1-based attempt number of a task.
	FieldAttempt = "attempt"
	// FieldEventType classifies a log line for filtering ("task_failed", "run_complete").
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if set, ok := services.SetFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSet, set))
	}
	if lang, ok := services.LanguageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLanguage, lang))
	}
	if kind, ok := services.KindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldKind, kind))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
