package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	setIDKey    contextKey = "set_id"
	languageKey contextKey = "language"
	kindKey     contextKey = "kind"
	phaseKey    contextKey = "phase"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithSet annotates context with the card set identifier.
func WithSet(ctx context.Context, setID string) context.Context {
	return withString(ctx, setIDKey, setID)
}

// SetFromContext returns the card set identifier if present.
func SetFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, setIDKey)
}

// WithLanguage annotates context with the output language.
func WithLanguage(ctx context.Context, lang string) context.Context {
	return withString(ctx, languageKey, lang)
}

// LanguageFromContext returns the output language if present.
func LanguageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, languageKey)
}

// WithKind annotates context with the output kind being generated.
func WithKind(ctx context.Context, kind string) context.Context {
	return withString(ctx, kindKey, kind)
}

// KindFromContext returns the output kind if present.
func KindFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, kindKey)
}

// WithPhase annotates context with the scheduler phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	return withString(ctx, phaseKey, phase)
}

// PhaseFromContext returns the scheduler phase if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, phaseKey)
}
