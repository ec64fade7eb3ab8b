package services_test

import (
	"context"
	"testing"

	"setgen/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithSet(ctx, "S1")
	ctx = services.WithLanguage(ctx, "English")
	ctx = services.WithKind(ctx, "db")
	ctx = services.WithPhase(ctx, "main")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if set, ok := services.SetFromContext(ctx); !ok || set != "S1" {
		t.Fatalf("unexpected set: %v %v", set, ok)
	}
	if lang, ok := services.LanguageFromContext(ctx); !ok || lang != "English" {
		t.Fatalf("unexpected language: %v %v", lang, ok)
	}
	if kind, ok := services.KindFromContext(ctx); !ok || kind != "db" {
		t.Fatalf("unexpected kind: %v %v", kind, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "main" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
}

func TestBlankValuePreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSet(ctx, "")
	if _, ok := services.SetFromContext(ctx); ok {
		t.Fatal("expected no set value")
	}
}
