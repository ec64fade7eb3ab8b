package pipelinestate_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"setgen/internal/pipelinestate"
	"setgen/internal/services"
)

func TestRunStartedBracket(t *testing.T) {
	state := pipelinestate.New(t.TempDir())

	crash, err := state.MarkRunStarted(pipelinestate.Marker{RunID: "r1"})
	if err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}
	if crash {
		t.Fatal("first run must not report a crash")
	}
	if err := state.ClearRunStarted(); err != nil {
		t.Fatalf("ClearRunStarted: %v", err)
	}
	crash, err = state.MarkRunStarted(pipelinestate.Marker{RunID: "r2"})
	if err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}
	if crash {
		t.Fatal("cleanly cleared run must not report a crash")
	}
}

func TestStaleRunMarkerSignalsCrash(t *testing.T) {
	dir := t.TempDir()
	state := pipelinestate.New(dir)
	if _, err := state.MarkRunStarted(pipelinestate.Marker{RunID: "crashed"}); err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}

	next := pipelinestate.New(dir)
	crash, err := next.MarkRunStarted(pipelinestate.Marker{RunID: "recovering"})
	if err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}
	if !crash {
		t.Fatal("expected crash to be detected")
	}
	marker, present, err := next.RunStarted()
	if err != nil || !present || marker.RunID != "recovering" {
		t.Fatalf("expected new marker, got %#v present=%v err=%v", marker, present, err)
	}
	if marker.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}
}

func TestCorruptRunMarkerCountsAsCrash(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run_started"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	crash, err := pipelinestate.New(dir).MarkRunStarted(pipelinestate.Marker{RunID: "r"})
	if err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}
	if !crash {
		t.Fatal("corrupt marker must be treated as a crash")
	}
}

func TestOnPreviousCrashDetected(t *testing.T) {
	cases := []struct {
		crash, onError, want bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
	}
	for _, tc := range cases {
		if got := pipelinestate.OnPreviousCrashDetected(tc.crash, tc.onError); got != tc.want {
			t.Fatalf("OnPreviousCrashDetected(%v, %v) = %v", tc.crash, tc.onError, got)
		}
	}
}

func TestProjectReadyRequiredBeforeGenerate(t *testing.T) {
	state := pipelinestate.New(t.TempDir())

	_, err := state.ProjectReady()
	if !errors.Is(err, services.ErrNoProject) {
		t.Fatalf("expected ErrNoProject, got %v", err)
	}
	if services.KindOf(err) != services.KindNoProject {
		t.Fatalf("expected no_project kind, got %s", services.KindOf(err))
	}

	if err := state.MarkProjectReady(pipelinestate.Marker{RunID: "r1", Forced: true}); err != nil {
		t.Fatalf("MarkProjectReady: %v", err)
	}
	marker, err := state.ProjectReady()
	if err != nil {
		t.Fatalf("ProjectReady: %v", err)
	}
	if marker.RunID != "r1" || !marker.Forced {
		t.Fatalf("unexpected marker %#v", marker)
	}

	if err := state.ClearProjectReady(); err != nil {
		t.Fatalf("ClearProjectReady: %v", err)
	}
	if err := state.ClearProjectReady(); err != nil {
		t.Fatalf("clearing twice must succeed: %v", err)
	}
	if _, err := state.ProjectReady(); !errors.Is(err, services.ErrNoProject) {
		t.Fatalf("expected ErrNoProject after clear, got %v", err)
	}
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	first := pipelinestate.New(dir)
	if err := first.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	second := pipelinestate.New(dir)
	if err := second.Lock(); !errors.Is(err, pipelinestate.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	_ = second.Unlock()
}

func TestLockPathOverride(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "locks", "custom.lock")
	first := pipelinestate.New(t.TempDir(), pipelinestate.WithLockPath(lockPath))
	if err := first.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer first.Unlock()
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected lock file at %s: %v", lockPath, err)
	}
	other := pipelinestate.New(t.TempDir(), pipelinestate.WithLockPath(lockPath))
	if err := other.Lock(); !errors.Is(err, pipelinestate.ErrLocked) {
		t.Fatalf("states sharing a lock path must exclude each other, got %v", err)
	}
}

func TestSanityMessageRoundTrip(t *testing.T) {
	state := pipelinestate.New(t.TempDir())
	msg, err := state.LastSanityMessage()
	if err != nil || msg != "" {
		t.Fatalf("expected empty message, got %q err=%v", msg, err)
	}
	if err := state.SetSanityMessage("duplicate card c1\n"); err != nil {
		t.Fatalf("SetSanityMessage: %v", err)
	}
	msg, err = state.LastSanityMessage()
	if err != nil || msg != "duplicate card c1" {
		t.Fatalf("unexpected message %q err=%v", msg, err)
	}
}
