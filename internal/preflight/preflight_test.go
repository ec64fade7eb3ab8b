package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"setgen/internal/testsupport"
)

const sampleSource = `
sets:
  - id: S1
    name: First
cards:
  - id: a1
    set: S1
    name: Alpha
    cost: 1
`

func TestCheckWebhookReachable(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"1","type":1}`))
	}))
	defer srv.Close()

	result := CheckWebhook(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected pass, got %#v", result)
	}
	if method != http.MethodGet {
		t.Fatalf("webhook check must not post, got %s", method)
	}
}

func TestCheckWebhookRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckWebhook(context.Background(), srv.URL)
	if result.Passed {
		t.Fatal("expected failure for deleted webhook")
	}
	if !strings.Contains(result.Detail, "rejected") {
		t.Fatalf("unexpected detail: %q", result.Detail)
	}
}

func TestCheckWebhookServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckWebhook(context.Background(), srv.URL)
	if result.Passed || !strings.Contains(result.Detail, "502") {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDirectoryAccess("Work", dir); !result.Passed {
		t.Fatalf("expected pass, got %#v", result)
	}

	missing := filepath.Join(dir, "missing")
	if result := CheckDirectoryAccess("Work", missing); result.Passed || !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected result for missing dir: %#v", result)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("Work", file); result.Passed || !strings.Contains(result.Detail, "not a directory") {
		t.Fatalf("unexpected result for file: %#v", result)
	}
}

func TestCheckSourceFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSource(sampleSource))
	result := CheckSourceFile(cfg.Paths.Source)
	if !result.Passed {
		t.Fatalf("expected pass, got %#v", result)
	}
	if !strings.Contains(result.Detail, "1 sets, 1 cards") {
		t.Fatalf("unexpected detail: %q", result.Detail)
	}

	missing := CheckSourceFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if missing.Passed {
		t.Fatal("expected failure for absent source")
	}
}

func TestCheckOutputsRejectsUnknownKind(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOutputs("English", "db", "hologram"))
	if result := CheckOutputs(cfg); result.Passed {
		t.Fatalf("expected unknown kind to fail, got %#v", result)
	}
}

func TestRunAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithSource(sampleSource),
		testsupport.WithStubbedBinaries(),
	)
	cfg.Notifications.WebhookURL = srv.URL
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}

	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Card source", "Work directory", "Output kinds", "Image tool", "Authoring tool", "Webhook"} {
		if !names[want] {
			t.Fatalf("missing %q check in %#v", want, results)
		}
	}
}

func TestRunAllReportsMissingImageTool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSource(sampleSource))
	cfg.Tools.Image.Command = "clearly-not-present-image-tool"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	failed := Failed(RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Image tool" {
		t.Fatalf("expected only the image tool to fail, got %#v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %#v", results)
	}
}
