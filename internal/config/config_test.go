package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"setgen/internal/config"
)

func TestLoadDefaultConfigUsesEnvSourceAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SETGEN_SOURCE", "~/cards/export.yaml")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.Source != filepath.Join(tempHome, "cards", "export.yaml") {
		t.Fatalf("unexpected source: %q", cfg.Paths.Source)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "setgen", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.StateDBPath() != filepath.Join(wantState, "state.db") {
		t.Fatalf("unexpected state db path: %q", cfg.StateDBPath())
	}
	if !cfg.AllSets() {
		t.Fatal("expected all sets selected by default")
	}
	if got := cfg.RetryFor("db"); got.Attempts != 2 || got.Backoff != 0 {
		t.Fatalf("unexpected default retry policy: %+v", got)
	}
	if !cfg.Pipeline.ReprocessAllOnError {
		t.Fatal("expected reprocess_all_on_error enabled by default")
	}
	if cfg.TaskTimeout() != time.Hour || cfg.InterruptGrace() != 30*time.Second {
		t.Fatalf("expected bounded task attempts by default, got timeout=%s grace=%s", cfg.TaskTimeout(), cfg.InterruptGrace())
	}
	if cfg.Notifications.Recovery {
		t.Fatal("expected recovery notices disabled by default")
	}
}

func TestLoadMissingSourceFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SETGEN_SOURCE", "")
	t.Chdir(t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "paths.source") {
		t.Fatalf("expected paths.source error, got %v", err)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	t.Setenv("SETGEN_SOURCE", "/tmp/cards.yaml")
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestLoadCustomConfigNormalizesLanguagesAndKinds(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SETGEN_WEBHOOK_URL", "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
source = "~/data/cards.json"
state_dir = "~/state"

[pipeline]
set_ids = ["S1", " S2 ", "S1"]
languages = ["english", "FRENCH"]
scratch_language = "english"
parallelism = 3
task_timeout = 90

[outputs]
english = [" DB ", "octgn", "db"]
french = ["pdf"]

[retry.default]
attempts = 2

[retry.kinds.Render]
attempts = 4
backoff = 15

[notifications]
webhook_url = "https://chat.example/hook"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config path %q to exist, got %q exists=%v", configPath, resolved, exists)
	}
	if got := strings.Join(cfg.Pipeline.SetIDs, ","); got != "S1,S2" {
		t.Fatalf("unexpected set ids: %q", got)
	}
	if cfg.AllSets() {
		t.Fatal("expected explicit set selection")
	}
	if got := strings.Join(cfg.Pipeline.Languages, ","); got != "English,French" {
		t.Fatalf("unexpected languages: %q", got)
	}
	if cfg.Pipeline.ScratchLanguage != "English" {
		t.Fatalf("unexpected scratch language: %q", cfg.Pipeline.ScratchLanguage)
	}
	if got := strings.Join(cfg.Outputs["English"], ","); got != "db,octgn" {
		t.Fatalf("unexpected English outputs: %q", got)
	}
	if got := strings.Join(cfg.Outputs["French"], ","); got != "pdf" {
		t.Fatalf("unexpected French outputs: %q", got)
	}
	if cfg.Workers() != 3 {
		t.Fatalf("expected 3 workers, got %d", cfg.Workers())
	}
	if cfg.TaskTimeout() != 90*time.Second {
		t.Fatalf("unexpected task timeout: %s", cfg.TaskTimeout())
	}
	if got := cfg.RetryFor("render"); got.Attempts != 4 || got.Backoff != 15 {
		t.Fatalf("unexpected render retry policy: %+v", got)
	}
	if got := cfg.RetryFor("pdf"); got.Attempts != 2 {
		t.Fatalf("unexpected pdf retry policy: %+v", got)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no languages", func(c *config.Config) { c.Pipeline.Languages = nil }, "pipeline.languages"},
		{"negative parallelism", func(c *config.Config) { c.Pipeline.Parallelism = -1 }, "pipeline.parallelism"},
		{"negative timeout", func(c *config.Config) { c.Pipeline.TaskTimeout = -5 }, "pipeline.task_timeout"},
		{"negative grace", func(c *config.Config) { c.Pipeline.InterruptGrace = -1 }, "pipeline.interrupt_grace"},
		{"unlisted output language", func(c *config.Config) { c.Outputs["German"] = []string{"db"} }, "outputs.German"},
		{"zero attempts", func(c *config.Config) { c.Retry.Default.Attempts = 0 }, "retry.default.attempts"},
		{"negative kind backoff", func(c *config.Config) {
			c.Retry.Kinds["db"] = config.RetryPolicy{Attempts: 1, Backoff: -1}
		}, "retry.kinds.db.backoff"},
		{"bad webhook", func(c *config.Config) { c.Notifications.WebhookURL = "ftp://host/x" }, "notifications.webhook_url"},
		{"mail quota", func(c *config.Config) {
			c.Notifications.MailEnabled = true
			c.Notifications.MailDailyQuota = 0
		}, "notifications.mail_daily_quota"},
		{"cron spec", func(c *config.Config) { c.Schedule.Spec = "every minute" }, "schedule.spec"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"image tool", func(c *config.Config) { c.Tools.Image.Command = "" }, "tools.image.command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.Source = "/tmp/cards.yaml"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	target := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}

	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if got := cfg.RetryFor("render"); got.Attempts != 3 || got.Backoff != 30 {
		t.Fatalf("unexpected sample render policy: %+v", got)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MailDir = filepath.Join(base, "mail")
	cfg.Notifications.MailEnabled = true

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.MailDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
