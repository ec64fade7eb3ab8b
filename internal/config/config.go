package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	Source    string `toml:"source"`
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	MailDir   string `toml:"mail_dir"`
}

// Pipeline controls which sets and languages are generated and how.
type Pipeline struct {
	SetIDs              []string `toml:"set_ids"`
	Languages           []string `toml:"languages"`
	ScratchLanguage     string   `toml:"scratch_language"`
	Parallelism         int      `toml:"parallelism"`
	ReprocessAll        bool     `toml:"reprocess_all"`
	ReprocessAllOnError bool     `toml:"reprocess_all_on_error"`
	TaskTimeout         int      `toml:"task_timeout"`
	InterruptGrace      int      `toml:"interrupt_grace"`
	CleanupOrphans      bool     `toml:"cleanup_orphans"`
}

// RetryPolicy bounds how often a task of one output kind is attempted.
type RetryPolicy struct {
	Attempts int `toml:"attempts"`
	Backoff  int `toml:"backoff"`
}

// Retry holds the default policy plus per-kind overrides.
type Retry struct {
	Default RetryPolicy            `toml:"default"`
	Kinds   map[string]RetryPolicy `toml:"kinds"`
}

// Tool describes how to invoke one external collaborator.
type Tool struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Tools contains the external binaries driven by the pipeline.
type Tools struct {
	Authoring Tool `toml:"authoring"`
	Image     Tool `toml:"image"`
}

// Notifications contains configuration for notice delivery.
type Notifications struct {
	MailEnabled    bool   `toml:"mail_enabled"`
	MailDailyQuota int    `toml:"mail_daily_quota"`
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskFailures   bool   `toml:"task_failures"`
	SanityCheck    bool   `toml:"sanity_check"`
	RunSummary     bool   `toml:"run_summary"`
	Recovery       bool   `toml:"recovery"`
}

// Schedule configures resident mode.
type Schedule struct {
	Spec string `toml:"spec"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for setgen.
//
// Configuration sections by subsystem:
//   - Paths: card data source and working/output/state directories
//   - Pipeline: set and language selection, parallelism, reprocess switches
//   - Outputs: output kinds generated per language
//   - Retry: per-kind attempt bounds and backoff
//   - Tools: authoring and image tool command templates
//   - Notifications: mail drop folder and chat webhook
//   - Schedule: cron expression for serve mode
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths               `toml:"paths"`
	Pipeline      Pipeline            `toml:"pipeline"`
	Outputs       map[string][]string `toml:"outputs"`
	Retry         Retry               `toml:"retry"`
	Tools         Tools               `toml:"tools"`
	Notifications Notifications       `toml:"notifications"`
	Schedule      Schedule            `toml:"schedule"`
	Logging       Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/setgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	} else if strings.TrimSpace(path) != "" {
		return nil, "", false, fmt.Errorf("config file %s does not exist", resolvedPath)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(strings.TrimSpace(path))
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("setgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir}
	if c.Notifications.MailEnabled {
		dirs = append(dirs, c.Paths.MailDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Workers returns the effective worker pool size.
func (c *Config) Workers() int {
	if c.Pipeline.Parallelism > 0 {
		return c.Pipeline.Parallelism
	}
	return max(1, runtime.NumCPU()-1)
}

// TaskTimeout returns the per-attempt timeout, zero when disabled.
func (c *Config) TaskTimeout() time.Duration {
	if c.Pipeline.TaskTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Pipeline.TaskTimeout) * time.Second
}

// InterruptGrace returns how long in-flight attempts may run after an interrupt.
func (c *Config) InterruptGrace() time.Duration {
	return time.Duration(max(c.Pipeline.InterruptGrace, 0)) * time.Second
}

// RetryFor resolves the retry policy for an output kind, falling back to the default policy.
func (c *Config) RetryFor(kind string) RetryPolicy {
	policy := c.Retry.Default
	if override, ok := c.Retry.Kinds[kind]; ok && override.Attempts > 0 {
		policy = override
	}
	if policy.Attempts <= 0 {
		policy.Attempts = defaultRetryAttempts
	}
	return policy
}

// AllSets reports whether every non-scratch set is selected.
func (c *Config) AllSets() bool {
	for _, id := range c.Pipeline.SetIDs {
		if strings.EqualFold(id, AllSetsToken) {
			return true
		}
	}
	return false
}

// StateDBPath returns the SQLite database location for artifact hashes and run history.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "setgen.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
