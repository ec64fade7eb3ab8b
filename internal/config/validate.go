package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateOutputs(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.Source == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/setgen/config.toml"
		}
		return fmt.Errorf("paths.source is required. Set SETGEN_SOURCE env var or edit %s (create with 'setgen config init')", defaultPath)
	}
	for key, value := range map[string]string{
		"paths.work_dir":   c.Paths.WorkDir,
		"paths.output_dir": c.Paths.OutputDir,
		"paths.state_dir":  c.Paths.StateDir,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if len(c.Pipeline.Languages) == 0 {
		return errors.New("pipeline.languages must include at least one language")
	}
	if c.Pipeline.Parallelism < 0 {
		return errors.New("pipeline.parallelism must be zero (auto) or positive")
	}
	if c.Pipeline.TaskTimeout < 0 {
		return errors.New("pipeline.task_timeout must be zero (disabled) or positive seconds")
	}
	if c.Pipeline.InterruptGrace < 0 {
		return errors.New("pipeline.interrupt_grace must be zero or positive seconds")
	}
	return nil
}

func (c *Config) validateOutputs() error {
	langs := make([]string, 0, len(c.Outputs))
	for lang := range c.Outputs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if !slices.Contains(c.Pipeline.Languages, lang) {
			return fmt.Errorf("outputs.%s: language is not listed in pipeline.languages", lang)
		}
	}
	if len(c.Outputs) > 0 && c.Tools.Image.Command == "" {
		return errors.New("tools.image.command must be set when outputs are configured")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.Default.Attempts <= 0 {
		return errors.New("retry.default.attempts must be positive")
	}
	if c.Retry.Default.Backoff < 0 {
		return errors.New("retry.default.backoff must not be negative")
	}
	for kind, policy := range c.Retry.Kinds {
		if policy.Attempts < 0 {
			return fmt.Errorf("retry.kinds.%s.attempts must not be negative", kind)
		}
		if policy.Backoff < 0 {
			return fmt.Errorf("retry.kinds.%s.backoff must not be negative", kind)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Notifications.MailEnabled {
		if c.Paths.MailDir == "" {
			return errors.New("paths.mail_dir must be set when notifications.mail_enabled is true")
		}
		if c.Notifications.MailDailyQuota <= 0 {
			return errors.New("notifications.mail_daily_quota must be positive when notifications.mail_enabled is true")
		}
	}
	if c.Notifications.WebhookURL != "" {
		parsed, err := url.Parse(c.Notifications.WebhookURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return errors.New("notifications.webhook_url must be an http(s) URL")
		}
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
		return fmt.Errorf("schedule.spec: invalid cron expression %q: %w", c.Schedule.Spec, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", strings.TrimSpace(key))
		}
	}
	return nil
}
