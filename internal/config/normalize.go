package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var languageCaser = cases.Title(language.English)

// CanonicalLanguage returns the display form used for language names ("english" -> "English").
func CanonicalLanguage(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	return languageCaser.String(strings.ToLower(trimmed))
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeOutputs()
	c.normalizeRetry()
	c.normalizeTools()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.Source) == "" {
		if value, ok := os.LookupEnv("SETGEN_SOURCE"); ok {
			c.Paths.Source = value
		}
	}
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.source", &c.Paths.Source},
		{"paths.work_dir", &c.Paths.WorkDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.mail_dir", &c.Paths.MailDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.SetIDs = uniqueTrimmed(c.Pipeline.SetIDs, strings.TrimSpace)
	if len(c.Pipeline.SetIDs) == 0 {
		c.Pipeline.SetIDs = []string{AllSetsToken}
	}
	c.Pipeline.Languages = uniqueTrimmed(c.Pipeline.Languages, CanonicalLanguage)
	c.Pipeline.ScratchLanguage = CanonicalLanguage(c.Pipeline.ScratchLanguage)
	if c.Pipeline.ScratchLanguage == "" {
		c.Pipeline.ScratchLanguage = defaultLanguage
	}
}

func (c *Config) normalizeOutputs() {
	if len(c.Outputs) == 0 {
		return
	}
	normalized := make(map[string][]string, len(c.Outputs))
	for lang, kinds := range c.Outputs {
		key := CanonicalLanguage(lang)
		if key == "" {
			continue
		}
		normalized[key] = uniqueTrimmed(append(normalized[key], kinds...), lowerTrim)
	}
	c.Outputs = normalized
}

func (c *Config) normalizeRetry() {
	if len(c.Retry.Kinds) == 0 {
		c.Retry.Kinds = map[string]RetryPolicy{}
		return
	}
	normalized := make(map[string]RetryPolicy, len(c.Retry.Kinds))
	for kind, policy := range c.Retry.Kinds {
		normalized[lowerTrim(kind)] = policy
	}
	c.Retry.Kinds = normalized
}

func (c *Config) normalizeTools() {
	c.Tools.Authoring.Command = strings.TrimSpace(c.Tools.Authoring.Command)
	c.Tools.Image.Command = strings.TrimSpace(c.Tools.Image.Command)
}

func (c *Config) normalizeNotifications() {
	if strings.TrimSpace(c.Notifications.WebhookURL) == "" {
		if value, ok := os.LookupEnv("SETGEN_WEBHOOK_URL"); ok {
			c.Notifications.WebhookURL = value
		}
	}
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	c.Schedule.Spec = strings.TrimSpace(c.Schedule.Spec)
	if c.Schedule.Spec == "" {
		c.Schedule.Spec = defaultScheduleSpec
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerTrim(c.Logging.Format)
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = lowerTrim(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lowerTrim(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueTrimmed(values []string, canon func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		v := canon(value)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
