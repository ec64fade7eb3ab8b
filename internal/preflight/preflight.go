package preflight

import (
	"context"
	"strings"

	"setgen/internal/config"
	"setgen/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckSourceFile(cfg.Paths.Source),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if cfg.Notifications.MailEnabled {
		results = append(results, CheckDirectoryAccess("Mail directory", cfg.Paths.MailDir))
	}

	results = append(results, CheckOutputs(cfg))
	statuses := CheckSystemDeps(cfg)
	missing := make(map[string]bool)
	for _, status := range deps.Missing(statuses) {
		missing[status.Name] = true
	}
	for _, status := range statuses {
		result := Result{Name: status.Name, Passed: !missing[status.Name]}
		switch {
		case status.Available:
			result.Detail = status.Path
		case status.Optional:
			result.Detail = status.Detail + " (optional)"
		default:
			result.Detail = status.Detail
		}
		results = append(results, result)
	}

	if url := strings.TrimSpace(cfg.Notifications.WebhookURL); url != "" {
		results = append(results, CheckWebhook(ctx, url))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
