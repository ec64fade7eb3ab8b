// Package logging assembles structured slog loggers and formatting helpers used
// across setgen.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, sets, languages, output kinds and phases. The package
// also provides a no-op logger for tests and a retention helper that prunes
// old per-run log files.
package logging
