package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"setgen/internal/config"
	"setgen/internal/hashstore"
	"setgen/internal/logging"
	"setgen/internal/services"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// session bundles what a command needs to touch pipeline state.
type session struct {
	cfg    *config.Config
	store  *hashstore.Store
	logger *slog.Logger
	runID  string
}

// openSession loads config, opens the hash store and builds the logger. With
// runLog set the session gets a fresh run ID and its own log file.
func (c *commandContext) openSession(runLog bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	var runID string
	if runLog {
		runID = uuid.NewString()
	}
	logger, err := logging.NewFromConfig(cfg, runID)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := hashstore.Open(cfg.StateDBPath())
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "open hash store", cfg.StateDBPath(), err)
	}
	return &session{cfg: cfg, store: store, logger: logger, runID: runID}, nil
}

func (s *session) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// withRunID stamps the session run ID onto parent.
func (s *session) withRunID(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	if s.runID == "" {
		return parent
	}
	return services.WithRunID(parent, s.runID)
}

// pruneHistory applies logging.retention_days to run logs and run history.
func (s *session) pruneHistory(ctx context.Context) {
	days := s.cfg.Logging.RetentionDays
	if days <= 0 {
		return
	}
	var exclude []string
	if s.runID != "" {
		exclude = append(exclude, logging.RunLogPath(s.cfg.Paths.LogDir, s.runID))
	}
	logging.CleanupOldLogs(s.logger, days, logging.RetentionTarget{
		Dir:     s.cfg.Paths.LogDir,
		Pattern: "setgen-*.log",
		Exclude: exclude,
	})

	pruned, err := s.store.PruneRuns(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		logging.WarnWithContext(s.logger, "run history pruning failed", "run_history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old run history rows remain"),
		)
		return
	}
	if pruned > 0 {
		s.logger.Debug("run history pruned",
			logging.Int64("rows", pruned),
			logging.String(logging.FieldEventType, "run_history_pruned"),
		)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
