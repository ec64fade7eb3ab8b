package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"setgen/internal/cards"
	"setgen/internal/config"
	"setgen/internal/hashstore"
	"setgen/internal/logging"
	"setgen/internal/notifications"
	"setgen/internal/pipelinestate"
	"setgen/internal/scheduler"
	"setgen/internal/services"
	"setgen/internal/taskgraph"
)

// Command names recorded in run history.
const (
	CommandPrepare  = "prepare"
	CommandGenerate = "generate"
	CommandRun      = "run"
)

// Controller drives prepare and generate invocations.
type Controller struct {
	cfg      *config.Config
	store    *hashstore.Store
	state    *pipelinestate.State
	notifier notifications.Service
	runner   TaskRunner
	layout   taskgraph.Layout
	logger   *slog.Logger
}

// Option configures optional Controller behavior.
type Option func(*Controller)

// WithRunner replaces the tool-backed task runner (primarily for tests).
func WithRunner(runner TaskRunner) Option {
	return func(c *Controller) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(notifier notifications.Service) Option {
	return func(c *Controller) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// New constructs a controller over an open hash store.
func New(cfg *config.Config, store *hashstore.Store, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "config is nil", nil)
	}
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "hash store is nil", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Controller{
		cfg:    cfg,
		store:  store,
		state:  pipelinestate.New(cfg.Paths.StateDir, pipelinestate.WithLockPath(cfg.LockPath())),
		layout: taskgraph.Layout{WorkDir: cfg.Paths.WorkDir, OutputDir: cfg.Paths.OutputDir},
		logger: logging.NewComponentLogger(logger, "workflow"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notifications.NewService(cfg, logger)
	}
	if c.runner == nil {
		runner, err := newToolRunner(cfg, c.layout, logger)
		if err != nil {
			return nil, err
		}
		c.runner = runner
	}
	return c, nil
}

// Result summarizes one invocation.
type Result struct {
	RunID         string
	Command       string
	Outcome       hashstore.Outcome
	Forced        bool
	PreviousCrash bool
	// Pending is the number of (set, language) pairs that needed regeneration.
	Pending   int
	Report    scheduler.Report
	Committed []string
}

// run carries the per-invocation state between steps.
type run struct {
	result    Result
	logger    *slog.Logger
	noChanges bool
}

type step func(ctx context.Context, r *run) error

// Prepare performs the first half of a run.
func (c *Controller) Prepare(ctx context.Context) (Result, error) {
	return c.invoke(ctx, CommandPrepare, c.prepare)
}

// Generate performs the second half of a run. It fails with a no_project
// error when no packaged project is waiting.
func (c *Controller) Generate(ctx context.Context) (Result, error) {
	return c.invoke(ctx, CommandGenerate, c.generate)
}

// Run performs prepare and generate under one lock.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	return c.invoke(ctx, CommandRun, c.prepare, c.generate)
}

func (c *Controller) invoke(ctx context.Context, command string, steps ...step) (Result, error) {
	if err := c.state.Lock(); err != nil {
		return Result{Command: command}, err
	}
	defer func() {
		if err := c.state.Unlock(); err != nil {
			c.logger.Warn("state lock release failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldImpact, "next invocation may report a held lock"),
			)
		}
	}()

	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = services.WithRunID(ctx, runID)
	}
	r := &run{
		result: Result{RunID: runID, Command: command, Forced: c.cfg.Pipeline.ReprocessAll},
		logger: logging.WithContext(ctx, c.logger),
	}

	if n, err := c.store.MarkAbandonedRuns(ctx); err != nil {
		r.logger.Warn("abandoned run check failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_history_failed"),
			logging.String(logging.FieldImpact, "stale history rows stay marked running"),
		)
	} else if n > 0 {
		r.logger.Info("closed abandoned run history rows", logging.Int64("count", n))
	}
	if err := c.store.BeginRun(ctx, runID, command, r.result.Forced); err != nil {
		return r.result, services.Wrap(services.ErrConfiguration, "workflow", "begin run", "state database unavailable", err)
	}
	r.logger.Info("run started",
		logging.String("command", command),
		logging.String(logging.FieldEventType, "run_started"),
	)

	started := time.Now()
	var err error
	for _, s := range steps {
		if err = s(ctx, r); err != nil || r.noChanges {
			break
		}
	}
	r.result.Outcome = outcomeFor(r, err)
	c.finish(ctx, r, err, time.Since(started))
	return r.result, err
}

func outcomeFor(r *run, err error) hashstore.Outcome {
	switch {
	case err != nil && services.KindOf(err) == services.KindCancelled:
		return hashstore.OutcomeInterrupted
	case err != nil:
		return hashstore.OutcomeFailed
	case r.noChanges:
		return hashstore.OutcomeNoChanges
	case r.result.Report.Total() > 0 && len(r.result.Report.Succeeded()) == 0:
		return hashstore.OutcomeFailed
	case r.result.Report.Partial():
		return hashstore.OutcomePartial
	default:
		return hashstore.OutcomeSucceeded
	}
}

func (c *Controller) finish(ctx context.Context, r *run, runErr error, elapsed time.Duration) {
	// History must be written even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)
	report := r.result.Report
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	if err := c.store.FinishRun(ctx, r.result.RunID, hashstore.RunResult{
		Outcome:     r.result.Outcome,
		Forced:      r.result.Forced,
		TasksTotal:  report.Total(),
		TasksFailed: len(report.Failed()),
		Message:     message,
	}); err != nil {
		r.logger.Warn("run history update failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_history_failed"),
			logging.String(logging.FieldImpact, "status output will show this run as abandoned"),
		)
	}

	attrs := []logging.Attr{
		logging.String("outcome", string(r.result.Outcome)),
		logging.Bool("forced", r.result.Forced),
		logging.Int("pending_pairs", r.result.Pending),
		logging.Int("tasks", report.Total()),
		logging.Int("failed", len(report.Failed())),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "run_complete"),
	}
	switch {
	case runErr == nil:
		r.logger.Info("run finished", logging.Args(attrs...)...)
	case services.KindOf(runErr) == services.KindCancelled:
		r.logger.Warn("run interrupted", logging.Args(append(attrs,
			logging.String(logging.FieldImpact, "markers kept; next run reprocesses everything"))...)...)
	default:
		attrs = append(attrs,
			logging.Error(runErr),
			logging.String("error_kind", string(services.KindOf(runErr))),
			logging.String(logging.FieldErrorHint, hintFor(runErr)),
		)
		r.logger.Error("run failed", logging.Args(attrs...)...)
		if !notifiesRunFailure(runErr) {
			return
		}
		c.publish(ctx, r, notifications.EventRunFailed, notifications.Payload{
			Title: fmt.Sprintf("%s failed", r.result.Command),
			Body:  runErr.Error(),
		})
	}
}

// notifiesRunFailure is false for failures that already have their own notice
// or that are expected outcomes of an idle schedule.
func notifiesRunFailure(err error) bool {
	var sanity *cards.SanityCheckError
	if errors.As(err, &sanity) {
		return false
	}
	return services.KindOf(err) != services.KindNoProject
}

func hintFor(err error) string {
	switch services.KindOf(err) {
	case services.KindConfiguration:
		return "check the configuration file and directory permissions"
	case services.KindDataIntegrity:
		return "fix the card source and rerun"
	case services.KindNoProject:
		return "run setgen prepare first"
	default:
		return "see the run log for details"
	}
}
