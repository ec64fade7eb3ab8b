package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"setgen/internal/logging"
	"setgen/internal/pipelinestate"
	"setgen/internal/services"
	"setgen/internal/workflow"
)

const retentionSpec = "@daily"

type runFunc func(context.Context) (workflow.Result, error)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Stay resident and run the pipeline on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(true)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctrl, err := workflow.New(sess.cfg, sess.store, sess.logger)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), sess, ctrl.Run)
		},
	}
}

// serve triggers run on every tick of schedule.spec until ctx is cancelled.
// A tick that arrives while the previous run is still busy is skipped.
func serve(ctx context.Context, sess *session, run runFunc) error {
	logger := logging.NewComponentLogger(sess.logger, "serve")
	cronLog := cronLogger{logger: logger}

	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)
	spec := sess.cfg.Schedule.Spec
	if _, err := scheduler.AddFunc(spec, func() { tick(ctx, logger, run) }); err != nil {
		return services.Wrap(services.ErrConfiguration, "serve", "schedule", fmt.Sprintf("schedule.spec %q", spec), err)
	}
	if _, err := scheduler.AddFunc(retentionSpec, func() { sess.pruneHistory(ctx) }); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}

	scheduler.Start()
	logger.Info("serve started",
		logging.String("schedule", spec),
		logging.String(logging.FieldEventType, "serve_started"),
	)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info("serve stopped", logging.String(logging.FieldEventType, "serve_stopped"))
	return nil
}

func tick(ctx context.Context, logger *slog.Logger, run runFunc) {
	if ctx.Err() != nil {
		return
	}
	runCtx := services.WithRunID(ctx, uuid.NewString())
	result, err := run(runCtx)
	switch {
	case errors.Is(err, pipelinestate.ErrLocked):
		logger.Info("run skipped; another invocation holds the lock",
			logging.String(logging.FieldEventType, "run_skipped"),
		)
	case err != nil:
		// The controller has already logged and notified the failure.
		logger.Debug("scheduled run ended with error", logging.Error(err))
	default:
		logger.Debug("scheduled run finished",
			logging.String(logging.FieldRunID, result.RunID),
			logging.String("outcome", string(result.Outcome)),
		)
	}
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, logging.Error(err))...)
}
