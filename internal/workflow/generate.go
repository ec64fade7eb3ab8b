package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"setgen/internal/cards"
	"setgen/internal/changes"
	"setgen/internal/logging"
	"setgen/internal/notifications"
	"setgen/internal/scheduler"
	"setgen/internal/services"
	"setgen/internal/taskgraph"
	"setgen/internal/tools"
)

func (c *Controller) generate(ctx context.Context, r *run) error {
	manifest, err := c.state.ProjectReady()
	if err != nil {
		return err
	}
	if manifest.Forced {
		r.result.Forced = true
	}

	src, err := cards.LoadSource(c.layout.SourceSnapshot())
	if err != nil {
		return err
	}
	catalog := cards.Normalize(src, c.selection())
	if err := cards.SanityCheck(catalog); err != nil {
		return err
	}
	state, err := c.evaluate(ctx, r, catalog)
	if err != nil {
		return err
	}
	r.result.Pending = len(state.Pending())

	batches, err := taskgraph.Build(taskgraph.Options{
		Outputs:         c.cfg.Outputs,
		ScratchLanguage: c.cfg.Pipeline.ScratchLanguage,
		Render:          strings.TrimSpace(c.cfg.Tools.Authoring.Command) != "",
		Layout:          c.layout,
	}, state)
	if err != nil {
		return err
	}
	r.logger.Info("generation started",
		logging.String("project_run_id", manifest.RunID),
		logging.Bool("forced", r.result.Forced),
		logging.Int("pending_pairs", r.result.Pending),
		logging.Int("tasks", taskgraph.Count(batches)),
		logging.Int("phases", len(batches)),
		logging.Int("workers", c.cfg.Workers()),
		logging.String(logging.FieldEventType, "generation_started"),
	)

	sched := scheduler.New(c.cfg.Workers(), r.logger, scheduler.WithInterruptGrace(c.cfg.InterruptGrace()))
	report, runErr := sched.RunPhases(ctx, c.phases(batches))
	r.result.Report = report
	c.notifyFailures(ctx, r, report)
	if runErr != nil {
		return runErr
	}

	committed, err := c.commit(ctx, r, state, batches, report)
	if err != nil {
		return err
	}
	r.result.Committed = committed
	if c.cfg.Pipeline.CleanupOrphans {
		c.cleanupOrphans(r, state, batches, committed)
	}

	if err := c.state.ClearProjectReady(); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "clear project marker", c.state.Dir(), err)
	}
	if err := c.state.ClearRunStarted(); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "clear run marker", c.state.Dir(), err)
	}
	c.publishSummary(ctx, r)
	return nil
}

func (c *Controller) phases(batches []taskgraph.Batch) []scheduler.Phase {
	out := make([]scheduler.Phase, 0, len(batches))
	for _, batch := range batches {
		tasks := make([]scheduler.Task, 0, len(batch.Items))
		for _, item := range batch.Items {
			tasks = append(tasks, scheduler.Task{
				ID:     item.ID(),
				Kind:   item.Kind,
				Policy: c.policyFor(item.Kind),
				Run: func(ctx context.Context) error {
					ctx = services.WithSet(ctx, item.SetID)
					ctx = services.WithLanguage(ctx, item.Lang)
					ctx = services.WithKind(ctx, item.Kind)
					return c.runner.Run(ctx, item)
				},
			})
		}
		out = append(out, scheduler.Phase{Name: string(batch.Phase), Tasks: tasks})
	}
	return out
}

func (c *Controller) policyFor(kind string) scheduler.Policy {
	policy := c.cfg.RetryFor(kind)
	return scheduler.Policy{
		Attempts: policy.Attempts,
		Backoff:  time.Duration(policy.Backoff) * time.Second,
		Timeout:  c.cfg.TaskTimeout(),
	}
}

// commit persists the hashes of every pending pair whose tasks all succeeded.
// Pairs with a failed or cancelled task keep their previous hashes and are
// regenerated by the next run.
func (c *Controller) commit(ctx context.Context, r *run, state *changes.State, batches []taskgraph.Batch, report scheduler.Report) ([]string, error) {
	outcomes := make(map[string]scheduler.Outcome, report.Total())
	for _, o := range report.Outcomes() {
		outcomes[o.TaskID] = o
	}
	incomplete := make(map[string]bool)
	for _, batch := range batches {
		for _, item := range batch.Items {
			if o, ok := outcomes[item.ID()]; !ok || o.State != scheduler.StateSucceeded {
				incomplete[item.PairKey()] = true
			}
		}
	}

	var snaps []changes.Snapshot
	var keys []string
	for _, change := range state.Pending() {
		if incomplete[change.Key()] {
			continue
		}
		snaps = append(snaps, change.Snapshot())
		keys = append(keys, change.Key())
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	if err := c.store.Commit(ctx, snaps); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "commit hashes", c.store.Path(), err)
	}
	sort.Strings(keys)
	r.logger.Info("hashes committed",
		logging.Int("pairs", len(keys)),
		logging.Int("held_back", len(incomplete)),
		logging.String(logging.FieldEventType, "hashes_committed"),
	)
	return keys, nil
}

// cleanupOrphans removes artifacts of deleted records from every directory a
// committed pair writes, plus its rendered images.
func (c *Controller) cleanupOrphans(r *run, state *changes.State, batches []taskgraph.Batch, committed []string) {
	done := make(map[string]bool, len(committed))
	for _, key := range committed {
		done[key] = true
	}
	dirs := make(map[string][]string)
	for _, change := range state.Pending() {
		if done[change.Key()] && len(change.Removed) > 0 {
			dirs[change.Key()] = append(dirs[change.Key()], c.layout.RenderedDir(change.SetID, change.Lang))
		}
	}
	for _, batch := range batches {
		for _, item := range batch.Items {
			if _, ok := dirs[item.PairKey()]; ok {
				dirs[item.PairKey()] = append(dirs[item.PairKey()], item.OutputDir)
			}
		}
	}

	total := 0
	for _, change := range state.Pending() {
		live := change.LiveIDs()
		seen := make(map[string]bool)
		for _, dir := range dirs[change.Key()] {
			if seen[dir] {
				continue
			}
			seen[dir] = true
			n, err := tools.CleanupOrphans(dir, change.Removed, live)
			if err != nil {
				logging.WithPair(r.logger, change.SetID, change.Lang).Warn("orphan cleanup failed",
					logging.String("dir", dir),
					logging.Error(err),
					logging.String(logging.FieldEventType, "orphan_cleanup_failed"),
					logging.String(logging.FieldImpact, "stale artifacts of removed records remain"),
				)
				continue
			}
			total += n
		}
	}
	if total > 0 {
		r.logger.Info("removed orphaned artifacts",
			logging.Int("files", total),
			logging.String(logging.FieldEventType, "orphans_removed"),
		)
	}
}

func (c *Controller) notifyFailures(ctx context.Context, r *run, report scheduler.Report) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range report.Unsettled() {
		body := fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", o.TaskID, o.Attempts, o.ErrKind, o.Err)
		if o.State == scheduler.StateCancelled {
			body += "; retry cancelled by interrupt"
		}
		c.publish(ctx, r, notifications.EventTaskFailed, notifications.Payload{
			Title: o.TaskID,
			Body:  body,
		})
	}
}

func (c *Controller) publishSummary(ctx context.Context, r *run) {
	report := r.result.Report
	failed := report.Failed()
	lines := []string{
		fmt.Sprintf("Tasks: %d succeeded, %d failed.", len(report.Succeeded()), len(failed)),
	}
	if len(r.result.Committed) > 0 {
		lines = append(lines, "Updated: "+strings.Join(r.result.Committed, ", "))
	}
	for _, o := range failed {
		lines = append(lines, "Failed: "+o.TaskID)
	}
	c.publish(ctx, r, notifications.EventRunCompleted, notifications.Payload{
		Title: fmt.Sprintf("generated %d set(s)", len(r.result.Committed)),
		Body:  strings.Join(lines, "\n"),
	})
}

func (c *Controller) publish(ctx context.Context, r *run, event notifications.Event, payload notifications.Payload) {
	if err := c.notifier.Publish(ctx, event, payload); err != nil {
		r.logger.Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}
