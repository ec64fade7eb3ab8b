package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"setgen/internal/logging"
	"setgen/internal/services"
)

// Policy bounds the attempts of one task.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	// Timeout applies per attempt; zero disables it.
	Timeout time.Duration
}

// Task is one unit of work. Run must write only to paths owned by the task.
type Task struct {
	ID     string
	Kind   string
	Policy Policy
	Run    func(ctx context.Context) error
}

// Outcome is the terminal result of one task.
type Outcome struct {
	TaskID   string
	Kind     string
	State    State
	Attempts int
	Err      error
	ErrKind  services.ErrorKind
	Duration time.Duration
	History  []State
}

// Phase is a named batch of independent tasks.
type Phase struct {
	Name  string
	Tasks []Task
}

// DefaultInterruptGrace bounds how long an in-flight attempt may keep running
// after an interrupt before its context is cancelled.
const DefaultInterruptGrace = 30 * time.Second

// Scheduler runs tasks on a bounded pool.
type Scheduler struct {
	parallelism int
	grace       time.Duration
	logger      *slog.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithInterruptGrace overrides DefaultInterruptGrace. Non-positive values
// cancel in-flight attempts as soon as the interrupt arrives.
func WithInterruptGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		s.grace = max(d, 0)
	}
}

// New creates a scheduler. parallelism <= 1 runs every batch sequentially.
func New(parallelism int, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		parallelism: parallelism,
		grace:       DefaultInterruptGrace,
		logger:      logging.NewComponentLogger(logger, "scheduler"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Execute runs tasks and returns after each one is terminal. Outcomes are in
// task order.
func (s *Scheduler) Execute(ctx context.Context, tasks []Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	workers := min(s.parallelism, len(tasks))
	if workers <= 1 {
		for i, task := range tasks {
			outcomes[i] = s.runTask(ctx, task)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, task := range tasks {
		if ctx.Err() != nil {
			outcomes[i] = cancelledOutcome(task)
			continue
		}
		g.Go(func() error {
			outcomes[i] = s.runTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// RunPhases executes phases in order with a barrier between them. A phase
// with failures does not stop later phases; an interrupt does, and the
// remaining tasks are reported as cancelled.
func (s *Scheduler) RunPhases(ctx context.Context, phases []Phase) (Report, error) {
	var report Report
	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			for _, rest := range phases[i:] {
				report.Phases = append(report.Phases, cancelledPhase(rest))
			}
			report.Interrupted = true
			return report, err
		}

		phaseCtx := services.WithPhase(ctx, phase.Name)
		logger := logging.WithContext(phaseCtx, s.logger)
		logger.Info("phase started", logging.Int("tasks", len(phase.Tasks)))
		started := time.Now()

		result := PhaseResult{Name: phase.Name, Outcomes: s.Execute(phaseCtx, phase.Tasks)}
		report.Phases = append(report.Phases, result)

		logger.Info("phase drained",
			logging.Int("succeeded", result.count(StateSucceeded)),
			logging.Int("failed", result.count(StateFailed)),
			logging.Int("cancelled", result.count(StateCancelled)),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		return report, err
	}
	return report, nil
}

func (s *Scheduler) runTask(ctx context.Context, task Task) Outcome {
	run := newTaskRun()
	started := time.Now()
	out := Outcome{TaskID: task.ID, Kind: task.Kind}
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldTaskID, task.ID))

	if ctx.Err() != nil {
		run.to(StateCancelled)
		return finish(out, run, started)
	}

	policy := task.Policy
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

loop:
	for attempt := 1; ; attempt++ {
		run.to(StateRunning)
		out.Attempts = attempt
		err := s.attempt(ctx, task, policy, attempt)
		if err == nil {
			out.Err, out.ErrKind = nil, ""
			run.to(StateSucceeded)
			break
		}
		out.Err = err
		out.ErrKind = services.KindOf(err)

		if attempt >= policy.Attempts || !out.ErrKind.Retryable() || ctx.Err() != nil {
			run.to(StateFailed)
			logger.Error("task failed",
				logging.Int(logging.FieldAttempt, attempt),
				logging.String("error_kind", string(out.ErrKind)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_failed"),
				logging.String(logging.FieldErrorHint, "check the task log above; the pair is regenerated next run"),
			)
			break
		}

		run.to(StateRetrying)
		logger.Warn("task attempt failed; retrying",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", policy.Attempts),
			logging.Duration("backoff", policy.Backoff),
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_retry"),
		)
		if policy.Backoff > 0 {
			timer := time.NewTimer(policy.Backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if ctx.Err() != nil {
			run.to(StateCancelled)
			break loop
		}
	}
	return finish(out, run, started)
}

// attempt runs one try on a context detached from ctx's cancellation. Once
// ctx is cancelled the attempt has s.grace to finish; after that its context
// is cancelled, which kills any external tool it started.
func (s *Scheduler) attempt(ctx context.Context, task Task, policy Policy, n int) error {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), policy.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task %s panicked: %v", task.ID, r)
			}
		}()
		done <- task.Run(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return timeoutError(task, policy, n, attemptCtx.Err())
	case <-ctx.Done():
	}

	s.logger.Warn("interrupt received; waiting for in-flight attempt",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Duration("grace", s.grace),
	)
	grace := time.NewTimer(s.grace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return timeoutError(task, policy, n, attemptCtx.Err())
	case <-grace.C:
		return fmt.Errorf("scheduler: %s: attempt %d abandoned %s after interrupt: %w", task.ID, n, s.grace, context.Canceled)
	}
}

func timeoutError(task Task, policy Policy, n int, err error) error {
	return services.Wrap(services.ErrTimeout, "scheduler", task.ID,
		fmt.Sprintf("attempt %d exceeded %s", n, policy.Timeout), err)
}

func finish(out Outcome, run *taskRun, started time.Time) Outcome {
	out.State = run.state
	out.History = run.history
	out.Duration = time.Since(started)
	if run.bug != nil {
		out.State = StateFailed
		out.Err = run.bug
		out.ErrKind = services.KindUnknown
	}
	return out
}

func cancelledOutcome(task Task) Outcome {
	run := newTaskRun()
	run.to(StateCancelled)
	return finish(Outcome{TaskID: task.ID, Kind: task.Kind}, run, time.Now())
}

func cancelledPhase(phase Phase) PhaseResult {
	result := PhaseResult{Name: phase.Name, Outcomes: make([]Outcome, len(phase.Tasks))}
	for i, task := range phase.Tasks {
		result.Outcomes[i] = cancelledOutcome(task)
	}
	return result
}
