package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"setgen/internal/scheduler"
	"setgen/internal/services"
)

func okTask(id string, counter *atomic.Int32) scheduler.Task {
	return scheduler.Task{ID: id, Kind: "db", Policy: scheduler.Policy{Attempts: 2}, Run: func(context.Context) error {
		counter.Add(1)
		return nil
	}}
}

func failingTask(id string, calls *atomic.Int32, err error) scheduler.Task {
	return scheduler.Task{ID: id, Kind: "db", Policy: scheduler.Policy{Attempts: 2}, Run: func(context.Context) error {
		calls.Add(1)
		return err
	}}
}

func TestExecuteIsolatesFailingTask(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			var ok, bad atomic.Int32
			tasks := make([]scheduler.Task, 0, 6)
			for i := 0; i < 6; i++ {
				if i == 3 {
					tasks = append(tasks, failingTask("bad", &bad, services.Wrap(services.ErrExternalTool, "tool", "run", "exit 1", nil)))
					continue
				}
				tasks = append(tasks, okTask(fmt.Sprintf("ok-%d", i), &ok))
			}

			outcomes := scheduler.New(parallelism, nil).Execute(context.Background(), tasks)

			if ok.Load() != 5 {
				t.Fatalf("expected 5 successes, got %d", ok.Load())
			}
			failed := 0
			for _, o := range outcomes {
				if o.State == scheduler.StateFailed {
					failed++
					if o.TaskID != "bad" || o.Attempts != 2 || o.ErrKind != services.KindExternalTool {
						t.Fatalf("unexpected failure outcome %#v", o)
					}
				} else if o.State != scheduler.StateSucceeded {
					t.Fatalf("unexpected state %s for %s", o.State, o.TaskID)
				}
			}
			if failed != 1 {
				t.Fatalf("expected exactly one failure, got %d", failed)
			}
			if bad.Load() != 2 {
				t.Fatalf("expected 2 attempts on failing task, got %d", bad.Load())
			}
		})
	}
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	task := scheduler.Task{ID: "flaky", Policy: scheduler.Policy{Attempts: 2}, Run: func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("transient glitch")
		}
		return nil
	}}
	out := scheduler.New(1, nil).Execute(context.Background(), []scheduler.Task{task})[0]
	if out.State != scheduler.StateSucceeded || out.Attempts != 2 || out.Err != nil {
		t.Fatalf("unexpected outcome %#v", out)
	}
	want := []scheduler.State{
		scheduler.StatePending, scheduler.StateRunning, scheduler.StateRetrying,
		scheduler.StateRunning, scheduler.StateSucceeded,
	}
	if !reflect.DeepEqual(out.History, want) {
		t.Fatalf("history = %v", out.History)
	}
}

func TestNonRetryableKindFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	task := failingTask("cfg", &calls, services.Wrap(services.ErrConfiguration, "tool", "", "missing command", nil))
	task.Policy.Attempts = 5
	out := scheduler.New(1, nil).Execute(context.Background(), []scheduler.Task{task})[0]
	if out.State != scheduler.StateFailed || calls.Load() != 1 {
		t.Fatalf("expected single failed attempt, got state=%s calls=%d", out.State, calls.Load())
	}
}

func TestTimeoutFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	task := scheduler.Task{ID: "slow", Policy: scheduler.Policy{Attempts: 3, Timeout: 20 * time.Millisecond},
		Run: func(ctx context.Context) error {
			calls.Add(1)
			<-ctx.Done()
			return ctx.Err()
		}}
	out := scheduler.New(1, nil).Execute(context.Background(), []scheduler.Task{task})[0]
	if out.State != scheduler.StateFailed || out.ErrKind != services.KindTimeout {
		t.Fatalf("expected timeout failure, got %#v", out)
	}
	if calls.Load() != 1 {
		t.Fatalf("timeout must not be retried, got %d attempts", calls.Load())
	}
}

func TestTimeoutFiresEvenIfTaskIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	task := scheduler.Task{ID: "stuck", Policy: scheduler.Policy{Attempts: 1, Timeout: 20 * time.Millisecond},
		Run: func(context.Context) error {
			<-release
			return nil
		}}
	out := scheduler.New(1, nil).Execute(context.Background(), []scheduler.Task{task})[0]
	if out.ErrKind != services.KindTimeout || !errors.Is(out.Err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %#v", out)
	}
}

func TestPanicIsCapturedAsFailure(t *testing.T) {
	task := scheduler.Task{ID: "boom", Policy: scheduler.Policy{Attempts: 2}, Run: func(context.Context) error {
		panic("nil map")
	}}
	out := scheduler.New(2, nil).Execute(context.Background(), []scheduler.Task{task, {ID: "fine", Run: func(context.Context) error { return nil }}})
	if out[0].State != scheduler.StateFailed || out[0].ErrKind != services.KindUnknown || out[0].Attempts != 2 {
		t.Fatalf("unexpected panic outcome %#v", out[0])
	}
	if out[1].State != scheduler.StateSucceeded {
		t.Fatalf("sibling must succeed, got %s", out[1].State)
	}
}

func TestParallelismIsBounded(t *testing.T) {
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	tasks := make([]scheduler.Task, 12)
	for i := range tasks {
		tasks[i] = scheduler.Task{ID: fmt.Sprintf("t%d", i), Policy: scheduler.Policy{Attempts: 1}, Run: func(context.Context) error {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
			return nil
		}}
	}
	outcomes := scheduler.New(3, nil).Execute(context.Background(), tasks)
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds limit", peak)
	}
	for _, o := range outcomes {
		if o.State != scheduler.StateSucceeded {
			t.Fatalf("unexpected state %s", o.State)
		}
	}
}

func TestPhaseBarrierAndFailureDoesNotBlockLaterPhases(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(id string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}
	phases := []scheduler.Phase{
		{Name: "pre", Tasks: []scheduler.Task{{ID: "p1", Run: record("pre")}, {ID: "p2", Run: record("pre")}}},
		{Name: "main", Tasks: []scheduler.Task{
			{ID: "m1", Policy: scheduler.Policy{Attempts: 2}, Run: func(context.Context) error { return errors.New("always") }},
			{ID: "m2", Run: record("main")},
		}},
		{Name: "post", Tasks: []scheduler.Task{{ID: "x1", Run: record("post")}}},
	}
	report, err := scheduler.New(4, nil).RunPhases(context.Background(), phases)
	if err != nil {
		t.Fatalf("RunPhases: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"pre", "pre", "main", "post"}) {
		t.Fatalf("barrier violated: %v", order)
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0].TaskID != "m1" {
		t.Fatalf("unexpected failures %#v", failed)
	}
	if !report.Partial() || report.Total() != 5 || len(report.Succeeded()) != 4 {
		t.Fatalf("unexpected report %#v", report)
	}
}

func TestInterruptCancelsRemainingWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished atomic.Int32
	phases := []scheduler.Phase{
		{Name: "main", Tasks: []scheduler.Task{
			{ID: "first", Run: func(runCtx context.Context) error {
				cancel()
				if runCtx.Err() != nil {
					return errors.New("attempt context must not observe the interrupt")
				}
				finished.Add(1)
				return nil
			}},
			{ID: "second", Run: func(context.Context) error { finished.Add(1); return nil }},
		}},
		{Name: "post", Tasks: []scheduler.Task{{ID: "late", Run: func(context.Context) error { finished.Add(1); return nil }}}},
	}

	report, err := scheduler.New(1, nil).RunPhases(ctx, phases)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !report.Interrupted {
		t.Fatal("expected report to be marked interrupted")
	}
	if finished.Load() != 1 {
		t.Fatalf("expected only the in-flight task to finish, got %d", finished.Load())
	}
	outcomes := report.Outcomes()
	if outcomes[0].State != scheduler.StateSucceeded {
		t.Fatalf("in-flight task should complete, got %s", outcomes[0].State)
	}
	if len(report.Cancelled()) != 2 {
		t.Fatalf("expected 2 cancelled tasks, got %d", len(report.Cancelled()))
	}
}

func TestInterruptDuringBackoffCancelsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	task := scheduler.Task{ID: "t", Policy: scheduler.Policy{Attempts: 3, Backoff: time.Minute}, Run: func(context.Context) error {
		calls.Add(1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		return errors.New("flaky")
	}}
	out := scheduler.New(1, nil).Execute(ctx, []scheduler.Task{task})[0]
	if out.State != scheduler.StateCancelled || calls.Load() != 1 {
		t.Fatalf("expected cancellation during backoff, got state=%s calls=%d", out.State, calls.Load())
	}
	if out.Err == nil || out.ErrKind != services.KindUnknown || out.Attempts != 1 {
		t.Fatalf("cancelled outcome must keep the failed attempt, got %#v", out)
	}
}

func TestInterruptGraceCancelsStuckAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var observed atomic.Bool
	phases := []scheduler.Phase{{Name: "main", Tasks: []scheduler.Task{{
		ID:     "hung",
		Policy: scheduler.Policy{Attempts: 2},
		Run: func(runCtx context.Context) error {
			close(started)
			<-runCtx.Done()
			observed.Store(true)
			return runCtx.Err()
		},
	}}}}

	type result struct {
		report scheduler.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := scheduler.New(1, nil, scheduler.WithInterruptGrace(20*time.Millisecond)).RunPhases(ctx, phases)
		done <- result{report, err}
	}()

	<-started
	cancel()
	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunPhases still blocked after the interrupt grace elapsed")
	}
	if !errors.Is(res.err, context.Canceled) || !res.report.Interrupted {
		t.Fatalf("expected interrupted report, got %v", res.err)
	}
	out := res.report.Outcomes()[0]
	if out.State != scheduler.StateFailed || out.ErrKind != services.KindCancelled || out.Attempts != 1 {
		t.Fatalf("unexpected outcome %#v", out)
	}
	deadline := time.Now().Add(time.Second)
	for !observed.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !observed.Load() {
		t.Fatal("attempt context was never cancelled")
	}
}

func TestInterruptGraceAbandonsAttemptIgnoringContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	task := scheduler.Task{ID: "deaf", Policy: scheduler.Policy{Attempts: 1}, Run: func(context.Context) error {
		cancel()
		<-release
		return nil
	}}

	done := make(chan scheduler.Outcome, 1)
	go func() {
		done <- scheduler.New(1, nil, scheduler.WithInterruptGrace(0)).Execute(ctx, []scheduler.Task{task})[0]
	}()
	select {
	case out := <-done:
		if out.ErrKind != services.KindCancelled {
			t.Fatalf("expected cancelled attempt, got %#v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute waited on an attempt that ignores its context")
	}
}

func TestInFlightAttemptFinishesWithinGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := scheduler.Task{ID: "writer", Policy: scheduler.Policy{Attempts: 1}, Run: func(runCtx context.Context) error {
		cancel()
		time.Sleep(20 * time.Millisecond)
		return runCtx.Err()
	}}
	out := scheduler.New(1, nil, scheduler.WithInterruptGrace(time.Minute)).Execute(ctx, []scheduler.Task{task})[0]
	if out.State != scheduler.StateSucceeded {
		t.Fatalf("attempt finishing inside the grace period must succeed, got %#v", out)
	}
}

func TestPolicyWithoutAttemptsRunsOnce(t *testing.T) {
	var calls atomic.Int32
	task := failingTask("t", &calls, errors.New("boom"))
	task.Policy = scheduler.Policy{}
	out := scheduler.New(1, nil).Execute(context.Background(), []scheduler.Task{task})[0]
	if calls.Load() != 1 || out.State != scheduler.StateFailed {
		t.Fatalf("expected one attempt, got %d (%s)", calls.Load(), out.State)
	}
}
