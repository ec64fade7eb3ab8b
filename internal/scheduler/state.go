package scheduler

import "fmt"

// State is the lifecycle position of one task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateRetrying  State = "retrying"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateCancelled
	case StateRunning:
		return to == StateSucceeded || to == StateRetrying || to == StateFailed
	case StateRetrying:
		return to == StateRunning || to == StateCancelled
	default:
		return false
	}
}

// taskRun tracks one task's state. It is owned by a single goroutine.
type taskRun struct {
	state   State
	history []State
	bug     error
}

func newTaskRun() *taskRun {
	return &taskRun{state: StatePending, history: []State{StatePending}}
}

// to applies a validated transition. An illegal transition is recorded as a
// bug and leaves the state unchanged.
func (r *taskRun) to(next State) {
	if !isAllowedTransition(r.state, next) {
		if r.bug == nil {
			r.bug = fmt.Errorf("scheduler: disallowed transition %s -> %s", r.state, next)
		}
		return
	}
	r.state = next
	r.history = append(r.history, next)
}
