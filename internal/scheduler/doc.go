// Package scheduler executes phased batches of independent tasks with bounded
// parallelism and per-task retry.
//
// Within a phase tasks may finish in any order; the next phase starts only
// after every task of the current one reached a terminal state. A failing
// task never aborts its siblings. On interrupt no new task or retry starts,
// attempts already running finish on a context detached from the interrupt
// (still bounded by the per-attempt timeout), and RunPhases returns the
// context error.
package scheduler
