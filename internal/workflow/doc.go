// Package workflow orchestrates one pipeline invocation.
//
// A run has two halves separated by the project package on disk:
//
//   - Prepare takes the state lock, drops the run-started marker, loads and
//     sanity-checks the card source, evaluates changes against the committed
//     hashes and, when anything changed, writes the per-(set, language)
//     project data and skip files, packs them and drops the project-ready
//     marker.
//   - Generate requires the project-ready marker, rebuilds the change state
//     from the packaged source snapshot, turns it into phased work items and
//     runs them on the scheduler. Hashes are committed only for pairs whose
//     every task succeeded, orphaned artifacts of removed records are
//     cleaned, and the markers are cleared.
//
// Run performs both halves under a single lock. Every invocation leaves one
// row in the run history. The controller is the only writer of hashes and
// markers; tasks never touch them.
package workflow
