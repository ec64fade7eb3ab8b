// Package services defines shared utilities consumed by the pipeline
// controller, the scheduler and the external tool wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, set identifiers, languages, output
//     kinds and phases for logging.
//   - Structured error markers plus the Wrap helper, and the closed ErrorKind
//     classification the scheduler uses to decide whether a failed task is
//     retried.
//
// Branch on KindOf, never on error strings or concrete error types.
package services
