// Package taskgraph expands change decisions into phased work items.
//
// Each output kind belongs to one phase and may require an intermediate kind
// produced by an earlier phase. Build validates those prerequisites against
// the configured outputs before emitting anything, so a misconfigured kind is
// reported instead of silently dropped.
package taskgraph
