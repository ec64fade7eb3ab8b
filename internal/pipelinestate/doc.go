// Package pipelinestate keeps the durable markers that carry crash and
// readiness signals between invocations.
//
// run_started brackets a full run: finding it at the start of the next run
// means the previous process died mid-flight and every pair is regenerated
// once. project_ready is written only after packaging succeeded; generation
// refuses to start without it. An exclusive file lock keeps two invocations
// from interleaving marker updates.
package pipelinestate
