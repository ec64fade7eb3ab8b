// Package main hosts the setgen CLI entrypoint and command graph.
//
// Invoked without a subcommand, setgen performs one full run (prepare and
// generate) and exits; an external scheduler calls it repeatedly. "serve"
// keeps the process resident and triggers runs from its own cron schedule.
// The remaining commands inspect state: run history, preflight checks,
// configuration scaffolding and a test notice.
//
// Keep this package lean: behaviour lives in internal/workflow and friends,
// commands only resolve configuration and print results.
package main
