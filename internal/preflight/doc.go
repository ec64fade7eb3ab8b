// Package preflight provides readiness checks for the directories, card
// source and external tools setgen depends on.
//
// The CLI "setgen check" command prints every result. Run and generate do not
// call these checks; missing tools surface as task failures instead.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
