// Package hashstore persists committed artifact hashes and run history in
// SQLite.
//
// A (set, language) roll-up and its per-record hashes are written only after
// every task of that pair succeeded, so a crash between writing outputs and
// committing hashes leaves the previous baseline in place and the next run
// regenerates the pair. The store also implements changes.Baseline.
package hashstore
