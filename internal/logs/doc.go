// Package logs locates per-run log files and reads them with bounded memory.
//
// Every invocation writes setgen-<run id>.log into logging.log_dir. Find
// resolves a run ID prefix (or the newest file) and Tail returns the last
// lines plus the offset to continue from; Follow polls for appended lines
// until its context is cancelled.
package logs
