package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "setgen-"
	fileSuffix = ".log"
	maxLine    = 1024 * 1024
)

// ErrNoLogs is returned when no run log matches.
var ErrNoLogs = errors.New("no run log found")

// RunLog is one per-run log file.
type RunLog struct {
	RunID   string
	Path    string
	ModTime time.Time
}

// List returns every run log in dir, newest first.
func List(dir string) ([]RunLog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var logs []RunLog
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, RunLog{
			RunID:   strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix),
			Path:    filepath.Join(dir, name),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].ModTime.Equal(logs[j].ModTime) {
			return logs[i].RunID > logs[j].RunID
		}
		return logs[i].ModTime.After(logs[j].ModTime)
	})
	return logs, nil
}

// Find returns the newest run log whose run ID starts with prefix. An empty
// prefix selects the newest log.
func Find(dir, prefix string) (RunLog, error) {
	logs, err := List(dir)
	if err != nil {
		return RunLog{}, err
	}
	prefix = strings.TrimSpace(prefix)
	for _, l := range logs {
		if strings.HasPrefix(l.RunID, prefix) {
			return l, nil
		}
	}
	if prefix == "" {
		return RunLog{}, fmt.Errorf("%w in %s", ErrNoLogs, dir)
	}
	return RunLog{}, fmt.Errorf("%w for run %q in %s", ErrNoLogs, prefix, dir)
}

// TailResult holds lines read and the byte offset after the last one.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns the last limit lines of path. limit <= 0 returns no lines and
// only the end offset.
func Tail(path string, limit int) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range lines {
		lines[i] = ring[(start+i)%limit]
	}
	return TailResult{Lines: lines, Offset: offset}, nil
}

// Follow emits lines appended to path after offset, polling every interval,
// until ctx is cancelled. A truncated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scanLines(file, emit)
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scanLines feeds complete lines from r to fn and returns the bytes consumed.
// A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if len(line) > maxLine {
			line = line[:maxLine]
		}
		fn(line)
	}
}
