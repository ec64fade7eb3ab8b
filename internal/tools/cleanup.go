package tools

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CleanupOrphans removes files under dir owned by a removed record id. A file
// named "<id>_..." or "<id>.<ext>" is owned by the longest id that claims it,
// so "c1_alt_front.png" stays with live id "c1_alt" when "c1" is removed.
// It returns the number of files removed.
func CleanupOrphans(dir string, removedIDs, liveIDs []string) (int, error) {
	if len(removedIDs) == 0 || !dirExists(dir) {
		return 0, nil
	}
	removed := make(map[string]bool, len(removedIDs))
	for _, id := range removedIDs {
		if id != "" {
			removed[id] = true
		}
	}
	candidates := make([]string, 0, len(removedIDs)+len(liveIDs))
	candidates = append(candidates, removedIDs...)
	candidates = append(candidates, liveIDs...)

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !removed[owner(d.Name(), candidates)] {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// owner returns the longest id claiming name, or "" when none does.
func owner(name string, ids []string) string {
	best := ""
	for _, id := range ids {
		if id == "" || len(id) <= len(best) {
			continue
		}
		if strings.HasPrefix(name, id+"_") || strings.HasPrefix(name, id+".") {
			best = id
		}
	}
	return best
}
