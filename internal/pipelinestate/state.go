package pipelinestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"setgen/internal/fileutil"
	"setgen/internal/services"
)

const (
	runStartedFile    = "run_started"
	projectReadyFile  = "project_ready"
	sanityMessageFile = "sanity_check.txt"
	lockFile          = "setgen.lock"
)

// ErrLocked is returned when another invocation holds the state lock.
var ErrLocked = errors.New("another setgen run is in progress")

// Marker is the body of a marker file.
type Marker struct {
	RunID     string    `json:"run_id"`
	Forced    bool      `json:"forced"`
	CreatedAt time.Time `json:"created_at"`
}

// State manages marker files inside one state directory.
type State struct {
	dir  string
	lock *flock.Flock
}

// Option customizes a State.
type Option func(*State)

// WithLockPath places the run lock at path instead of inside the state dir.
func WithLockPath(path string) Option {
	return func(s *State) {
		if path != "" {
			s.lock = flock.New(path)
		}
	}
}

// New returns a State rooted at dir. Nothing is touched on disk until a method is called.
func New(dir string, opts ...Option) *State {
	s := &State{dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the state directory.
func (s *State) Dir() string {
	return s.dir
}

// Lock acquires the exclusive run lock without blocking.
func (s *State) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.lock.Path()), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "state", "lock", "create lock dir", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrLocked, s.lock.Path())
	}
	return nil
}

// Unlock releases the run lock.
func (s *State) Unlock() error {
	return s.lock.Unlock()
}

// MarkRunStarted writes the run-started marker. previousCrash is true when a
// marker from an earlier run was still present.
func (s *State) MarkRunStarted(m Marker) (previousCrash bool, err error) {
	_, present, err := s.readMarker(runStartedFile)
	if err != nil && !errors.Is(err, errCorruptMarker) {
		return false, err
	}
	previousCrash = present || errors.Is(err, errCorruptMarker)
	if err := s.writeMarker(runStartedFile, m); err != nil {
		return previousCrash, err
	}
	return previousCrash, nil
}

// RunStarted returns the current run-started marker, if any.
func (s *State) RunStarted() (Marker, bool, error) {
	return s.readMarker(runStartedFile)
}

// ClearRunStarted removes the run-started marker. Only a run that reached its
// end without a fatal error or interrupt calls this.
func (s *State) ClearRunStarted() error {
	return s.remove(runStartedFile)
}

// OnPreviousCrashDetected reports whether a detected crash forces a full reprocess.
func OnPreviousCrashDetected(previousCrash, reprocessAllOnError bool) bool {
	return previousCrash && reprocessAllOnError
}

// MarkProjectReady records that the project package is complete.
func (s *State) MarkProjectReady(m Marker) error {
	return s.writeMarker(projectReadyFile, m)
}

// ProjectReady returns the project marker or an error wrapping ErrNoProject.
func (s *State) ProjectReady() (Marker, error) {
	m, present, err := s.readMarker(projectReadyFile)
	if errors.Is(err, errCorruptMarker) {
		return Marker{}, services.Wrap(services.ErrNoProject, "state", "project marker", "marker is corrupt; rerun prepare", err)
	}
	if err != nil {
		return Marker{}, err
	}
	if !present {
		return Marker{}, services.Wrap(services.ErrNoProject, "state", "project marker", "run prepare first", nil)
	}
	return m, nil
}

// ClearProjectReady removes the project marker.
func (s *State) ClearProjectReady() error {
	return s.remove(projectReadyFile)
}

// LastSanityMessage returns the most recently reported sanity message.
func (s *State) LastSanityMessage() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sanityMessageFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read sanity message: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetSanityMessage stores msg; an empty msg records a passing check.
func (s *State) SetSanityMessage(msg string) error {
	return fileutil.WriteFileAtomic(filepath.Join(s.dir, sanityMessageFile), []byte(msg), 0o644)
}

var errCorruptMarker = errors.New("corrupt marker")

func (s *State) readMarker(name string) (Marker, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("read %s marker: %w", name, err)
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, true, fmt.Errorf("%w: %s: %v", errCorruptMarker, name, err)
	}
	return m, true, nil
}

func (s *State) writeMarker(name string, m Marker) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := fileutil.WriteJSONAtomic(filepath.Join(s.dir, name), m); err != nil {
		return fmt.Errorf("write %s marker: %w", name, err)
	}
	return nil
}

func (s *State) remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s marker: %w", name, err)
	}
	return nil
}
