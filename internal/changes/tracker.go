package changes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"setgen/internal/cards"
	"setgen/internal/logging"
	"setgen/internal/services"
)

// Snapshot is the committed hash state of one (set, language) pair.
type Snapshot struct {
	SetID   string
	Lang    string
	RollUp  string
	Records map[string]string
}

// Baseline provides previously committed snapshots.
type Baseline interface {
	Load(ctx context.Context, setID, lang string) (Snapshot, bool, error)
}

// SetChange is the change decision for one (set, language) pair.
type SetChange struct {
	SetID        string
	SetName      string
	Lang         string
	Scratch      bool
	RollUp       string
	PrevRollUp   string
	RecordHashes map[string]string
	Unchanged    []string
	Changed      []string
	Removed      []string
	Skip         bool
	Forced       bool
}

// Key returns "set/lang".
func (c SetChange) Key() string {
	return c.SetID + "/" + c.Lang
}

// SkipIDs lists records whose artifacts are still valid. A forced pair
// regenerates everything.
func (c SetChange) SkipIDs() []string {
	if c.Forced {
		return []string{}
	}
	return append([]string(nil), c.Unchanged...)
}

// LiveIDs lists the records present in the current source, sorted.
func (c SetChange) LiveIDs() []string {
	ids := make([]string, 0, len(c.RecordHashes))
	for id := range c.RecordHashes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the state to commit once the pair regenerated successfully.
func (c SetChange) Snapshot() Snapshot {
	records := make(map[string]string, len(c.RecordHashes))
	for id, hash := range c.RecordHashes {
		records[id] = hash
	}
	return Snapshot{SetID: c.SetID, Lang: c.Lang, RollUp: c.RollUp, Records: records}
}

// State is the outcome of one evaluation.
type State struct {
	Forced  bool
	Changes []SetChange
	index   map[string]int
}

// Change returns the decision for the given pair.
func (s *State) Change(setID, lang string) (SetChange, bool) {
	if s == nil {
		return SetChange{}, false
	}
	idx, ok := s.index[setID+"/"+lang]
	if !ok {
		return SetChange{}, false
	}
	return s.Changes[idx], true
}

// ShouldSkipSet is true only if the pair's roll-up matches the baseline and
// the run is not forced. Unknown pairs are never skipped.
func (s *State) ShouldSkipSet(setID, lang string) bool {
	change, ok := s.Change(setID, lang)
	return ok && change.Skip
}

// Pending returns the pairs that need regeneration.
func (s *State) Pending() []SetChange {
	if s == nil {
		return nil
	}
	out := make([]SetChange, 0, len(s.Changes))
	for _, change := range s.Changes {
		if !change.Skip {
			out = append(out, change)
		}
	}
	return out
}

// HasWork reports whether any pair needs regeneration.
func (s *State) HasWork() bool {
	return len(s.Pending()) > 0
}

// Options controls an evaluation.
type Options struct {
	Languages       []string
	ScratchLanguage string
	Outputs         map[string][]string
	Force           bool
}

// Tracker compares a catalog with the committed baseline.
type Tracker struct {
	baseline Baseline
	logger   *slog.Logger
}

// NewTracker builds a tracker. A nil baseline behaves as a permanent cold start.
func NewTracker(baseline Baseline, logger *slog.Logger) *Tracker {
	return &Tracker{
		baseline: baseline,
		logger:   logging.NewComponentLogger(logger, "changes"),
	}
}

// Evaluate computes hashes for every selected (set, language) pair and decides
// which ones can be skipped. Scratch sets are evaluated for the scratch
// language only.
func (t *Tracker) Evaluate(ctx context.Context, catalog *cards.Catalog, opts Options) (*State, error) {
	if catalog == nil {
		return nil, services.Wrap(services.ErrValidation, "changes", "evaluate", "catalog is nil", nil)
	}
	state := &State{Forced: opts.Force, index: make(map[string]int)}
	for _, set := range catalog.SelectedSets() {
		records := catalog.RecordsFor(set.ID)
		for _, lang := range languagesFor(set, opts) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			change, err := t.evaluatePair(ctx, set, lang, records, opts)
			if err != nil {
				return nil, err
			}
			state.index[change.Key()] = len(state.Changes)
			state.Changes = append(state.Changes, change)
		}
	}
	return state, nil
}

func languagesFor(set cards.CardSet, opts Options) []string {
	if set.Scratch {
		if opts.ScratchLanguage == "" {
			return nil
		}
		return []string{opts.ScratchLanguage}
	}
	return opts.Languages
}

func (t *Tracker) evaluatePair(ctx context.Context, set cards.CardSet, lang string, records []cards.CardRecord, opts Options) (SetChange, error) {
	hashes := make(map[string]string, len(records))
	for _, rec := range records {
		hash, err := RecordHash(rec, lang)
		if err != nil {
			return SetChange{}, services.Wrap(services.ErrDataIntegrity, "changes", "hash record", set.ID+"/"+lang, err)
		}
		hashes[rec.ID] = hash
	}
	rollUp := RollUp(set, lang, hashes, opts.Outputs[lang])

	prev, found := t.loadBaseline(ctx, set.ID, lang)
	unchanged, changed, removed := Diff(prev.Records, hashes)

	change := SetChange{
		SetID:        set.ID,
		SetName:      set.Name,
		Lang:         lang,
		Scratch:      set.Scratch,
		RollUp:       rollUp,
		PrevRollUp:   prev.RollUp,
		RecordHashes: hashes,
		Unchanged:    unchanged,
		Changed:      changed,
		Removed:      removed,
		Forced:       opts.Force,
	}
	change.Skip = !opts.Force && found && prev.RollUp == rollUp

	logging.WithPair(t.logger, set.ID, lang).Debug("change evaluation",
		logging.Bool("skip", change.Skip),
		logging.Int("changed", len(changed)),
		logging.Int("removed", len(removed)),
	)
	return change, nil
}

// loadBaseline never fails: unreadable state is a cold start.
func (t *Tracker) loadBaseline(ctx context.Context, setID, lang string) (Snapshot, bool) {
	if t.baseline == nil {
		return Snapshot{}, false
	}
	snap, found, err := t.baseline.Load(ctx, setID, lang)
	if err != nil {
		t.logger.Warn("baseline unreadable; regenerating pair",
			logging.String(logging.FieldSet, setID),
			logging.String(logging.FieldLanguage, lang),
			logging.Error(err),
			logging.String(logging.FieldEventType, "baseline_unreadable"),
			logging.String(logging.FieldImpact, "pair treated as cold start"),
		)
		return Snapshot{}, false
	}
	if !found {
		return Snapshot{}, false
	}
	return snap, true
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s/%s(%d records)", s.SetID, s.Lang, len(s.Records))
}
