package taskgraph

import (
	"fmt"
	"sort"
	"strings"

	"setgen/internal/changes"
	"setgen/internal/services"
)

// WorkItem is one schedulable (set, language, kind) job.
type WorkItem struct {
	SetID      string
	SetName    string
	Lang       string
	Kind       string
	Phase      Phase
	Action     Action
	Scratch    bool
	SkipIDs    []string
	RemovedIDs []string
	// Regenerate is the number of records the item must (re)produce.
	Regenerate int
	InputDir   string
	OutputDir  string
	SkipFile   string
}

// ID returns "set/lang/kind".
func (w WorkItem) ID() string {
	return w.SetID + "/" + w.Lang + "/" + w.Kind
}

// PairKey returns "set/lang".
func (w WorkItem) PairKey() string {
	return w.SetID + "/" + w.Lang
}

// Batch is the work of one phase.
type Batch struct {
	Phase Phase
	Items []WorkItem
}

// Options configures Build.
type Options struct {
	Outputs         map[string][]string
	ScratchLanguage string
	// Render adds the authoring step; without it rendered images must already exist.
	Render bool
	Layout Layout
}

// Validate checks every configured kind and its prerequisite.
func Validate(outputs map[string][]string) error {
	langs := make([]string, 0, len(outputs))
	for lang := range outputs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var problems []string
	for _, lang := range langs {
		configured := make(map[string]struct{}, len(outputs[lang]))
		for _, kind := range outputs[lang] {
			configured[kind] = struct{}{}
		}
		for _, kind := range outputs[lang] {
			spec, ok := catalogue[kind]
			switch {
			case kind == KindRender:
				problems = append(problems, fmt.Sprintf("outputs.%s: %q is implied by tools.authoring and cannot be listed", lang, kind))
			case !ok:
				problems = append(problems, fmt.Sprintf("outputs.%s: unknown output kind %q (known: %s)", lang, kind, strings.Join(KnownKinds(), ", ")))
			case spec.Requires != "":
				if _, present := configured[spec.Requires]; !present {
					problems = append(problems, fmt.Sprintf("outputs.%s: %q requires %q", lang, kind, spec.Requires))
				}
			}
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "taskgraph", "validate outputs", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Build turns the pending pairs of state into phased batches. Skipped pairs
// contribute nothing; scratch sets only produce items for the scratch
// language. Items within a batch are sorted by set, language and kind.
func Build(opts Options, state *changes.State) ([]Batch, error) {
	if err := Validate(opts.Outputs); err != nil {
		return nil, err
	}

	byPhase := make(map[Phase][]WorkItem, len(Phases))
	seenOutputs := make(map[string]string)
	for _, change := range state.Pending() {
		if change.Scratch && change.Lang != opts.ScratchLanguage {
			continue
		}
		kinds := append([]string(nil), opts.Outputs[change.Lang]...)
		if opts.Render {
			kinds = append(kinds, KindRender)
		}
		for _, kind := range kinds {
			spec := catalogue[kind]
			item := WorkItem{
				SetID:      change.SetID,
				SetName:    change.SetName,
				Lang:       change.Lang,
				Kind:       kind,
				Phase:      spec.Phase,
				Action:     spec.Action,
				Scratch:    change.Scratch,
				SkipIDs:    change.SkipIDs(),
				RemovedIDs: append([]string(nil), change.Removed...),
				Regenerate: len(change.RecordHashes) - len(change.SkipIDs()),
				InputDir:   opts.Layout.InputDir(spec, change.SetID, change.Lang),
				OutputDir:  opts.Layout.KindDir(spec, change.SetID, change.Lang),
				SkipFile:   opts.Layout.SkipFile(change.SetID, change.Lang),
			}
			if owner, dup := seenOutputs[item.OutputDir]; dup {
				return nil, services.Wrap(services.ErrValidation, "taskgraph", "build",
					fmt.Sprintf("%s and %s write the same output %s", owner, item.ID(), item.OutputDir), nil)
			}
			seenOutputs[item.OutputDir] = item.ID()
			byPhase[spec.Phase] = append(byPhase[spec.Phase], item)
		}
	}

	batches := make([]Batch, 0, len(Phases))
	for _, phase := range Phases {
		items := byPhase[phase]
		if len(items) == 0 {
			continue
		}
		sort.Slice(items, func(i, j int) bool {
			a, b := items[i], items[j]
			if a.SetID != b.SetID {
				return a.SetID < b.SetID
			}
			if a.Lang != b.Lang {
				return a.Lang < b.Lang
			}
			return a.Kind < b.Kind
		})
		batches = append(batches, Batch{Phase: phase, Items: items})
	}
	return batches, nil
}

// Count returns the number of items across batches.
func Count(batches []Batch) int {
	n := 0
	for _, batch := range batches {
		n += len(batch.Items)
	}
	return n
}
