package taskgraph_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"setgen/internal/cards"
	"setgen/internal/changes"
	"setgen/internal/services"
	"setgen/internal/taskgraph"
)

const source = `
sets:
  - id: S1
    name: First
  - id: S2
    name: Second
  - id: X1
    name: Draft
    scratch: true
cards:
  - id: a1
    set: S1
    name: Alpha
  - id: b1
    set: S2
    name: Beta
  - id: x1
    set: X1
    name: Sketch
    scratch: true
`

func evaluate(t *testing.T, baseline changes.Baseline, langs []string, outputs map[string][]string) *changes.State {
	t.Helper()
	src, err := cards.ParseSource([]byte(source))
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	cat := cards.Normalize(src, cards.Selection{All: true})
	state, err := changes.NewTracker(baseline, nil).Evaluate(context.Background(), cat, changes.Options{
		Languages:       langs,
		ScratchLanguage: "English",
		Outputs:         outputs,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return state
}

func ids(batch taskgraph.Batch) []string {
	out := make([]string, 0, len(batch.Items))
	for _, item := range batch.Items {
		out = append(out, item.ID())
	}
	return out
}

func layout(t *testing.T) taskgraph.Layout {
	base := t.TempDir()
	return taskgraph.Layout{WorkDir: filepath.Join(base, "work"), OutputDir: filepath.Join(base, "out")}
}

func TestBuildColdStartProducesOneItemPerPairAndKind(t *testing.T) {
	outputs := map[string][]string{"English": {"db"}}
	state := evaluate(t, nil, []string{"English"}, outputs)

	batches, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, ScratchLanguage: "English", Layout: layout(t)}, state)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(batches) != 1 || batches[0].Phase != taskgraph.PhaseMain {
		t.Fatalf("expected a single main batch, got %#v", batches)
	}
	want := []string{"S1/English/db", "S2/English/db", "X1/English/db"}
	if got := ids(batches[0]); !reflect.DeepEqual(got, want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
}

func TestBuildOrdersPhasesAndWiresIntermediateInputs(t *testing.T) {
	outputs := map[string][]string{"English": {"pdf", "nobleed_300", "proxies", "db"}}
	state := evaluate(t, nil, []string{"English"}, outputs)
	l := layout(t)

	batches, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, ScratchLanguage: "English", Render: true, Layout: l}, state)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var phases []taskgraph.Phase
	for _, batch := range batches {
		phases = append(phases, batch.Phase)
	}
	if !reflect.DeepEqual(phases, taskgraph.Phases) {
		t.Fatalf("phases = %v", phases)
	}
	if got := ids(batches[2]); !reflect.DeepEqual(got[:2], []string{"S1/English/db", "S1/English/pdf"}) {
		t.Fatalf("main batch not sorted: %v", got)
	}

	var pdf, render taskgraph.WorkItem
	for _, item := range batches[2].Items {
		if item.ID() == "S1/English/pdf" {
			pdf = item
		}
	}
	for _, item := range batches[0].Items {
		if item.SetID == "S1" {
			render = item
		}
	}
	if pdf.InputDir != filepath.Join(l.WorkDir, "images", "nobleed_300", "S1", "English") {
		t.Fatalf("pdf input = %s", pdf.InputDir)
	}
	if pdf.OutputDir != filepath.Join(l.OutputDir, "pdf", "S1", "English") {
		t.Fatalf("pdf output = %s", pdf.OutputDir)
	}
	if render.Action != taskgraph.ActionRender || render.OutputDir != l.RenderedDir("S1", "English") {
		t.Fatalf("unexpected render item %#v", render)
	}
}

func TestBuildScratchSetOnlyForScratchLanguage(t *testing.T) {
	outputs := map[string][]string{"English": {"db"}, "French": {"db"}}
	state := evaluate(t, nil, []string{"English", "French"}, outputs)

	batches, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, ScratchLanguage: "English", Layout: layout(t)}, state)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, item := range batches[0].Items {
		if item.SetID == "X1" && item.Lang != "English" {
			t.Fatalf("scratch set produced %s", item.ID())
		}
	}
	if n := taskgraph.Count(batches); n != 5 {
		t.Fatalf("expected 5 items, got %d", n)
	}
}

type fixedBaseline map[string]changes.Snapshot

func (f fixedBaseline) Load(_ context.Context, set, lang string) (changes.Snapshot, bool, error) {
	snap, ok := f[set+"/"+lang]
	return snap, ok, nil
}

func TestBuildSkippedPairsContributeNothing(t *testing.T) {
	outputs := map[string][]string{"English": {"db"}}
	first := evaluate(t, nil, []string{"English"}, outputs)
	baseline := fixedBaseline{}
	for _, change := range first.Changes {
		baseline[change.Key()] = change.Snapshot()
	}
	second := evaluate(t, baseline, []string{"English"}, outputs)

	batches, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, ScratchLanguage: "English", Render: true, Layout: layout(t)}, second)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches, got %#v", batches)
	}
}

func TestBuildRejectsMissingPrerequisite(t *testing.T) {
	outputs := map[string][]string{"English": {"pdf", "genericpng_pdf"}}
	state := evaluate(t, nil, []string{"English"}, outputs)

	_, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, Layout: layout(t)}, state)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateRejectsUnknownAndImpliedKinds(t *testing.T) {
	cases := map[string][]string{
		"unknown": {"hologram"},
		"render":  {"render"},
	}
	for name, kinds := range cases {
		err := taskgraph.Validate(map[string][]string{"English": kinds})
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
	err := taskgraph.Validate(map[string][]string{"English": {"hologram"}})
	if !strings.Contains(err.Error(), "known: ") || !strings.Contains(err.Error(), "nobleed_300") {
		t.Fatalf("unknown kind error should list the configurable kinds, got %v", err)
	}
	if err := taskgraph.Validate(map[string][]string{"English": {"nobleed_800", "genericpng_pdf"}}); err != nil {
		t.Fatalf("valid outputs rejected: %v", err)
	}
}

func TestBuildRejectsDuplicateOutputs(t *testing.T) {
	outputs := map[string][]string{"English": {"db", "db"}}
	state := evaluate(t, nil, []string{"English"}, outputs)
	if _, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, Layout: layout(t)}, state); err == nil {
		t.Fatal("expected duplicate output error")
	}
}

func TestWorkItemCarriesSkipAndRemovedIDs(t *testing.T) {
	outputs := map[string][]string{"English": {"db"}}
	baseline := fixedBaseline{"S1/English": {SetID: "S1", Lang: "English", RollUp: "stale",
		Records: map[string]string{"gone": "h"}}}
	state := evaluate(t, baseline, []string{"English"}, outputs)

	batches, err := taskgraph.Build(taskgraph.Options{Outputs: outputs, ScratchLanguage: "English", Layout: layout(t)}, state)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	item := batches[0].Items[0]
	if item.SetID != "S1" || !reflect.DeepEqual(item.RemovedIDs, []string{"gone"}) {
		t.Fatalf("unexpected item %#v", item)
	}
	if len(item.SkipIDs) != 0 {
		t.Fatalf("changed record must not be skipped: %v", item.SkipIDs)
	}
	if item.Regenerate != 1 {
		t.Fatalf("regenerate = %d, want 1", item.Regenerate)
	}
	if item.PairKey() != "S1/English" {
		t.Fatalf("pair key = %s", item.PairKey())
	}
}
