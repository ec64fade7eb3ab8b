package taskgraph

import "sort"

// Phase is a barrier-separated group of work items.
type Phase string

const (
	PhaseRender Phase = "render"
	PhasePre    Phase = "pre"
	PhaseMain   Phase = "main"
	PhasePost   Phase = "post"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseRender, PhasePre, PhaseMain, PhasePost}

// Action says which collaborator executes a kind.
type Action string

const (
	ActionRender  Action = "render"
	ActionImage   Action = "image"
	ActionArchive Action = "archive"
)

// KindRender is the authoring-tool kind; it is implied, never configured.
const KindRender = "render"

// KindSpec describes one output kind.
type KindSpec struct {
	Name     string
	Phase    Phase
	Action   Action
	Requires string
	// Intermediate kinds write under the work dir and feed later phases.
	Intermediate bool
}

var catalogue = map[string]KindSpec{
	KindRender:         {Name: KindRender, Phase: PhaseRender, Action: ActionRender, Intermediate: true},
	"nobleed_300":      {Name: "nobleed_300", Phase: PhasePre, Action: ActionImage, Intermediate: true},
	"nobleed_800":      {Name: "nobleed_800", Phase: PhasePre, Action: ActionImage, Intermediate: true},
	"db":               {Name: "db", Phase: PhaseMain, Action: ActionImage},
	"octgn":            {Name: "octgn", Phase: PhaseMain, Action: ActionImage, Requires: "nobleed_300"},
	"rules_pdf":        {Name: "rules_pdf", Phase: PhaseMain, Action: ActionImage, Requires: "nobleed_300"},
	"pdf":              {Name: "pdf", Phase: PhaseMain, Action: ActionImage, Requires: "nobleed_300"},
	"genericpng_pdf":   {Name: "genericpng_pdf", Phase: PhaseMain, Action: ActionImage, Requires: "nobleed_800"},
	"makeplayingcards": {Name: "makeplayingcards", Phase: PhaseMain, Action: ActionImage},
	"drivethrucards":   {Name: "drivethrucards", Phase: PhaseMain, Action: ActionImage},
	"mbprint":          {Name: "mbprint", Phase: PhaseMain, Action: ActionImage},
	"genericpng":       {Name: "genericpng", Phase: PhaseMain, Action: ActionImage},
	"proxies":          {Name: "proxies", Phase: PhasePost, Action: ActionImage, Requires: "nobleed_300"},
	"archive":          {Name: "archive", Phase: PhasePost, Action: ActionArchive},
}

// Lookup returns the KindSpec registered for kind.
func Lookup(kind string) (KindSpec, bool) {
	spec, ok := catalogue[kind]
	return spec, ok
}

// KnownKinds returns every configurable kind, sorted.
func KnownKinds() []string {
	out := make([]string, 0, len(catalogue))
	for name := range catalogue {
		if name != KindRender {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
