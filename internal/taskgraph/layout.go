package taskgraph

import "path/filepath"

// Layout maps work items to directories.
type Layout struct {
	WorkDir   string
	OutputDir string
}

// ProjectDir holds the data handed to the authoring tool.
func (l Layout) ProjectDir() string {
	return filepath.Join(l.WorkDir, "project")
}

// ProjectArchive is the packaged project.
func (l Layout) ProjectArchive() string {
	return filepath.Join(l.WorkDir, "project.zip")
}

// SourceSnapshot is the card source the project was built from.
func (l Layout) SourceSnapshot() string {
	return filepath.Join(l.ProjectDir(), "source.yaml")
}

// RenderedDir holds authoring-tool output for a pair.
func (l Layout) RenderedDir(set, lang string) string {
	return filepath.Join(l.WorkDir, "rendered", set, lang)
}

// SkipFile lists the records whose artifacts are still valid for a pair.
func (l Layout) SkipFile(set, lang string) string {
	return filepath.Join(l.ProjectDir(), set, lang, "skip_ids.txt")
}

// DataFile holds the normalized records of a pair.
func (l Layout) DataFile(set, lang string) string {
	return filepath.Join(l.ProjectDir(), set, lang, "cards.json")
}

// KindDir is where a kind writes for a pair.
func (l Layout) KindDir(spec KindSpec, set, lang string) string {
	switch {
	case spec.Name == KindRender:
		return l.RenderedDir(set, lang)
	case spec.Intermediate:
		return filepath.Join(l.WorkDir, "images", spec.Name, set, lang)
	default:
		return filepath.Join(l.OutputDir, spec.Name, set, lang)
	}
}

// InputDir is what a kind reads for a pair.
func (l Layout) InputDir(spec KindSpec, set, lang string) string {
	if spec.Requires != "" {
		return l.KindDir(catalogue[spec.Requires], set, lang)
	}
	if spec.Name == KindRender {
		return l.ProjectDir()
	}
	return l.RenderedDir(set, lang)
}
