package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"setgen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The card source points at base/cards.yaml, which is not created unless
// WithSource is used.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Source = filepath.Join(base, "cards.yaml")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MailDir = filepath.Join(base, "mail")
	cfgVal.Pipeline.Parallelism = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSource writes doc as the card source file.
func WithSource(doc string) ConfigOption {
	return func(b *configBuilder) {
		WriteFile(b.t, b.cfg.Paths.Source, doc)
	}
}

// WithOutputs replaces the output kinds for lang and adds lang to the pipeline languages.
func WithOutputs(lang string, kinds ...string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Outputs == nil {
			b.cfg.Outputs = map[string][]string{}
		}
		b.cfg.Outputs[lang] = kinds
		for _, existing := range b.cfg.Pipeline.Languages {
			if existing == lang {
				return
			}
		}
		b.cfg.Pipeline.Languages = append(b.cfg.Pipeline.Languages, lang)
	}
}

// WithParallelism overrides the worker count.
func WithParallelism(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Parallelism = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default image tool is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"setgen-image"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
