package tools

import (
	"context"
	"fmt"
	"os"

	"setgen/internal/services"
)

// Authoring drives the card-authoring tool.
type Authoring struct {
	*runner
}

// NewAuthoring constructs an authoring-tool client.
func NewAuthoring(command string, args []string, opts ...Option) (*Authoring, error) {
	r, err := newRunner("authoring", command, args, opts)
	if err != nil {
		return nil, err
	}
	return &Authoring{runner: r}, nil
}

// RenderRequest describes one (set, language) render.
type RenderRequest struct {
	Project   string
	Set       string
	Lang      string
	SkipFile  string
	OutputDir string
	// Expected is the number of records to render; zero allows an empty result.
	Expected int
}

// Render runs the tool and verifies it wrote at least Expected images to
// OutputDir. Images left over from earlier runs do not count.
func (a *Authoring) Render(ctx context.Context, req RenderRequest) error {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "authoring", "prepare output", req.OutputDir, err)
	}
	before, err := imageStamps(req.OutputDir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "authoring", "inspect output", req.OutputDir, err)
	}
	vars := map[string]string{
		VarProject:  req.Project,
		VarSet:      req.Set,
		VarLang:     req.Lang,
		VarSkipFile: req.SkipFile,
		VarOutput:   req.OutputDir,
		VarInput:    req.Project,
	}
	if err := a.run(ctx, vars); err != nil {
		return services.Wrap(services.ErrExternalTool, "authoring", "render", req.Set+"/"+req.Lang, err)
	}
	if req.Expected == 0 {
		return nil
	}
	after, err := imageStamps(req.OutputDir)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "authoring", "inspect output", req.OutputDir, err)
	}
	fresh := 0
	for path, mod := range after {
		if prev, ok := before[path]; !ok || !prev.Equal(mod) {
			fresh++
		}
	}
	if fresh < req.Expected {
		return services.Wrap(services.ErrExternalTool, "authoring", "render",
			fmt.Sprintf("rendered %d new image(s) in %s, expected at least %d", fresh, req.OutputDir, req.Expected), nil)
	}
	return nil
}
