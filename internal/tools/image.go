package tools

import (
	"context"
	"os"

	"setgen/internal/services"
)

// ImageTool drives the batch image filter tool.
type ImageTool struct {
	*runner
}

// NewImageTool constructs an image-tool client.
func NewImageTool(command string, args []string, opts ...Option) (*ImageTool, error) {
	r, err := newRunner("image", command, args, opts)
	if err != nil {
		return nil, err
	}
	return &ImageTool{runner: r}, nil
}

// ImageRequest describes one filter invocation.
type ImageRequest struct {
	Filter    string
	InputDir  string
	OutputDir string
	SkipFile  string
	Set       string
	Lang      string
}

// Process reads every image in InputDir and writes the filtered result to OutputDir.
func (t *ImageTool) Process(ctx context.Context, req ImageRequest) error {
	if !dirExists(req.InputDir) {
		return services.Wrap(services.ErrValidation, "image", req.Filter,
			"input folder missing: "+req.InputDir, nil)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "image", "prepare output", req.OutputDir, err)
	}
	vars := map[string]string{
		VarFilter:   req.Filter,
		VarInput:    req.InputDir,
		VarOutput:   req.OutputDir,
		VarSkipFile: req.SkipFile,
		VarSet:      req.Set,
		VarLang:     req.Lang,
	}
	if err := t.run(ctx, vars); err != nil {
		return services.Wrap(services.ErrExternalTool, "image", req.Filter, req.Set+"/"+req.Lang, err)
	}
	return nil
}
