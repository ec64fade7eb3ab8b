package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"setgen/internal/config"
	"setgen/internal/logging"
	"setgen/internal/services"
	"setgen/internal/taskgraph"
	"setgen/internal/tools"
)

// TaskRunner executes one work item. Implementations write only to
// item.OutputDir.
type TaskRunner interface {
	Run(ctx context.Context, item taskgraph.WorkItem) error
}

// toolRunner dispatches work items to the external collaborators.
type toolRunner struct {
	authoring *tools.Authoring
	image     *tools.ImageTool
	layout    taskgraph.Layout
	logger    *slog.Logger
}

func newToolRunner(cfg *config.Config, layout taskgraph.Layout, logger *slog.Logger) (*toolRunner, error) {
	runner := &toolRunner{layout: layout, logger: logging.NewComponentLogger(logger, "tools")}
	opts := []tools.Option{tools.WithLogger(logger)}
	if strings.TrimSpace(cfg.Tools.Authoring.Command) != "" {
		authoring, err := tools.NewAuthoring(cfg.Tools.Authoring.Command, cfg.Tools.Authoring.Args, opts...)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "init authoring tool", "", err)
		}
		runner.authoring = authoring
	}
	if strings.TrimSpace(cfg.Tools.Image.Command) != "" {
		image, err := tools.NewImageTool(cfg.Tools.Image.Command, cfg.Tools.Image.Args, opts...)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "init image tool", "", err)
		}
		runner.image = image
	}
	return runner, nil
}

func (t *toolRunner) Run(ctx context.Context, item taskgraph.WorkItem) error {
	switch item.Action {
	case taskgraph.ActionRender:
		if t.authoring == nil {
			return services.Wrap(services.ErrConfiguration, "workflow", "render", "tools.authoring.command is not set", nil)
		}
		return t.authoring.Render(ctx, tools.RenderRequest{
			Project:   t.layout.ProjectArchive(),
			Set:       item.SetID,
			Lang:      item.Lang,
			SkipFile:  item.SkipFile,
			OutputDir: item.OutputDir,
			Expected:  item.Regenerate,
		})
	case taskgraph.ActionImage:
		if t.image == nil {
			return services.Wrap(services.ErrConfiguration, "workflow", item.Kind, "tools.image.command is not set", nil)
		}
		return t.image.Process(ctx, tools.ImageRequest{
			Filter:    item.Kind,
			InputDir:  item.InputDir,
			OutputDir: item.OutputDir,
			SkipFile:  item.SkipFile,
			Set:       item.SetID,
			Lang:      item.Lang,
		})
	case taskgraph.ActionArchive:
		return t.archive(item)
	default:
		return services.Wrap(services.ErrValidation, "workflow", "dispatch", fmt.Sprintf("unknown action %q for %s", item.Action, item.ID()), nil)
	}
}

// archive packs the rendered images of a pair into one zip per pair.
func (t *toolRunner) archive(item taskgraph.WorkItem) error {
	dst := filepath.Join(item.OutputDir, fmt.Sprintf("%s.%s.zip", item.SetID, item.Lang))
	n, err := tools.PackDir(item.InputDir, dst)
	if err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "archive", item.ID(), err)
	}
	t.logger.Debug("archive written",
		logging.String(logging.FieldTaskID, item.ID()),
		logging.String("path", dst),
		logging.Int("files", n),
	)
	return nil
}
