package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"setgen/internal/cards"
	"setgen/internal/changes"
	"setgen/internal/fileutil"
	"setgen/internal/logging"
	"setgen/internal/notifications"
	"setgen/internal/pipelinestate"
	"setgen/internal/services"
	"setgen/internal/tools"
)

// projectData is the per-(set, language) file handed to the authoring tool.
type projectData struct {
	Set     string            `json:"set"`
	Name    string            `json:"name"`
	Lang    string            `json:"lang"`
	Scratch bool              `json:"scratch,omitempty"`
	Codes   map[string]string `json:"codes,omitempty"`
	Skip    []string          `json:"skip"`
	Removed []string          `json:"removed,omitempty"`
	Cards   []projectCard     `json:"cards"`
}

type projectCard struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Hash        string         `json:"hash"`
	Fields      map[string]any `json:"fields,omitempty"`
	Translation map[string]any `json:"translation,omitempty"`
}

func (c *Controller) prepare(ctx context.Context, r *run) error {
	logger := r.logger
	previousCrash, err := c.state.MarkRunStarted(pipelinestate.Marker{
		RunID:     r.result.RunID,
		Forced:    r.result.Forced,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "mark run started", c.state.Dir(), err)
	}
	r.result.PreviousCrash = previousCrash
	if pipelinestate.OnPreviousCrashDetected(previousCrash, c.cfg.Pipeline.ReprocessAllOnError) {
		r.result.Forced = true
		logger.Info("previous run did not finish; reprocessing every set",
			logging.String(logging.FieldEventType, "crash_recovery"),
		)
		c.publish(ctx, r, notifications.EventRecoveryTriggered, notifications.Payload{
			Title: "previous run did not finish",
			Body:  "Every selected set is regenerated in this run.",
		})
	} else if previousCrash {
		logger.Info("previous run did not finish; reprocess_all_on_error is off",
			logging.String(logging.FieldEventType, "crash_detected"),
		)
	}

	if err := c.state.ClearProjectReady(); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "clear project marker", c.state.Dir(), err)
	}

	src, err := cards.LoadSource(c.cfg.Paths.Source)
	if err != nil {
		return err
	}
	catalog := cards.Normalize(src, c.selection())
	sanityErr := cards.SanityCheck(catalog)
	c.reportSanity(ctx, r, catalog, sanityErr)
	if sanityErr != nil {
		return sanityErr
	}

	state, err := c.evaluate(ctx, r, catalog)
	if err != nil {
		return err
	}
	pending := state.Pending()
	r.result.Pending = len(pending)
	if len(pending) == 0 {
		logger.Info("no changes detected",
			logging.Int("pairs", len(state.Changes)),
			logging.String(logging.FieldEventType, "no_changes"),
		)
		if err := c.state.ClearRunStarted(); err != nil {
			return services.Wrap(services.ErrConfiguration, "workflow", "clear run marker", c.state.Dir(), err)
		}
		r.noChanges = true
		return nil
	}

	if err := c.writeProject(ctx, src, catalog, pending); err != nil {
		return err
	}
	files, err := tools.PackDir(c.layout.ProjectDir(), c.layout.ProjectArchive())
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "package project", c.layout.ProjectArchive(), err)
	}
	if err := c.state.MarkProjectReady(pipelinestate.Marker{
		RunID:     r.result.RunID,
		Forced:    r.result.Forced,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "mark project ready", c.state.Dir(), err)
	}
	logger.Info("project ready",
		logging.Int("pending_pairs", len(pending)),
		logging.Int("files", files),
		logging.String("archive", c.layout.ProjectArchive()),
		logging.String(logging.FieldEventType, "project_ready"),
	)
	return nil
}

func (c *Controller) selection() cards.Selection {
	return cards.Selection{All: c.cfg.AllSets(), SetIDs: c.cfg.Pipeline.SetIDs}
}

func (c *Controller) evaluate(ctx context.Context, r *run, catalog *cards.Catalog) (*changes.State, error) {
	tracker := changes.NewTracker(c.store, r.logger)
	return tracker.Evaluate(ctx, catalog, changes.Options{
		Languages:       c.cfg.Pipeline.Languages,
		ScratchLanguage: c.cfg.Pipeline.ScratchLanguage,
		Outputs:         c.cfg.Outputs,
		Force:           r.result.Forced,
	})
}

// writeProject replaces the project directory with the data of every pending pair.
func (c *Controller) writeProject(ctx context.Context, src *cards.Source, catalog *cards.Catalog, pending []changes.SetChange) error {
	dir := c.layout.ProjectDir()
	if err := os.RemoveAll(dir); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "reset project", dir, err)
	}
	snapshot, err := src.Marshal()
	if err != nil {
		return services.Wrap(services.ErrDataIntegrity, "workflow", "snapshot source", "", err)
	}
	if err := fileutil.WriteFileAtomic(c.layout.SourceSnapshot(), snapshot, 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "snapshot source", c.layout.SourceSnapshot(), err)
	}

	for _, change := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		set, _ := catalog.Set(change.SetID)
		data := projectData{
			Set:     change.SetID,
			Name:    change.SetName,
			Lang:    change.Lang,
			Scratch: change.Scratch,
			Codes:   set.Codes,
			Skip:    change.SkipIDs(),
			Removed: change.Removed,
		}
		for _, rec := range catalog.RecordsFor(change.SetID) {
			data.Cards = append(data.Cards, projectCard{
				ID:          rec.ID,
				Name:        rec.Name,
				Hash:        change.RecordHashes[rec.ID],
				Fields:      rec.Fields,
				Translation: rec.Translations[change.Lang],
			})
		}
		path := c.layout.DataFile(change.SetID, change.Lang)
		if err := fileutil.WriteJSONAtomic(path, data); err != nil {
			return services.Wrap(services.ErrConfiguration, "workflow", "write project data", path, err)
		}
		skipPath := c.layout.SkipFile(change.SetID, change.Lang)
		if err := fileutil.WriteFileAtomic(skipPath, []byte(skipFileBody(data.Skip)), 0o644); err != nil {
			return services.Wrap(services.ErrConfiguration, "workflow", "write skip file", skipPath, err)
		}
	}
	return nil
}

func skipFileBody(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return strings.Join(ids, "\n") + "\n"
}

// reportSanity logs the catalog findings and publishes a notice only when the
// sanity message differs from the last one reported.
func (c *Controller) reportSanity(ctx context.Context, r *run, catalog *cards.Catalog, checkErr error) {
	for _, finding := range catalog.Report.Warnings() {
		r.logger.Warn("card source warning",
			logging.String("finding", finding.String()),
			logging.String(logging.FieldEventType, "sanity_warning"),
			logging.String(logging.FieldImpact, "generation continues"),
		)
	}

	message := ""
	if checkErr != nil {
		message = strings.TrimSpace(checkErr.Error())
		r.logger.Error("card source failed the sanity check",
			logging.Int("problems", len(catalog.Report.Fatal())),
			logging.Error(checkErr),
			logging.String(logging.FieldEventType, "sanity_failed"),
			logging.String(logging.FieldErrorHint, "fix the listed records in the card source"),
		)
	}

	last, err := c.state.LastSanityMessage()
	if err != nil {
		r.logger.Warn("previous sanity message unreadable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "sanity_state_failed"),
			logging.String(logging.FieldImpact, "sanity notice may repeat"),
		)
	}
	if message == last {
		return
	}
	if err := c.state.SetSanityMessage(message); err != nil {
		r.logger.Warn("sanity message not stored",
			logging.Error(err),
			logging.String(logging.FieldEventType, "sanity_state_failed"),
			logging.String(logging.FieldImpact, "sanity notice may repeat"),
		)
	}
	if message == "" {
		c.publish(ctx, r, notifications.EventSanityCheckPassed, notifications.Payload{
			Title: "sanity check passed",
			Body:  fmt.Sprintf("The card source is valid again (%d records).", len(catalog.Records)),
		})
		return
	}
	c.publish(ctx, r, notifications.EventSanityCheckFailed, notifications.Payload{
		Title: "sanity check failed",
		Body:  message,
	})
}
