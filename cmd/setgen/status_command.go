package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"setgen/internal/hashstore"
	"setgen/internal/pipelinestate"
)

const timeLayout = "2006-01-02 15:04:05"

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs, pending markers and committed sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(false)
			if err != nil {
				return err
			}
			defer sess.Close()

			runs, err := sess.store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			pairs, err := sess.store.Pairs(cmd.Context())
			if err != nil {
				return err
			}
			state := pipelinestate.New(sess.cfg.Paths.StateDir, pipelinestate.WithLockPath(sess.cfg.LockPath()))

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			renderMarkers(out, state)
			fmt.Fprintln(out)
			renderRuns(out, runs, colorize)
			fmt.Fprintln(out)
			renderPairs(out, pairs, colorize)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent runs to show")
	return cmd
}

func renderMarkers(out io.Writer, state *pipelinestate.State) {
	started, present, err := state.RunStarted()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Run marker: unreadable (%v)\n", err)
	case present:
		fmt.Fprintf(out, "Run marker: run %s since %s (a crash forces the next run to reprocess)\n",
			started.RunID, started.CreatedAt.Local().Format(timeLayout))
	default:
		fmt.Fprintln(out, "Run marker: none")
	}

	manifest, err := state.ProjectReady()
	if err != nil {
		fmt.Fprintln(out, "Project: none waiting")
		return
	}
	fmt.Fprintf(out, "Project: ready from run %s (forced: %s)\n", manifest.RunID, yesNo(manifest.Forced))
}

func renderRuns(out io.Writer, runs []hashstore.Run, colorize bool) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Command,
			r.StartedAt.Local().Format(timeLayout),
			formatDuration(r.Duration()),
			string(r.Outcome),
			yesNo(r.Forced),
			fmt.Sprintf("%d/%d", r.TasksFailed, r.TasksTotal),
			r.Message,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Command", "Started", "Duration", "Outcome", "Forced", "Failed", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
		colorize,
	))
}

func renderPairs(out io.Writer, pairs []hashstore.PairSummary, colorize bool) {
	if len(pairs) == 0 {
		fmt.Fprintln(out, "No sets generated yet")
		return
	}
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{
			p.SetID,
			p.Lang,
			strconv.Itoa(p.Records),
			p.UpdatedAt.Local().Format(timeLayout),
			shortID(p.RollUp),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Set", "Language", "Records", "Updated", "Roll-up"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		colorize,
	))
}

func shortID(value string) string {
	if len(value) > 8 {
		return value[:8]
	}
	return value
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
