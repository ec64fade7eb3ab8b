package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"setgen/internal/workflow"
)

func newWorkflowCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		{
			Use:   "prepare",
			Short: "Detect changes and package the project for generation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorkflow(cmd, ctx, workflow.CommandPrepare)
			},
		},
		{
			Use:   "generate",
			Short: "Generate outputs for a prepared project",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorkflow(cmd, ctx, workflow.CommandGenerate)
			},
		},
		{
			Use:   "run",
			Short: "Prepare and generate in one invocation (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorkflow(cmd, ctx, workflow.CommandRun)
			},
		},
	}
}

func runWorkflow(cmd *cobra.Command, ctx *commandContext, command string) error {
	sess, err := ctx.openSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctrl, err := workflow.New(sess.cfg, sess.store, sess.logger)
	if err != nil {
		return err
	}

	runCtx := sess.withRunID(cmd.Context())
	var result workflow.Result
	switch command {
	case workflow.CommandPrepare:
		result, err = ctrl.Prepare(runCtx)
	case workflow.CommandGenerate:
		result, err = ctrl.Generate(runCtx)
	default:
		result, err = ctrl.Run(runCtx)
	}
	printResult(cmd.OutOrStdout(), result)
	sess.pruneHistory(runCtx)
	return err
}

func printResult(out io.Writer, result workflow.Result) {
	if result.RunID == "" {
		return
	}
	fmt.Fprintf(out, "Run %s (%s): %s\n", result.RunID, result.Command, result.Outcome)
	fmt.Fprintf(out, "Pending pairs: %d  Forced: %s\n", result.Pending, yesNo(result.Forced))
	if total := result.Report.Total(); total > 0 {
		fmt.Fprintf(out, "Tasks: %d succeeded, %d failed, %d cancelled\n",
			len(result.Report.Succeeded()), len(result.Report.Failed()), len(result.Report.Cancelled()))
		for _, o := range result.Report.Failed() {
			fmt.Fprintf(out, "  failed: %s (%s)\n", o.TaskID, o.ErrKind)
		}
	}
	if len(result.Committed) > 0 {
		fmt.Fprintf(out, "Updated: %s\n", strings.Join(result.Committed, ", "))
	}
}
