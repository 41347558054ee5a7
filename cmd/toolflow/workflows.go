package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dukex/toolflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func workflowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflows",
		Usage: "Manage and run workflows",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved workflows",
				Action: withApp(listWorkflows),
			},
			{
				Name:      "import",
				Usage:     "Import a workflow from a JSON document",
				ArgsUsage: "<file>",
				Action:    withApp(importWorkflow),
			},
			{
				Name:      "export",
				Usage:     "Print a workflow as a JSON document",
				ArgsUsage: "<workflow-id>",
				Action:    withApp(exportWorkflow),
			},
			{
				Name:      "run",
				Usage:     "Run a workflow and print its report",
				ArgsUsage: "<workflow-id>",
				Action:    withApp(runWorkflow),
			},
		},
	}
}

func listWorkflows(_ context.Context, _ *cli.Command, app *App) error {
	writeWorkflows(os.Stdout, app.engine.ListWorkflows())

	return nil
}

func writeWorkflows(w io.Writer, workflows []*models.Workflow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tSCHEDULE")

	for _, wf := range workflows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", wf.ID, wf.Name, len(wf.Steps), wf.Schedule)
	}

	_ = tw.Flush()
}

func importWorkflow(ctx context.Context, command *cli.Command, app *App) error {
	path, err := firstArg(command, "file")
	if err != nil {
		return err
	}

	document, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read workflow document: %w", err)
	}

	wf, err := app.engine.ImportWorkflow(ctx, document)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "Imported %s (%s)\n", wf.Name, wf.ID)

	return err
}

func exportWorkflow(_ context.Context, command *cli.Command, app *App) error {
	id, err := firstArg(command, "workflow-id")
	if err != nil {
		return err
	}

	document, err := app.engine.ExportWorkflow(id)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, string(document))

	return err
}

func runWorkflow(ctx context.Context, command *cli.Command, app *App) error {
	id, err := firstArg(command, "workflow-id")
	if err != nil {
		return err
	}

	run, err := app.engine.RunWorkflow(ctx, id)
	if err != nil {
		return err
	}

	report, err := run.Wait(ctx)
	if err != nil {
		return err
	}

	if err := writeReport(os.Stdout, report); err != nil {
		return err
	}

	if report.Status != models.RunStatusSucceeded {
		return fmt.Errorf("run %s %s: %s", report.ID, report.Status, report.Error)
	}

	return nil
}

func writeReport(w io.Writer, report *models.WorkflowRunReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}
