package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var errMissingArgument = errors.New("missing argument")

func toolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "Manage registered tools",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered tools",
				Action: withApp(listTools),
			},
			{
				Name:      "add",
				Usage:     "Register a tool from a GitHub repository",
				ArgsUsage: "<owner/repo>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Tool name, defaults to the repository name"},
					&cli.StringFlag{Name: "description", Usage: "Tool description"},
					&cli.StringFlag{Name: "method", Usage: "Install method (git, go)", Value: string(models.InstallMethodGit)},
					&cli.StringFlag{Name: "install-command", Usage: "Shell command that replaces the default install"},
				},
				Action: withApp(addTool),
			},
			{
				Name:      "install",
				Usage:     "Install a tool and wait for it to finish",
				ArgsUsage: "<tool>",
				Action:    withApp(installTool),
			},
			{
				Name:      "reset",
				Usage:     "Move a failed tool back to pending",
				ArgsUsage: "<tool>",
				Action:    withApp(resetTool),
			},
			{
				Name:      "remove",
				Usage:     "Unregister a tool",
				ArgsUsage: "<tool>",
				Action:    withApp(removeTool),
			},
		},
	}
}

// withApp builds the engine for a one-shot command and closes it afterwards.
func withApp(action func(context.Context, *cli.Command, *App) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		app, err := newApp(ctx, command)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		return action(ctx, command, app)
	}
}

func firstArg(command *cli.Command, name string) (string, error) {
	value := command.Args().First()
	if value == "" {
		return "", fmt.Errorf("%w: %s", errMissingArgument, name)
	}

	return value, nil
}

func resolveTool(command *cli.Command, app *App) (*models.Tool, error) {
	ref, err := firstArg(command, "tool")
	if err != nil {
		return nil, err
	}

	tool, ok := app.engine.Tools().Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrToolNotFound, ref)
	}

	return tool, nil
}

func listTools(_ context.Context, _ *cli.Command, app *App) error {
	writeTools(os.Stdout, app.engine.ListTools())

	return nil
}

func writeTools(w io.Writer, tools []*models.Tool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tREPOSITORY\tMETHOD\tSTATUS\tERROR")

	for _, tool := range tools {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tool.ID, tool.Name, tool.Repository, tool.InstallMethod, tool.Status, tool.Error)
	}

	_ = tw.Flush()
}

func addTool(ctx context.Context, command *cli.Command, app *App) error {
	repository, err := firstArg(command, "repository")
	if err != nil {
		return err
	}

	tool, err := app.engine.RegisterTool(ctx, &models.Tool{
		Name:           command.String("name"),
		Repository:     repository,
		Description:    command.String("description"),
		InstallMethod:  models.InstallMethod(command.String("method")),
		InstallCommand: command.String("install-command"),
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "Registered %s (%s)\n", tool.Name, tool.ID)

	return err
}

func installTool(ctx context.Context, command *cli.Command, app *App) error {
	tool, err := resolveTool(command, app)
	if err != nil {
		return err
	}

	task, err := app.engine.InstallTool(ctx, tool.ID)
	if err != nil {
		return err
	}

	if _, err := task.Wait(ctx); err != nil {
		return fmt.Errorf("install of %s failed: %w", tool.Name, err)
	}

	installed, err := app.engine.GetTool(tool.ID)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "Installed %s at %s\n", installed.Name, installed.InstallPath)

	return err
}

func resetTool(ctx context.Context, command *cli.Command, app *App) error {
	tool, err := resolveTool(command, app)
	if err != nil {
		return err
	}

	if _, err := app.engine.ResetTool(ctx, tool.ID); err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "Reset %s\n", tool.Name)

	return err
}

func removeTool(ctx context.Context, command *cli.Command, app *App) error {
	tool, err := resolveTool(command, app)
	if err != nil {
		return err
	}

	if err := app.engine.RemoveTool(ctx, tool.ID); err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "Removed %s\n", tool.Name)

	return err
}
