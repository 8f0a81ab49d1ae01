package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"issue-scout/internal/bootstrap"
	"issue-scout/internal/repos"
	"issue-scout/internal/scans"
)

const cliRequester = "cli"

func (c *cli) scanCommand() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "scan owner/name",
		Short: "Add a repository and scan it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitFullName(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withApp(ctx, func(app *bootstrap.App) error {
				repo, _, err := app.RepoService.Add(ctx, cliRequester, owner, name)
				if err != nil {
					return err
				}
				job, err := app.Coordinator.Trigger(ctx, repo.ID, cliRequester, resume)
				if err != nil {
					return err
				}
				return c.follow(ctx, app, repo, job.ID)
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the last checkpoint when one exists")
	return cmd
}

func (c *cli) resumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume owner/name",
		Short: "Continue the latest interrupted scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(app *bootstrap.App) error {
				repo, err := lookup(ctx, app, args[0])
				if err != nil {
					return err
				}
				job, err := app.Coordinator.Resume(ctx, repo.ID, cliRequester)
				if err != nil {
					return err
				}
				return c.follow(ctx, app, repo, job.ID)
			})
		},
	}
}

func (c *cli) cancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel owner/name",
		Short: "Cancel the active scan of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(app *bootstrap.App) error {
				repo, err := lookup(ctx, app, args[0])
				if err != nil {
					return err
				}
				job, err := app.Coordinator.CancelRepository(ctx, repo.ID)
				if err != nil {
					return err
				}
				progress, err := app.Coordinator.GetProgress(ctx, job.ID)
				if err != nil {
					return err
				}
				renderProgress(c.out, repo.FullName(), progress)
				return nil
			})
		},
	}
}

func (c *cli) progressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress owner/name",
		Short: "Show the latest scan's progress log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(app *bootstrap.App) error {
				repo, err := lookup(ctx, app, args[0])
				if err != nil {
					return err
				}
				progress, err := app.Coordinator.RepositoryProgress(ctx, repo.ID)
				if errors.Is(err, scans.ErrNotFound) {
					fmt.Fprintf(c.out, "%s has not been scanned\n", repo.FullName())
					return nil
				}
				if err != nil {
					return err
				}
				renderProgress(c.out, repo.FullName(), progress)
				return nil
			})
		},
	}
}

// follow waits for the in-process run and prints where it ended. An interrupt
// leaves the job resumable once withApp shuts the coordinator down.
func (c *cli) follow(ctx context.Context, app *bootstrap.App, repo repos.Repository, jobID string) error {
	if err := app.Coordinator.Wait(ctx, jobID); err != nil {
		fmt.Fprintf(c.out, "interrupted; run `scout resume %s` to continue\n", repo.FullName())
		return err
	}
	progress, err := app.Coordinator.GetProgress(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return err
	}
	renderProgress(c.out, repo.FullName(), progress)
	if progress.Status == scans.StatusFailed {
		return fmt.Errorf("scan failed: %s", progress.LastError)
	}
	return nil
}

func lookup(ctx context.Context, app *bootstrap.App, fullName string) (repos.Repository, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return repos.Repository{}, err
	}
	repo, err := app.ReposRepo.GetByOwnerName(ctx, owner, name)
	if errors.Is(err, repos.ErrNotFound) {
		return repos.Repository{}, fmt.Errorf("%s is not tracked; run `scout scan %s` first", fullName, fullName)
	}
	return repo, err
}

func splitFullName(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("expected owner/name, got %q", fullName)
	}
	return owner, name, nil
}
