package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"counsel/internal/app/di"
	domain "counsel/internal/domain/task"
	"counsel/internal/shared/logging"

	"github.com/spf13/cobra"
)

type tasksOptions struct {
	owner  string
	tenant string
	limit  int
}

func newTasksCommand(root *rootOptions) *cobra.Command {
	opts := &tasksOptions{}
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect tasks stored in Postgres",
	}
	cmd.PersistentFlags().StringVar(&opts.owner, "owner", "", "owner id (required)")
	cmd.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkPersistentFlagRequired("owner")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	list := &cobra.Command{
		Use:   "list",
		Short: "List an owner's most recent tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), root, func(ctx context.Context, store domain.Store) error {
				tasks, err := store.ListForOwner(ctx, opts.owner, opts.limit)
				if err != nil {
					return err
				}
				printTaskList(cmd.OutOrStdout(), tasks, opts.tenant, time.Now())
				return nil
			})
		},
	}
	list.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of tasks")

	get := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task with its progress log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), root, func(ctx context.Context, store domain.Store) error {
				t, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if t.OwnerID != opts.owner || t.TenantID != opts.tenant {
					return domain.ErrNotFound
				}
				printTaskDetail(cmd.OutOrStdout(), domain.Describe(t, time.Now()))
				return nil
			})
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func withStore(ctx context.Context, root *rootOptions, fn func(context.Context, domain.Store) error) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is not configured; the in-memory store is only visible to a running server")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	store, pool, err := di.OpenTaskStore(ctx, cfg.Database, logging.Nop())
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, store)
}

func printTaskList(w io.Writer, tasks []*domain.Task, tenant string, now time.Time) {
	count := 0
	for _, t := range tasks {
		if t.TenantID != tenant {
			continue
		}
		s := domain.Summarize(t, now)
		fmt.Fprintf(w, "%s  %-22s %3d%%  %2d/%-2d  %s\n",
			gray(s.ID), statusLabel(s.Status), s.ProgressPercent, s.Iterations, s.MaxIterations, truncateLine(s.Goal, 60))
		count++
	}
	if count == 0 {
		fmt.Fprintln(w, gray("No tasks"))
	}
}

func printTaskDetail(w io.Writer, d domain.Detail) {
	fmt.Fprintf(w, "%s %s\n", bold("Task"), d.ID)
	fmt.Fprintf(w, "%s %s\n", bold("Goal:"), d.Goal)
	fmt.Fprintf(w, "%s %s  (%d%%, %d/%d iterations, %.1fs)\n", bold("Status:"), statusLabel(d.Status),
		d.ProgressPercent, d.Iterations, d.MaxIterations, d.DurationSeconds)
	if d.CurrentStep != "" {
		fmt.Fprintf(w, "%s %s\n", bold("Current step:"), d.CurrentStep)
	}
	if len(d.Plan) > 0 {
		fmt.Fprintln(w, bold("Plan:"))
		for i, step := range d.Plan {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
	}
	if len(d.Progress) > 0 {
		fmt.Fprintln(w, bold("Progress:"))
		for _, entry := range d.Progress {
			line := fmt.Sprintf("  #%d %s → %s", entry.Iteration, entry.ToolName, entry.OutcomeSummary)
			if entry.IsError {
				line = red(line)
			}
			fmt.Fprintln(w, line)
		}
	}
	if d.PendingInput != nil {
		fmt.Fprintf(w, "%s %s\n", yellow("Waiting on:"), d.PendingInput.Question)
	}
	if d.Result != "" {
		fmt.Fprintf(w, "%s\n%s\n", bold("Result:"), d.Result)
	}
	if d.Error != "" {
		fmt.Fprintf(w, "%s %s\n", red("Error:"), d.Error)
	}
	if d.Rating != nil {
		fmt.Fprintf(w, "%s %s\n", bold("Rating:"), strings.Repeat("★", *d.Rating))
	}
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
