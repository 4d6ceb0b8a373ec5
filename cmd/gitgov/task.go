package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitgov-io/gitgov/pkg/record"
)

func newTaskCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage backlog tasks",
	}
	cmd.AddCommand(
		newTaskCreateCmd(opts),
		newTaskListCmd(opts),
		newTaskShowCmd(opts),
		newTaskTransitionCmd(opts, "submit", "Submit a draft task for review",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.SubmitTask(ctx, id)
			}),
		newTaskTransitionCmd(opts, "approve", "Approve a task in review",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.ApproveTask(ctx, id)
			}),
		newTaskTransitionCmd(opts, "activate", "Start work on a ready task",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.ActivateTask(ctx, id)
			}),
		newTaskTransitionCmd(opts, "complete", "Complete an active task",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.CompleteTask(ctx, id)
			}),
		newTaskTransitionCmd(opts, "pause", "Pause an active task",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.PauseTask(ctx, id)
			}),
		newTaskTransitionCmd(opts, "resume", "Resume a paused task",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.ResumeTask(ctx, id)
			}),
		newTaskTransitionCmd(opts, "discard", "Discard a task",
			func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error) {
				return e.DiscardTask(ctx, id)
			}),
	)
	return cmd
}

// engineBacklog is the slice of the backlog adapter the task subcommands
// use; narrowed for testability.
type engineBacklog interface {
	SubmitTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
	ApproveTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
	ActivateTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
	CompleteTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
	PauseTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
	ResumeTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
	DiscardTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error)
}

func newTaskCreateCmd(opts *cliOptions) *cobra.Command {
	var (
		description string
		priority    string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a draft task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			task, err := e.Backlog.CreateTask(cmd.Context(), record.TaskDraft{
				Title:       args[0],
				Description: description,
				Priority:    record.TaskPriority(priority),
				Tags:        tags,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), task.Payload.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "critical, high, medium or low")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "task tags")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newTaskListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			tasks, err := e.Backlog.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, task := range tasks {
				fmt.Fprintf(out, "%-10s %-8s %s  %s\n",
					task.Payload.Status, task.Payload.Priority, task.Payload.ID, task.Payload.Title)
			}
			return nil
		},
	}
}

func newTaskShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task with its health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			task, err := e.Backlog.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			health, err := e.Metrics.GetTaskHealth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n  title: %s\n  status: %s\n  priority: %s\n",
				task.Payload.ID, task.Payload.Title, task.Payload.Status, task.Payload.Priority)
			if len(task.Payload.CycleIDs) > 0 {
				fmt.Fprintf(out, "  cycles: %v\n", task.Payload.CycleIDs)
			}
			fmt.Fprintf(out, "  health: %d (healthy: %v, %d days in stage, %d open blockers)\n",
				health.Score, health.Healthy, health.TimeInStageDays, health.OpenBlocking)
			return nil
		},
	}
}

func newTaskTransitionCmd(opts *cliOptions, verb, short string,
	run func(ctx context.Context, e engineBacklog, id string) (*record.Record[record.TaskPayload], error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			task, err := run(cmd.Context(), e.Backlog, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", task.Payload.ID, task.Payload.Status)
			return nil
		},
	}
}
