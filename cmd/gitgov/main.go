// Command gitgov is the workspace CLI over the governance engine: it
// initializes the .gitgov record tree, drives task lifecycle operations
// and verifies the cryptographic integrity of the tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/gitgov"
	"github.com/gitgov-io/gitgov/pkg/observability"
	"github.com/gitgov-io/gitgov/pkg/record"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	workdir string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "gitgov",
		Short:         "Git-native governance engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.workdir, "workdir", "C", ".", "workspace directory containing .gitgov")

	root.AddCommand(
		newInitCmd(opts),
		newStatusCmd(opts),
		newVerifyCmd(opts),
		newIndexCmd(opts),
		newTickCmd(opts),
		newTaskCmd(opts),
		newActorCmd(opts),
	)
	return root
}

// openEngine wires an engine over the workspace, with telemetry when
// GITGOV_OTLP_ENDPOINT is set.
func openEngine(ctx context.Context, opts *cliOptions) (*gitgov.Engine, error) {
	var engineOpts []gitgov.Option
	if endpoint := os.Getenv("GITGOV_OTLP_ENDPOINT"); endpoint != "" {
		cfg := observability.DefaultConfig()
		cfg.Enabled = true
		cfg.OTLPEndpoint = endpoint
		provider, err := observability.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, gitgov.WithObservability(provider))
	}
	return gitgov.Open(ctx, opts.workdir, engineOpts...)
}

func newInitCmd(opts *cliOptions) *cobra.Command {
	var (
		project     string
		methodology string
		actorName   string
		roles       []string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .gitgov tree and bootstrap the first actor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if project != "" {
				cfg.ProjectName = project
			}
			if methodology != "" {
				cfg.Methodology = methodology
			}
			draft := record.ActorDraft{
				Type:        record.ActorTypeHuman,
				DisplayName: actorName,
				Roles:       roles,
			}
			e, err := gitgov.Init(cmd.Context(), opts.workdir, cfg, draft)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()
			actor, err := e.Identity.GetCurrentActor(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s (%s) as %s\n",
				cfg.ProjectName, cfg.Methodology, actor.Payload.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&methodology, "methodology", "", "workflow methodology (kanban, scrum, or a file path)")
	cmd.Flags().StringVar(&actorName, "actor", "", "display name of the first actor")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"author"}, "roles of the first actor")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report backlog health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			status, err := e.Metrics.GetSystemStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project: %s\n", e.Config.ProjectName)
			fmt.Fprintf(out, "tasks: %d (created today: %d)\n", status.TaskCount, status.TasksCreatedToday)
			for _, s := range record.TaskStatuses {
				if n := status.Distribution[s]; n > 0 {
					fmt.Fprintf(out, "  %-10s %d%%\n", s, n)
				}
			}
			fmt.Fprintf(out, "average health: %d (healthy: %v)\n", status.AverageHealth, status.Healthy)
			return nil
		},
	}
}

func newVerifyCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify checksum and signatures of every record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			report, err := e.VerifyAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d records\n", report.Checked)
			if report.OK() {
				fmt.Fprintln(out, "all records verify")
				return nil
			}
			for _, p := range report.Problems {
				fmt.Fprintf(out, "FAIL %s %s: %v\n", p.Kind, p.ID, p.Err)
			}
			return fmt.Errorf("%d of %d records failed verification", len(report.Problems), report.Checked)
		},
	}
}

func newIndexCmd(opts *cliOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the SQLite query index from the record tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			n, err := e.RebuildIndex(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records into %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "db", ".gitgov/index.db", "index database path")
	return cmd
}

func newTickCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one staleness sweep over the backlog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			e.Tick()
			if err := e.WaitForIdle(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sweep complete")
			return nil
		},
	}
}
