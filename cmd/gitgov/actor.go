package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitgov-io/gitgov/pkg/record"
)

func newActorCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors and signing keys",
	}
	cmd.AddCommand(
		newActorCreateCmd(opts),
		newActorListCmd(opts),
		newActorRotateCmd(opts),
		newActorRevokeCmd(opts),
		newActorUseCmd(opts),
	)
	return cmd
}

func newActorCreateCmd(opts *cliOptions) *cobra.Command {
	var (
		actorType string
		roles     []string
	)
	cmd := &cobra.Command{
		Use:   "create <display-name>",
		Short: "Create an actor with a fresh keypair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			actor, err := e.Identity.CreateActor(cmd.Context(), record.ActorDraft{
				Type:        record.ActorType(actorType),
				DisplayName: args[0],
				Roles:       roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), actor.Payload.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&actorType, "type", "human", "human or agent")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"author"}, "capability roles")
	return cmd
}

func newActorListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			actors, err := e.Identity.ListActors(cmd.Context())
			if err != nil {
				return err
			}
			current, _ := e.Identity.ResolveCurrentActorID(cmd.Context())
			out := cmd.OutOrStdout()
			for _, actor := range actors {
				marker := " "
				if actor.Payload.ID == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-8s %-30s %v (%s)\n",
					marker, actor.Payload.Status, actor.Payload.ID, actor.Payload.Roles, actor.Payload.DisplayName)
			}
			return nil
		},
	}
}

func newActorRotateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <actor-id>",
		Short: "Rotate an actor's signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			successor, err := e.Identity.RotateActorKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s superseded by %s\n", args[0], successor.Payload.ID)
			return nil
		},
	}
}

func newActorRevokeCmd(opts *cliOptions) *cobra.Command {
	var (
		reason       string
		supersededBy string
	)
	cmd := &cobra.Command{
		Use:   "revoke <actor-id>",
		Short: "Revoke an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			if _, err := e.Identity.RevokeActor(cmd.Context(), args[0],
				record.RevocationReason(reason), supersededBy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s revoked (%s)\n", args[0], reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", string(record.RevocationManual), "compromised, rotation or manual")
	cmd.Flags().StringVar(&supersededBy, "superseded-by", "", "successor actor id")
	return cmd
}

func newActorUseCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <actor-id>",
		Short: "Act as this actor in the current workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close(cmd.Context()) }()

			if err := e.Identity.SetCurrentActor(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acting as %s\n", args[0])
			return nil
		},
	}
}
