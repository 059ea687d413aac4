package main

import (
	"errors"

	"github.com/aretw0/tasktree/internal/cli"
	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:     "checkpoints",
	Aliases: []string{"cp"},
	Short:   "Manage saved checkpoints",
	Long:    `List, inspect, and remove the checkpoints held by the configured store.`,
}

var checkpointsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved checkpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()
		return cli.ListCheckpoints(cmd.Context(), stack, cmd.OutOrStdout())
	},
}

var checkpointsInspectCmd = &cobra.Command{
	Use:   "inspect <task-id>",
	Short: "Print a checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()
		return cli.InspectCheckpoint(cmd.Context(), stack, args[0], cmd.OutOrStdout())
	},
}

var checkpointsRmCmd = &cobra.Command{
	Use:   "rm <task-id>...",
	Short: "Remove one or more checkpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		var errs []error
		for _, id := range args {
			errs = append(errs, cli.RemoveCheckpoint(cmd.Context(), stack, id, cmd.OutOrStdout()))
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsLsCmd, checkpointsInspectCmd, checkpointsRmCmd)
}
