package main

import (
	"os"
	"strings"

	"github.com/aretw0/tasktree/internal/cli"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var planCmd = &cobra.Command{
	Use:   "plan <task description>",
	Short: "Plan a task graph with the model",
	Long: `Converses with the default backend through the spec, list_steps and
build_graph phases until the model produces a task graph. Questions from the
model are answered on stdin. The graph is printed, optionally written with
--output and executed with --execute.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		opts := cli.PlanOptions{
			Task:     strings.Join(args, " "),
			Headless: !term.IsTerminal(int(os.Stdin.Fd())),
			In:       cmd.InOrStdin(),
			Out:      cmd.OutOrStdout(),
		}
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Execute, _ = cmd.Flags().GetBool("execute")
		opts.Tags, _ = cmd.Flags().GetStringSlice("tags")
		return cli.Plan(cmd.Context(), stack, opts)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringP("output", "o", "", "Write the planned graph to this file (.json or .yaml)")
	planCmd.Flags().Bool("execute", false, "Execute the graph once it is planned")
	planCmd.Flags().StringSlice("tags", nil, "Extra prompt tags seeded before the first phase")
}
