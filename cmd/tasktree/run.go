package main

import (
	"os"

	"github.com/aretw0/tasktree/internal/cli"
	"github.com/aretw0/tasktree/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run <graph>",
	Short: "Execute a task graph",
	Long: `Loads the graph file (JSON or YAML), validates it and walks it depth first.
Progress is checkpointed under the task ID after every pass, so an interrupted
run continues with --resume. Without a terminal on stdin the run is headless and
stops at the first node that fails or needs assistance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		headless, _ := cmd.Flags().GetBool("headless")
		quiet, _ := cmd.Flags().GetBool("quiet")
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			headless = true
		}
		if !quiet && term.IsTerminal(int(os.Stdout.Fd())) {
			tui.PrintBanner(cmd.OutOrStdout())
		}

		opts := cli.RunOptions{
			GraphPath: args[0],
			Headless:  headless,
			Quiet:     quiet,
			Signals:   true,
			In:        cmd.InOrStdin(),
			Out:       cmd.OutOrStdout(),
		}
		opts.TaskID, _ = cmd.Flags().GetString("task-id")
		opts.Resume, _ = cmd.Flags().GetBool("resume")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		return cli.Run(cmd.Context(), stack, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("task-id", "", "Checkpoint ID (default: the graph name)")
	runCmd.Flags().Bool("resume", false, "Continue from the saved checkpoint if one exists")
	runCmd.Flags().Bool("fresh", false, "Discard the saved checkpoint before starting")
	runCmd.Flags().Bool("headless", false, "Never prompt; stop at the first failed or assist node")
	runCmd.Flags().BoolP("quiet", "q", false, "Print nothing but prompts")
}
