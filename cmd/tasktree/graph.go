package main

import (
	"github.com/aretw0/tasktree/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <graph>",
	Short: "Render a task graph",
	Long: `Renders the graph as a Mermaid flowchart, an indented tree, or its JSON or
YAML encoding. With --task the states and cursor saved under that checkpoint
are drawn over it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		format, _ := cmd.Flags().GetString("format")
		task, _ := cmd.Flags().GetString("task")
		return cli.RenderGraph(cmd.Context(), stack, cli.GraphOptions{
			GraphPath: args[0],
			Format:    format,
			TaskID:    task,
			Out:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringP("format", "f", cli.GraphMermaid, "Output format: mermaid, tree, json or yaml")
	graphCmd.Flags().String("task", "", "Overlay the traversal saved under this checkpoint")
}
