package main

import (
	"os"
	"os/signal"

	"github.com/aretw0/tasktree/internal/cli"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp <graph>",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the engine as MCP tools (get_status, step, play, rewind,
resolve_assistance, get_records, get_graph) and the graph as a resource.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Logs go to stderr.
- sse: Uses Server-Sent Events over HTTP.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		task, _ := cmd.Flags().GetString("task")
		return cli.ServeMCP(ctx, stack, cli.ServeOptions{
			GraphPath: args[0],
			Transport: transport,
			Port:      port,
			TaskID:    task,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", cli.TransportStdio, "Transport: stdio or sse")
	mcpCmd.Flags().Int("port", 8080, "Port for the sse transport")
	mcpCmd.Flags().String("task", "", "Resume the traversal saved under this checkpoint")
}
