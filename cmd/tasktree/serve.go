package main

import (
	"os"
	"os/signal"

	"github.com/aretw0/tasktree/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve <graph>",
	Short: "Serve a task graph over HTTP",
	Long: `Exposes one engine as a JSON API with Server-Sent Events on /events and
Prometheus metrics on /metrics. SIGINT drains outstanding requests.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		port, _ := cmd.Flags().GetString("port")
		task, _ := cmd.Flags().GetString("task")
		return cli.Serve(ctx, stack, cli.ServeOptions{GraphPath: args[0], Addr: ":" + port, TaskID: task})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("task", "", "Resume the traversal saved under this checkpoint")
}
