package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aretw0/tasktree/internal/cli"
	"github.com/aretw0/tasktree/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tasktree",
	Short: "tasktree executes task graphs driven by language models",
	Long: `tasktree walks a tree of script, model, assist and disaggregator nodes
depth first, streaming model output and checkpointing progress so a task can
be paused and resumed.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it until
// SIGTERM. SIGINT is left to the commands, which pause on it.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Working directory holding tasktree.yaml and .env")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default <dir>/tasktree.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level to stderr")
}

// loadConfig reads the configuration named by the persistent flags after
// loading <dir>/.env into the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	path, _ := cmd.Flags().GetString("config")
	if err := config.LoadEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	if path != "" {
		return config.Load(path)
	}
	return config.Discover(dir)
}

// openStack builds the shared services; the caller closes them.
func openStack(cmd *cobra.Command) (*cli.Stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.NewStack(cfg, cli.NewLogger(cfg, debug))
}
