package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/InsulaLabs/insiml/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type globals struct {
	configPath string
	target     string
	targetSet  bool
	jsonOutput bool
	verbose    bool

	cfg    *config.Cluster
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		color.HiRed("Error: %v", err)
		os.Exit(1)
	}
}

// newRootCommand builds the insimlc command tree.
//
// Commands provided:
//   - upload <name> <version> <artifact-ref> [--format] [--chunk-size] [--node] [--id]
//   - deploy <model-id> [--nodes]
//   - undeploy <model-id> [--nodes]
//   - model <model-id>
//   - task <task-id> [--wait]
//   - local <model-id>
//   - registry models|model|tasks|verify (offline, reads a stopped node's store)
func newRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "insimlc",
		Short: "Operate an insiml model cluster",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			cfg, err := config.LoadConfig(g.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration from %s: %w", g.configPath, err)
			}
			g.cfg = cfg
			g.targetSet = g.target != ""
			if !g.targetSet {
				g.target = cfg.DefaultLeader
			}
			if _, ok := cfg.Nodes[g.target]; !ok {
				return fmt.Errorf("node %q not found in configuration", g.target)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "cluster.yaml", "Path to the cluster configuration file")
	root.PersistentFlags().StringVar(&g.target, "target", "", "Node to talk to; remote commands use any node and offline ones the default leader when unset")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(uploadCmd(g))
	root.AddCommand(deployCmd(g, false))
	root.AddCommand(deployCmd(g, true))
	root.AddCommand(modelCmd(g))
	root.AddCommand(taskCmd(g))
	root.AddCommand(localCmd(g))
	root.AddCommand(registryCmd(g))
	return root
}
