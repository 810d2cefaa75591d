package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/InsulaLabs/insiml/config"
	"github.com/InsulaLabs/insiml/internal/registry"
	"github.com/InsulaLabs/insiml/internal/tkv"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// openRegistry opens the target node's registry replica. The node must be
// stopped; badger holds an exclusive lock on its directory.
func (g *globals) openRegistry() (*registry.Registry, func(), error) {
	dir := filepath.Join(g.cfg.DataDir, g.target, config.RegistryDirName)
	store, err := tkv.New(tkv.Config{
		Logger:         g.logger,
		BadgerLogLevel: slog.LevelError,
		Directory:      dir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not open registry at %s (is the node running?): %w", dir, err)
	}
	return registry.New(store, g.logger), func() { store.Close() }, nil
}

func registryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect a stopped node's registry replica",
	}
	cmd.AddCommand(registryModelsCmd(g))
	cmd.AddCommand(registryModelCmd(g))
	cmd.AddCommand(registryTasksCmd(g))
	cmd.AddCommand(registryVerifyCmd(g))
	return cmd
}

func registryModelsCmd(g *globals) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, closeFn, err := g.openRegistry()
			if err != nil {
				return err
			}
			defer closeFn()
			list, err := reg.ListModels(offset, limit)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), list, g.jsonOutput)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many models")
	cmd.Flags().IntVar(&limit, "limit", 100, "Return at most this many models")
	return cmd
}

func registryModelCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "model <model-id>",
		Short: "Show a model's full metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, closeFn, err := g.openRegistry()
			if err != nil {
				return err
			}
			defer closeFn()
			m, err := reg.GetModel(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
}

func registryTasksCmd(g *globals) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List persisted tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, closeFn, err := g.openRegistry()
			if err != nil {
				return err
			}
			defer closeFn()
			list, err := reg.ListTasks(offset, limit)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), list, g.jsonOutput)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many tasks")
	cmd.Flags().IntVar(&limit, "limit", 100, "Return at most this many tasks")
	return cmd
}

func registryVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [model-id...]",
		Short: "Check chunk count, size and content hash of uploaded models",
		Long:  "Check chunk count, size and content hash of the named models, or of every model past upload when none are named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, closeFn, err := g.openRegistry()
			if err != nil {
				return err
			}
			defer closeFn()

			ids := args
			if len(ids) == 0 {
				list, err := reg.ListModels(0, 0)
				if err != nil {
					return err
				}
				for _, m := range list {
					if m.TotalChunks > 0 {
						ids = append(ids, m.ID)
					}
				}
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, id := range ids {
				if err := reg.VerifyChunks(id); err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", color.HiRedString("FAIL"), id, err)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", color.HiGreenString("OK"), id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d models failed verification", failed, len(ids))
			}
			return nil
		},
	}
}
