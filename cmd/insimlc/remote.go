package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/InsulaLabs/insiml/client"
	"github.com/InsulaLabs/insiml/models"
	"github.com/spf13/cobra"
)

// client talks to --target alone when it was given, otherwise to any node.
func (g *globals) client() (*client.Client, error) {
	cfg := &client.Config{
		ConnectionType: client.ConnectionTypeRandom,
		InstanceSecret: g.cfg.InstanceSecret,
		UseTLS:         g.cfg.TLS.Cert != "",
		SkipVerify:     g.cfg.ClientSkipVerify,
		Timeout:        g.cfg.Deploy.RPCTimeout,
		Logger:         g.logger,
	}
	if g.targetSet {
		cfg.ConnectionType = client.ConnectionTypeDirect
		cfg.Endpoints = []client.Endpoint{{NodeID: g.target, HostPort: g.cfg.Nodes[g.target].HttpBinding}}
	} else {
		for _, id := range sortedNodeIDs(g) {
			cfg.Endpoints = append(cfg.Endpoints, client.Endpoint{NodeID: id, HostPort: g.cfg.Nodes[id].HttpBinding})
		}
	}
	return client.NewClient(cfg)
}

func sortedNodeIDs(g *globals) []string {
	ids := make([]string, 0, len(g.cfg.Nodes))
	for id := range g.cfg.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func uploadCmd(g *globals) *cobra.Command {
	var (
		format    string
		chunkSize int64
		node      string
		modelID   string
		algorithm string
		wait      bool
	)

	cmd := &cobra.Command{
		Use:   "upload <name> <version> <artifact-ref>",
		Short: "Register a model and store its artifact as chunks",
		Long:  "Register a model and store its artifact as chunks. The artifact ref is a file://, http(s):// or s3:// URL readable by the storing node.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ref, err := c.SubmitUpload(cmd.Context(), models.UploadRequest{
				ModelID:     modelID,
				Name:        args[0],
				Version:     args[1],
				Format:      models.ModelFormat(format),
				Algorithm:   algorithm,
				ArtifactRef: args[2],
				ChunkSize:   chunkSize,
				NodeID:      node,
			})
			if err != nil {
				return err
			}
			return g.finish(cmd, c, ref, wait)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(models.ModelFormatRaw), "Model format (TORCH_SCRIPT, ONNX, RAW)")
	cmd.Flags().Int64Var(&chunkSize, "chunk-size", 0, "Chunk size in bytes (defaults to the cluster setting)")
	cmd.Flags().StringVar(&node, "node", "", "Pin the upload to this node")
	cmd.Flags().StringVar(&modelID, "id", "", "Model id (generated when empty)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Free-form algorithm label")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")
	return cmd
}

func deployCmd(g *globals, undeploy bool) *cobra.Command {
	var (
		nodes []string
		wait  bool
	)

	use, short := "deploy", "Load a model on ML nodes"
	if undeploy {
		use, short = "undeploy", "Unload a model from nodes"
	}
	cmd := &cobra.Command{
		Use:   use + " <model-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			submit := c.SubmitDeploy
			if undeploy {
				submit = c.SubmitUndeploy
			}
			ref, err := submit(cmd.Context(), args[0], nodes...)
			if err != nil {
				return err
			}
			return g.finish(cmd, c, ref, wait)
		},
	}
	cmd.Flags().StringSliceVar(&nodes, "nodes", nil, "Restrict to these node ids (all eligible nodes when empty)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")
	return cmd
}

func (g *globals) finish(cmd *cobra.Command, c *client.Client, ref models.TaskRef, wait bool) error {
	if !wait {
		return printTaskRef(cmd.OutOrStdout(), ref, g.jsonOutput)
	}
	task, err := c.WaitTask(cmd.Context(), ref.TaskID, time.Second)
	if err != nil {
		return err
	}
	return printTask(cmd.OutOrStdout(), task, g.jsonOutput)
}

func modelCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "model <model-id>",
		Short: "Show a model's cluster state and worker nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			status, err := c.GetModelState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printModelStatus(cmd.OutOrStdout(), status, g.jsonOutput)
		},
	}
}

func taskCmd(g *globals) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			var task models.Task
			if wait {
				task, err = c.WaitTask(cmd.Context(), args[0], interval)
			} else {
				task, err = c.GetTask(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printTask(cmd.OutOrStdout(), task, g.jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the task completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval with --wait")
	return cmd
}

func localCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "local <model-id>",
		Short: "Show the target node's cache entry for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			entry, err := c.LocalModel(cmd.Context(), g.target, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", g.target, err)
			}
			return printLocalModel(cmd.OutOrStdout(), g.target, entry, g.jsonOutput)
		},
	}
}
