package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/InsulaLabs/insiml/internal/transport"
	"github.com/InsulaLabs/insiml/models"
)

const (
	defaultTimeout = 30 * time.Second
	clientID       = "insiml-client"
)

type ConnectionType string

const (
	ConnectionTypeDirect ConnectionType = "direct" // always Endpoints[0]
	ConnectionTypeRandom ConnectionType = "random" // random start, fail over to the rest
)

type Endpoint struct {
	NodeID   string
	HostPort string
}

type Config struct {
	ConnectionType ConnectionType
	Endpoints      []Endpoint
	InstanceSecret string
	UseTLS         bool
	SkipVerify     bool
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Client is the API client for an insiml cluster. Every call goes to one
// endpoint; unreachable endpoints are skipped in order.
type Client struct {
	cfg       Config
	transport transport.Transport
	logger    *slog.Logger
}

func NewClient(cfg *Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	addrs := make(map[string]string, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if ep.NodeID == "" || ep.HostPort == "" {
			return nil, fmt.Errorf("endpoint needs a node id and hostPort, got %+v", ep)
		}
		addrs[ep.NodeID] = ep.HostPort
	}
	if cfg.InstanceSecret == "" {
		return nil, fmt.Errorf("instanceSecret cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ConnectionType == "" {
		cfg.ConnectionType = ConnectionTypeRandom
	}
	logger := cfg.Logger.WithGroup("insiml_client")

	tr := transport.NewHTTP(transport.HTTPConfig{
		LocalID: clientID,
		Token:   transport.TokenFromSecret(cfg.InstanceSecret),
		Resolve: func(id string) (string, bool) {
			addr, ok := addrs[id]
			return addr, ok
		},
		UseTLS:     cfg.UseTLS,
		SkipVerify: cfg.SkipVerify,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
	return &Client{cfg: *cfg, transport: tr, logger: logger}, nil
}

// order returns the endpoints in the order a call should try them.
func (c *Client) order() []string {
	ids := make([]string, len(c.cfg.Endpoints))
	for i, ep := range c.cfg.Endpoints {
		ids[i] = ep.NodeID
	}
	if c.cfg.ConnectionType == ConnectionTypeDirect {
		return ids[:1]
	}
	start := rand.Intn(len(ids))
	out := make([]string, 0, len(ids))
	return append(append(out, ids[start:]...), ids[:start]...)
}

func do[Resp any](ctx context.Context, c *Client, action models.Action, req any) (Resp, error) {
	var (
		zero    Resp
		lastErr error
	)
	for _, node := range c.order() {
		resp, err := transport.CallTyped[Resp](ctx, c.transport, node, action, req).Wait(ctx)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, transport.ErrUnreachable) {
			return zero, err
		}
		c.logger.Debug("Endpoint unreachable, trying next", "node", node, "action", action, "error", err)
		lastErr = err
	}
	return zero, lastErr
}

func (c *Client) SubmitUpload(ctx context.Context, req models.UploadRequest) (models.TaskRef, error) {
	return do[models.TaskRef](ctx, c, models.ActionSubmitUpload, req)
}

func (c *Client) SubmitDeploy(ctx context.Context, modelID string, nodeIDs ...string) (models.TaskRef, error) {
	return do[models.TaskRef](ctx, c, models.ActionSubmitDeploy, models.DeployRequest{ModelID: modelID, NodeIDs: nodeIDs})
}

func (c *Client) SubmitUndeploy(ctx context.Context, modelID string, nodeIDs ...string) (models.TaskRef, error) {
	return do[models.TaskRef](ctx, c, models.ActionSubmitUndeploy, models.DeployRequest{ModelID: modelID, NodeIDs: nodeIDs})
}

func (c *Client) GetModelState(ctx context.Context, modelID string) (models.ModelStatus, error) {
	return do[models.ModelStatus](ctx, c, models.ActionGetModel, models.ModelRef{ModelID: modelID})
}

// GetTask is answered live by the coordinating node and from the replicated
// task record by any other.
func (c *Client) GetTask(ctx context.Context, taskID string) (models.Task, error) {
	return do[models.Task](ctx, c, models.ActionGetTask, models.TaskRef{TaskID: taskID})
}

// WaitTask polls GetTask until the task completes, fails, or ctx ends.
func (c *Client) WaitTask(ctx context.Context, taskID string, interval time.Duration) (models.Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return task, err
		}
		if task.State.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// LocalModel reads one node's cache entry for a model.
func (c *Client) LocalModel(ctx context.Context, node, modelID string) (models.LocalModel, error) {
	return transport.CallTyped[models.LocalModel](ctx, c.transport, node, models.ActionLocalModel, models.ModelRef{ModelID: modelID}).Wait(ctx)
}
