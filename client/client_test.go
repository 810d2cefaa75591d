package client

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/InsulaLabs/insiml/internal/transport"
	"github.com/InsulaLabs/insiml/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newServer(t *testing.T, handlers transport.Handlers) string {
	t.Helper()
	srv := transport.NewServer(transport.ServerConfig{
		Token:    transport.TokenFromSecret(secret),
		Handlers: handlers,
		Logger:   testLogger(),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestFailsOverUnreachableEndpoint(t *testing.T) {
	addr := newServer(t, transport.Handlers{
		models.ActionSubmitDeploy: transport.Decode(func(_ context.Context, _ string, req models.DeployRequest) (any, error) {
			return models.TaskRef{TaskID: "t1", ModelID: req.ModelID}, nil
		}),
	})
	c, err := NewClient(&Config{
		Endpoints: []Endpoint{
			{NodeID: "dead", HostPort: "127.0.0.1:1"},
			{NodeID: "live", HostPort: addr},
		},
		InstanceSecret: secret,
		Timeout:        2 * time.Second,
		Logger:         testLogger(),
	})
	require.NoError(t, err)

	for range 4 {
		ref, err := c.SubmitDeploy(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, "m1", ref.ModelID)
	}
}

func TestTypedErrorsDoNotFailOver(t *testing.T) {
	var calls atomic.Int32
	handlers := transport.Handlers{
		models.ActionGetModel: transport.Decode(func(_ context.Context, _ string, req models.ModelRef) (any, error) {
			calls.Add(1)
			return nil, &models.ErrNotFound{Kind: "model", ID: req.ModelID}
		}),
	}
	c, err := NewClient(&Config{
		ConnectionType: ConnectionTypeRandom,
		Endpoints: []Endpoint{
			{NodeID: "a", HostPort: newServer(t, handlers)},
			{NodeID: "b", HostPort: newServer(t, handlers)},
		},
		InstanceSecret: secret,
		Logger:         testLogger(),
	})
	require.NoError(t, err)

	_, err = c.GetModelState(context.Background(), "missing")
	assert.True(t, models.IsNotFound(err), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitTaskPollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	addr := newServer(t, transport.Handlers{
		models.ActionGetTask: transport.Decode(func(_ context.Context, _ string, req models.TaskRef) (any, error) {
			state := models.TaskStateRunning
			if polls.Add(1) >= 3 {
				state = models.TaskStateCompleted
			}
			return models.Task{ID: req.TaskID, State: state}, nil
		}),
	})
	c, err := NewClient(&Config{
		ConnectionType: ConnectionTypeDirect,
		Endpoints:      []Endpoint{{NodeID: "n0", HostPort: addr}},
		InstanceSecret: secret,
		Logger:         testLogger(),
	})
	require.NoError(t, err)

	task, err := c.WaitTask(context.Background(), "t1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, task.State)
	assert.Equal(t, int32(3), polls.Load())
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(&Config{InstanceSecret: secret, Logger: testLogger()})
	assert.Error(t, err)
	_, err = NewClient(&Config{Endpoints: []Endpoint{{NodeID: "n0", HostPort: "x:1"}}, Logger: testLogger()})
	assert.Error(t, err)
}
