package main

import (
	"bytes"
	"testing"

	"github.com/InsulaLabs/insiml/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTaskListsNodeErrors(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, printTask(&buf, models.Task{
		ID:         "t1",
		Type:       models.TaskTypeDeploy,
		State:      models.TaskStateCompleted,
		NodeErrors: map[string]string{"n2": "out of memory", "n1": "timeout"},
	}, false))
	out := buf.String()
	assert.Contains(t, out, "COMPLETED")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("n1: timeout")), bytes.Index(buf.Bytes(), []byte("n2: out of memory")))
}

func TestPrintModelsTable(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, printModels(&buf, []*models.ModelArtifact{
		{ID: "m1", Name: "bert", Version: "1", State: models.ModelStateDeployed, WorkerNodes: []string{"n0", "n1"}},
	}, false))
	assert.Contains(t, buf.String(), "n0,n1")
	assert.Contains(t, buf.String(), "DEPLOYED")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"upload", "deploy", "undeploy", "model", "task", "local", "registry"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
