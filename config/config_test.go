package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, cfg *Cluster) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestGeneratedConfigLoads(t *testing.T) {
	path := writeConfig(t, GenerateConfig())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got := cfg.MLNodes(); len(got) != 3 {
		t.Errorf("MLNodes() got %v, want 3 nodes", got)
	}
	if cfg.Upload.MaxChunkSize != MaxChunkSizeLimit {
		t.Errorf("Upload.MaxChunkSize got %d, want %d", cfg.Upload.MaxChunkSize, MaxChunkSizeLimit)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	raw := `
instanceSecret: s3cret
defaultLeader: a
dataDir: /tmp/insiml
nodes:
  a:
    raftBinding: 127.0.0.1:9000
    httpBinding: 127.0.0.1:9001
    roles: [ml]
reconcile:
  interval: 3s
`
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Reconcile.Interval.Seconds() != 3 {
		t.Errorf("Reconcile.Interval got %v, want 3s", cfg.Reconcile.Interval)
	}
	if cfg.Upload.ChunkPermits != 2 {
		t.Errorf("Upload.ChunkPermits got %d, want default 2", cfg.Upload.ChunkPermits)
	}
	if cfg.Tasks.MaxDeployTasks != 10 {
		t.Errorf("Tasks.MaxDeployTasks got %d, want default 10", cfg.Tasks.MaxDeployTasks)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Cluster)
		want   error
	}{
		{"missing secret", func(c *Cluster) { c.InstanceSecret = "" }, ErrInstanceSecretMissing},
		{"unknown leader", func(c *Cluster) { c.DefaultLeader = "nodeX" }, ErrDefaultLeaderUnknown},
		{"missing data dir", func(c *Cluster) { c.DataDir = "" }, ErrDataDirMissing},
		{"half tls", func(c *Cluster) { c.TLS.Cert = "server.crt" }, ErrTLSMissing},
		{"oversized chunks", func(c *Cluster) { c.Upload.MaxChunkSize = MaxChunkSizeLimit + 1 }, ErrChunkSizeInvalid},
		{"bad disk ratio", func(c *Cluster) { c.Breaker.MinDiskFreeRatio = 1.5 }, ErrBreakerDiskRatioOutOfRange},
		{"bad level", func(c *Cluster) { c.Logging.Level = "loud" }, ErrUnknownLoggingLevel},
		{"missing bindings", func(c *Cluster) {
			n := c.Nodes["node1"]
			n.HttpBinding = ""
			c.Nodes["node1"] = n
		}, ErrNodeBindingsMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GenerateConfig()
			tt.mutate(cfg)
			_, err := LoadConfig(writeConfig(t, cfg))
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadConfig() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("unreadable file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, ErrConfigFileUnreadable) {
			t.Errorf("LoadConfig() error = %v, want %v", err, ErrConfigFileUnreadable)
		}
	})
}
