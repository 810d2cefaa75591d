package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	RaftDataDirName   = "raft_data"
	RegistryDirName   = "registry"
	ArtifactsDirName  = "artifacts"
	StagingDirName    = "staging"
	RoleML            = "ml"
	RoleData          = "data"
	MaxChunkSizeLimit = 10 << 20 // 10MB
)

type Node struct {
	RaftBinding  string   `yaml:"raftBinding"`
	HttpBinding  string   `yaml:"httpBinding"`
	ClientDomain string   `yaml:"clientDomain,omitempty"`
	Roles        []string `yaml:"roles"`
}

// IsML reports whether the node may host deployed models.
func (n Node) IsML() bool {
	return slices.Contains(n.Roles, RoleML)
}

type TLS struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Upload struct {
	DefaultChunkSize int64         `yaml:"defaultChunkSize"`
	MaxChunkSize     int64         `yaml:"maxChunkSize"`
	ChunkPermits     int           `yaml:"chunkPermits"`
	PermitTimeout    time.Duration `yaml:"permitTimeout"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
}

type Deploy struct {
	FetchPermits  int           `yaml:"fetchPermits"`
	PermitTimeout time.Duration `yaml:"permitTimeout"`
	SyncTimeout   time.Duration `yaml:"syncTimeout"` // max wait for the local replica to catch up before loading
	RPCTimeout    time.Duration `yaml:"rpcTimeout"`
}

type Tasks struct {
	MaxUploadTasks  int           `yaml:"maxUploadTasks"`
	MaxDeployTasks  int           `yaml:"maxDeployTasks"`
	UpdateTimeout   time.Duration `yaml:"updateTimeout"`
	RetainCompleted time.Duration `yaml:"retainCompleted"`
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queueSize"`
}

type Cache struct {
	StatsWindow int `yaml:"statsWindow"`
}

type Breaker struct {
	MaxHeapBytes     uint64  `yaml:"maxHeapBytes"`     // 0 disables the memory breaker
	MinDiskFreeRatio float64 `yaml:"minDiskFreeRatio"` // 0 disables the disk breaker
}

type Reconcile struct {
	Interval time.Duration `yaml:"interval"`
}

type RateLimiterConfig struct {
	Limit float64 `yaml:"limit"` // Requests per second
	Burst int     `yaml:"burst"`
}

type RateLimiters struct {
	RPC RateLimiterConfig `yaml:"rpc"`
}

type S3Source struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Region    string `yaml:"region,omitempty"`
}

type Sources struct {
	S3 S3Source `yaml:"s3"`
}

type Cluster struct {
	InstanceSecret   string          `yaml:"instanceSecret"`
	DefaultLeader    string          `yaml:"defaultLeader"` // non-leaders auto-join this node on first launch
	DataDir          string          `yaml:"dataDir"`
	Logging          Logging         `yaml:"logging"`
	Nodes            map[string]Node `yaml:"nodes"`
	TLS              TLS             `yaml:"tls"`
	ClientSkipVerify bool            `yaml:"clientSkipVerify"`
	Upload           Upload          `yaml:"upload"`
	Deploy           Deploy          `yaml:"deploy"`
	Tasks            Tasks           `yaml:"tasks"`
	Cache            Cache           `yaml:"cache"`
	Breaker          Breaker         `yaml:"breaker"`
	Reconcile        Reconcile       `yaml:"reconcile"`
	RateLimiters     RateLimiters    `yaml:"rateLimiters"`
	Sources          Sources         `yaml:"sources"`
}

// MLNodes returns the ids of every node carrying the ml role.
func (c *Cluster) MLNodes() []string {
	ids := make([]string, 0, len(c.Nodes))
	for id, n := range c.Nodes {
		if n.IsML() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

var (
	ErrConfigFileUnreadable       = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable   = errors.New("config file is unmarshallable")
	ErrInstanceSecretMissing      = errors.New("instanceSecret is missing in config")
	ErrDefaultLeaderMissing       = errors.New("defaultLeader is not set in config")
	ErrDefaultLeaderUnknown       = errors.New("defaultLeader does not name a configured node")
	ErrNodesMissing               = errors.New("no nodes defined in config")
	ErrNodeBindingsMissing        = errors.New("raftBinding and httpBinding are required for each node")
	ErrDataDirMissing             = errors.New("dataDir is missing in config and is required for lock files and node data")
	ErrTLSMissing                 = errors.New("TLS configuration incomplete: both cert and key must be provided if one is specified")
	ErrChunkSizeInvalid           = errors.New("upload.maxChunkSize must be between 1 byte and 10MB and not below upload.defaultChunkSize")
	ErrPermitsInvalid             = errors.New("upload.chunkPermits and deploy.fetchPermits must be positive")
	ErrTaskLimitsInvalid          = errors.New("tasks.maxUploadTasks and tasks.maxDeployTasks must be positive")
	ErrBreakerDiskRatioOutOfRange = errors.New("breaker.minDiskFreeRatio must be within [0, 1)")
	ErrUnknownLoggingLevel        = errors.New("logging.level must be one of debug, info, warn, error")
)

// ApplyDefaults fills optional sections left empty in the file.
func (c *Cluster) ApplyDefaults() {
	if c.Upload.DefaultChunkSize == 0 {
		c.Upload.DefaultChunkSize = MaxChunkSizeLimit
	}
	if c.Upload.MaxChunkSize == 0 {
		c.Upload.MaxChunkSize = MaxChunkSizeLimit
	}
	if c.Upload.ChunkPermits == 0 {
		c.Upload.ChunkPermits = 2
	}
	if c.Upload.PermitTimeout == 0 {
		c.Upload.PermitTimeout = 30 * time.Second
	}
	if c.Upload.FetchTimeout == 0 {
		c.Upload.FetchTimeout = 10 * time.Minute
	}
	if c.Deploy.FetchPermits == 0 {
		c.Deploy.FetchPermits = 4
	}
	if c.Deploy.PermitTimeout == 0 {
		c.Deploy.PermitTimeout = 30 * time.Second
	}
	if c.Deploy.SyncTimeout == 0 {
		c.Deploy.SyncTimeout = 10 * time.Second
	}
	if c.Deploy.RPCTimeout == 0 {
		c.Deploy.RPCTimeout = 30 * time.Second
	}
	if c.Tasks.MaxUploadTasks == 0 {
		c.Tasks.MaxUploadTasks = 10
	}
	if c.Tasks.MaxDeployTasks == 0 {
		c.Tasks.MaxDeployTasks = 10
	}
	if c.Tasks.UpdateTimeout == 0 {
		c.Tasks.UpdateTimeout = 5 * time.Second
	}
	if c.Tasks.RetainCompleted == 0 {
		c.Tasks.RetainCompleted = 10 * time.Minute
	}
	if c.Tasks.Workers == 0 {
		c.Tasks.Workers = 4
	}
	if c.Tasks.QueueSize == 0 {
		c.Tasks.QueueSize = 64
	}
	if c.Cache.StatsWindow == 0 {
		c.Cache.StatsWindow = 100
	}
	if c.Reconcile.Interval == 0 {
		c.Reconcile.Interval = 10 * time.Second
	}
	if c.RateLimiters.RPC.Limit == 0 {
		c.RateLimiters.RPC = RateLimiterConfig{Limit: 200, Burst: 400}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks a loaded or generated cluster definition.
func (c *Cluster) Validate() error {
	if c.InstanceSecret == "" {
		return ErrInstanceSecretMissing
	}
	if len(c.Nodes) == 0 {
		return ErrNodesMissing
	}
	if c.DefaultLeader == "" {
		return ErrDefaultLeaderMissing
	}
	if _, ok := c.Nodes[c.DefaultLeader]; !ok {
		return ErrDefaultLeaderUnknown
	}
	for id, node := range c.Nodes {
		if node.RaftBinding == "" || node.HttpBinding == "" {
			return fmt.Errorf("node %s: %w", id, ErrNodeBindingsMissing)
		}
	}
	if c.DataDir == "" {
		return ErrDataDirMissing
	}
	if (c.TLS.Cert != "") != (c.TLS.Key != "") {
		return ErrTLSMissing
	}
	if c.Upload.MaxChunkSize <= 0 || c.Upload.MaxChunkSize > MaxChunkSizeLimit ||
		c.Upload.DefaultChunkSize <= 0 || c.Upload.DefaultChunkSize > c.Upload.MaxChunkSize {
		return ErrChunkSizeInvalid
	}
	if c.Upload.ChunkPermits < 0 || c.Deploy.FetchPermits < 0 {
		return ErrPermitsInvalid
	}
	if c.Tasks.MaxUploadTasks < 0 || c.Tasks.MaxDeployTasks < 0 {
		return ErrTaskLimitsInvalid
	}
	if c.Breaker.MinDiskFreeRatio < 0 || c.Breaker.MinDiskFreeRatio >= 1 {
		return ErrBreakerDiskRatioOutOfRange
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrUnknownLoggingLevel
	}
	return nil
}

func LoadConfig(configFile string) (*Cluster, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}

	var cfg Cluster
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func GenerateConfig() *Cluster {
	cfg := Cluster{
		InstanceSecret: "please_change_this_secret_in_production_!!!",
		DefaultLeader:  "node0",
		DataDir:        "data/insiml",
		Logging:        Logging{Level: "info"},
		Nodes:          make(map[string]Node),
		Upload: Upload{
			DefaultChunkSize: MaxChunkSizeLimit,
			MaxChunkSize:     MaxChunkSizeLimit,
			ChunkPermits:     2,
			PermitTimeout:    30 * time.Second,
			FetchTimeout:     10 * time.Minute,
		},
		Deploy: Deploy{
			FetchPermits:  4,
			PermitTimeout: 30 * time.Second,
			SyncTimeout:   10 * time.Second,
			RPCTimeout:    30 * time.Second,
		},
		Tasks: Tasks{
			MaxUploadTasks:  10,
			MaxDeployTasks:  10,
			UpdateTimeout:   5 * time.Second,
			RetainCompleted: 10 * time.Minute,
			Workers:         4,
			QueueSize:       64,
		},
		Cache:     Cache{StatsWindow: 100},
		Breaker:   Breaker{MaxHeapBytes: 4 << 30, MinDiskFreeRatio: 0.05},
		Reconcile: Reconcile{Interval: 10 * time.Second},
		RateLimiters: RateLimiters{
			RPC: RateLimiterConfig{Limit: 200, Burst: 400},
		},
	}

	cfg.Nodes["node0"] = Node{
		RaftBinding:  "127.0.0.1:7000",
		HttpBinding:  "127.0.0.1:7001",
		ClientDomain: "localhost",
		Roles:        []string{RoleData, RoleML},
	}
	cfg.Nodes["node1"] = Node{
		RaftBinding:  "127.0.0.1:7002",
		HttpBinding:  "127.0.0.1:7003",
		ClientDomain: "localhost",
		Roles:        []string{RoleML},
	}
	cfg.Nodes["node2"] = Node{
		RaftBinding:  "127.0.0.1:7004",
		HttpBinding:  "127.0.0.1:7005",
		ClientDomain: "localhost",
		Roles:        []string{RoleML},
	}
	return &cfg
}
