package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Tree    TreeConfig    `yaml:"tree"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`     // HTTP listen address (e.g. :5000)
	TCPAddr string `yaml:"tcp_addr"` // TCP listen address (e.g. :9090)
}

type TreeConfig struct {
	Order             int `yaml:"order"`
	SnapshotCacheSize int `yaml:"snapshot_cache_size"`
}

// StorageConfig selects where accepted inserts are archived. An empty path
// keeps the archive in memory.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // sqlite, leveldb, wal or none
	Path       string `yaml:"path"`
	Shards     int    `yaml:"shards"` // records are placed on shard key % shards
	BatchSize  int    `yaml:"batch_size"`
	BufferSize int    `yaml:"buffer_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

const (
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
	BackendWAL     = "wal"
	BackendNone    = "none"
)

// DefaultShards matches the three storage nodes of the original deployment.
const DefaultShards = 3

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":5000",
			TCPAddr: ":9090",
		},
		Tree: TreeConfig{
			Order:             4,
			SnapshotCacheSize: 64,
		},
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			Shards:     DefaultShards,
			BatchSize:  500,
			BufferSize: 5000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/distritree.yaml", "distritree.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, errors.Wrapf(err, "parse %s", p)
				}
				applyDefaults(cfg)
				return cfg, cfg.Validate()
			}
		}
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", configPath)
	}

	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Tree.Order == 0 {
		cfg.Tree.Order = 4
	}
	if cfg.Tree.SnapshotCacheSize <= 0 {
		cfg.Tree.SnapshotCacheSize = 64
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.Shards == 0 {
		cfg.Storage.Shards = DefaultShards
	}
	if cfg.Storage.BatchSize <= 0 {
		cfg.Storage.BatchSize = 500
	}
	if cfg.Storage.BufferSize <= 0 {
		cfg.Storage.BufferSize = 5000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Tree.Order < 3 {
		return errors.Newf("tree.order must be at least 3, got %d", c.Tree.Order)
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendLevelDB, BackendNone:
	case BackendWAL:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the wal backend")
		}
	default:
		return errors.Newf("storage.backend %q: want sqlite, leveldb, wal or none", c.Storage.Backend)
	}
	if c.Storage.Shards < 1 {
		return errors.Newf("storage.shards must be at least 1, got %d", c.Storage.Shards)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("log.format %q: want console or json", c.Log.Format)
	}
	return nil
}
