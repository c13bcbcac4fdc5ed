/*
Daemon configuration
*/
package config

import (
	"os"
)

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	// the id of this replica, dense starting at 0
	NodeId uint32 `yaml:"node_id"`

	// the fixed number of replicas in the group
	GroupSize uint32 `yaml:"group_size"`

	// node ids map onto loopback ports starting here
	BasePort int `yaml:"base_port"`

	// leader lease length in milliseconds
	LeaseMs uint64 `yaml:"lease_ms"`

	// how long a tick blocks on the socket, in milliseconds
	RecvTimeoutMs uint64 `yaml:"recv_timeout_ms"`

	// where replica state is persisted
	DataDir string `yaml:"data_dir"`

	// "disk" or "leveldb"
	StorageBackend string `yaml:"storage_backend"`

	// statsd endpoint, empty disables metrics
	StatsdAddr   string `yaml:"statsd_addr"`
	StatsdPrefix string `yaml:"statsd_prefix"`

	// log level name understood by go-logging
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		GroupSize:      3,
		BasePort:       64000,
		LeaseMs:        2000,
		RecvTimeoutMs:  100,
		DataDir:        "data",
		StorageBackend: "leveldb",
		StatsdPrefix:   "paxos",
		LogLevel:       "INFO",
	}
}

// reads and validates a config file, on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %v", path)
	}
	conf := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, conf); err != nil {
		return nil, errors.Wrapf(err, "parsing config %v", path)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if c.GroupSize < 1 {
		return errors.Errorf("invalid group size: %v", c.GroupSize)
	}
	if c.NodeId >= c.GroupSize {
		return errors.Errorf("node id %v out of range for group of %v", c.NodeId, c.GroupSize)
	}
	if c.BasePort <= 0 || c.BasePort+int(c.GroupSize) > 65536 {
		return errors.Errorf("invalid base port: %v", c.BasePort)
	}
	if c.LeaseMs == 0 {
		return errors.Errorf("lease must be positive")
	}
	switch c.StorageBackend {
	case "disk", "leveldb":
	default:
		return errors.Errorf("unknown storage backend: %v", c.StorageBackend)
	}
	return nil
}
