package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a node's cluster and runtime configuration, loaded from YAML
// (the same format ChuLiYu-raft-recovery and superchee0526-kvrocks-controller
// ship their node configs in).
type Config struct {
	NodeID  uint64            `yaml:"node_id"`
	Bind    string            `yaml:"bind"`
	HTTP    string            `yaml:"http"`
	DataDir string            `yaml:"data_dir"`
	Peers   map[uint64]string `yaml:"peers"`

	ElectionTimeoutMS       int64 `yaml:"election_timeout_ms"`
	RequestTimeoutMS        int64 `yaml:"request_timeout_ms"`
	LeaseMaintenanceGraceMS int64 `yaml:"lease_maintenance_grace_ms"`
	TickIntervalMS          int64 `yaml:"tick_interval_ms"`

	// SnapshotThreshold is how many committed entries must accumulate
	// above the log's compacted prefix before the tick loop takes a new
	// snapshot. Unset or zero selects the default of 1024, so automatic
	// snapshotting cannot be turned off from the config file.
	SnapshotThreshold uint64 `yaml:"snapshot_threshold"`
	// TrailingLogs is how many of the log's newest entries to leave
	// unsnapshotted, counted back from the last log index, so a
	// slightly-behind follower can still catch up via AppendEntries
	// instead of a full snapshot transfer.
	TrailingLogs uint64 `yaml:"trailing_logs"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ElectionTimeoutMS == 0 {
		c.ElectionTimeoutMS = 1000
	}
	if c.RequestTimeoutMS == 0 {
		c.RequestTimeoutMS = 200
	}
	if c.TickIntervalMS == 0 {
		c.TickIntervalMS = 50
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.HTTP == "" {
		c.HTTP = ":8080"
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = 1024
	}
	if c.TrailingLogs == 0 {
		c.TrailingLogs = 256
	}
}
