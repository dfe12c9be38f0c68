// Package config adapts the teacher's viper-based YAML+env loader
// (pkg/config/config.go) to the options spec.md §6 recognizes: role,
// chain/consensus shape, miner tuning, PoW/Raft parameters, and network
// addressing.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Role is the single sum type a node's startup dispatches on — client,
// miner, or storage{shard} — supplementing the distilled spec with
// slimchain-chain/src/role.rs's explicit role enum (§4.15).
type Role string

const (
	RoleClient  Role = "client"
	RoleMiner   Role = "miner"
	RoleStorage Role = "storage"
)

// Consensus selects the block-agreement mechanism.
type Consensus string

const (
	ConsensusPoW  Consensus = "pow"
	ConsensusRaft Consensus = "raft"
)

// ConflictCheck selects how propose_block screens a candidate tx against
// the in-flight block's AccessMap.
type ConflictCheck string

const (
	ConflictOptimistic ConflictCheck = "optimistic"
	ConflictSSI        ConflictCheck = "ssi"
)

// Config is the unified configuration for a SlimChain node. Its shape
// mirrors the YAML a deployment's --config file carries.
type Config struct {
	Role  Role `mapstructure:"role"`
	Shard struct {
		ID    uint64 `mapstructure:"id"`
		Total uint64 `mapstructure:"total"`
	} `mapstructure:"shard"`

	Chain struct {
		Consensus     Consensus     `mapstructure:"consensus"`
		StateLen      uint32        `mapstructure:"state_len"`
		ConflictCheck ConflictCheck `mapstructure:"conflict_check"`
	} `mapstructure:"chain"`

	Miner struct {
		MaxTxs             int `mapstructure:"max_txs"`
		MinTxs             int `mapstructure:"min_txs"`
		MaxBlockIntervalMs int `mapstructure:"max_block_interval_ms"`
	} `mapstructure:"miner"`

	PoW struct {
		InitDiff uint64 `mapstructure:"init_diff"`
	} `mapstructure:"pow"`

	Raft struct {
		ElectionTimeoutMinMs    int    `mapstructure:"election_timeout_min"`
		ElectionTimeoutMaxMs    int    `mapstructure:"election_timeout_max"`
		HeartbeatIntervalMs     int    `mapstructure:"heartbeat_interval"`
		MaxPayloadEntries       int    `mapstructure:"max_payload_entries"`
		ReplicationLagThreshold uint64 `mapstructure:"replication_lag_threshold"`
		SnapshotLogsSinceLast   uint64 `mapstructure:"snapshot_policy_logs_since_last"`
		SnapshotMaxChunkSize    int    `mapstructure:"snapshot_max_chunk_size"`
		AsyncBroadcastStorage   bool   `mapstructure:"async_broadcast_storage"`
	} `mapstructure:"raft"`

	Network struct {
		Listen     string   `mapstructure:"listen"`
		HTTPListen string   `mapstructure:"http_listen"`
		Keypair    string   `mapstructure:"keypair"`
		Peers      []string `mapstructure:"peers"`
		MDNS       bool     `mapstructure:"mdns"`
		PeerID     string   `mapstructure:"peer_id"`
	} `mapstructure:"network"`
}

// AppConfig holds the configuration loaded via Load, mirroring the
// teacher's package-level AppConfig convention.
var AppConfig Config

// Load reads the YAML file at path, overlays any SLIMCHAIN_-prefixed
// environment variables, and unmarshals the result into AppConfig.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	viper.SetEnvPrefix("slimchain")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &AppConfig, nil
}
