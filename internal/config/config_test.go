package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfigFile(t, `
role: miner
shard:
  id: 2
  total: 4
chain:
  consensus: raft
  state_len: 16
  conflict_check: ssi
miner:
  max_txs: 200
  min_txs: 1
  max_block_interval_ms: 500
raft:
  election_timeout_min: 150
  heartbeat_interval: 50
network:
  listen: "127.0.0.1:9000"
  http_listen: "127.0.0.1:9001"
  peers:
    - "127.0.0.1:9100"
    - "127.0.0.1:9200"
  mdns: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleMiner {
		t.Fatalf("expected role miner, got %q", cfg.Role)
	}
	if cfg.Shard.ID != 2 || cfg.Shard.Total != 4 {
		t.Fatalf("unexpected shard: %+v", cfg.Shard)
	}
	if cfg.Chain.Consensus != ConsensusRaft {
		t.Fatalf("expected raft consensus, got %q", cfg.Chain.Consensus)
	}
	if cfg.Chain.ConflictCheck != ConflictSSI {
		t.Fatalf("expected ssi conflict check, got %q", cfg.Chain.ConflictCheck)
	}
	if cfg.Miner.MaxTxs != 200 || cfg.Miner.MinTxs != 1 {
		t.Fatalf("unexpected miner config: %+v", cfg.Miner)
	}
	if cfg.Raft.ElectionTimeoutMinMs != 150 || cfg.Raft.HeartbeatIntervalMs != 50 {
		t.Fatalf("unexpected raft config: %+v", cfg.Raft)
	}
	if len(cfg.Network.Peers) != 2 || !cfg.Network.MDNS {
		t.Fatalf("unexpected network config: %+v", cfg.Network)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
role: client
chain:
  consensus: pow
`)

	t.Setenv("SLIMCHAIN_ROLE", "storage")
	t.Setenv("SLIMCHAIN_CHAIN_CONSENSUS", "raft")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleStorage {
		t.Fatalf("expected env override to set role storage, got %q", cfg.Role)
	}
	if cfg.Chain.Consensus != ConsensusRaft {
		t.Fatalf("expected env override to set consensus raft, got %q", cfg.Chain.Consensus)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error reading a missing config file")
	}
}
