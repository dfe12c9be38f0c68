package storage

import (
	"fmt"
	"path/filepath"

	raftboltdb "github.com/hashicorp/raft-boltdb"

	"slimchain/internal/chainerr"
)

// RaftStores bundles the two durable stores hashicorp/raft needs from a
// node that isn't purely in-memory: the replicated log itself, and the
// small amount of hard state (current term, last vote) a node must never
// forget across a restart.
type RaftStores struct {
	Log    *raftboltdb.BoltStore
	Stable *raftboltdb.BoltStore
}

// OpenRaftStores opens (or creates) a bolt-backed log store and stable
// store under dataDir, for a raft.NewRaft node bootstrap to pass
// alongside a raft.FileSnapshotStore. Kept separate from Store's own
// goleveldb handle: raft's own library already assumes exclusive
// ownership of its log/stable files, so there's no benefit to folding
// them into the block/state/tx columns above.
func OpenRaftStores(dataDir string) (*RaftStores, error) {
	logPath := filepath.Join(dataDir, "raft-log.bolt")
	logStore, err := raftboltdb.NewBoltStore(logPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening raft log store at %s: %v", chainerr.PersistenceError, logPath, err)
	}

	stablePath := filepath.Join(dataDir, "raft-stable.bolt")
	stableStore, err := raftboltdb.NewBoltStore(stablePath)
	if err != nil {
		_ = logStore.Close()
		return nil, fmt.Errorf("%w: opening raft stable store at %s: %v", chainerr.PersistenceError, stablePath, err)
	}

	return &RaftStores{Log: logStore, Stable: stableStore}, nil
}

// Close releases both underlying bolt handles.
func (r *RaftStores) Close() error {
	logErr := r.Log.Close()
	stableErr := r.Stable.Close()
	if logErr != nil {
		return fmt.Errorf("%w: closing raft log store: %v", chainerr.PersistenceError, logErr)
	}
	if stableErr != nil {
		return fmt.Errorf("%w: closing raft stable store: %v", chainerr.PersistenceError, stableErr)
	}
	return nil
}
