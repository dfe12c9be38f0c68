package storage

import (
	"fmt"
	"sync/atomic"

	"slimchain/internal/snapshot"
)

const (
	metaKeyHead    = "head"
	metaKeyTxCount = "tx_count"
)

// PutSnapshot stages snap's flattened form under the meta column's
// "head" key — the single record a node restart needs to rebuild its
// whole in-memory Snapshot.
func (b *Batch) PutSnapshot(snap *snapshot.Snapshot) error {
	if err := b.PutMeta(metaKeyHead, snap.ToPersisted()); err != nil {
		return fmt.Errorf("storage: staging head snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads back the most recently persisted snapshot, if any.
func (s *Store) LoadSnapshot() (*snapshot.Snapshot, bool, error) {
	var persisted snapshot.Persisted
	ok, err := s.getJSON(metaKey(metaKeyHead), &persisted)
	if err != nil || !ok {
		return nil, ok, err
	}
	return persisted.ToSnapshot(), true, nil
}

// TxCounter tracks the running count of committed transactions across
// every block a node has ever imported — supplements spec.md's
// distillation with the tx-count meta counter slimchain-chain/src/db.rs
// and baseline/src/db.rs keep for their GET /client_rpc/tx_count
// handler. It is read lock-free (atomic.Uint64) since an HTTP handler
// must never block behind a commit in progress.
type TxCounter struct {
	n atomic.Uint64
}

// LoadTxCounter rehydrates a TxCounter from durable storage (0 if the
// node has never committed a transaction).
func (s *Store) LoadTxCounter() (*TxCounter, error) {
	var n uint64
	ok, err := s.getJSON(metaKey(metaKeyTxCount), &n)
	if err != nil {
		return nil, err
	}
	c := &TxCounter{}
	if ok {
		c.n.Store(n)
	}
	return c, nil
}

// Add advances the counter by delta and returns the new total; callers
// stage the result into the same Batch as the block/state writes it
// accompanies via StageTxCount, so the counter never drifts out of sync
// with the blocks it counts.
func (c *TxCounter) Add(delta uint64) uint64 { return c.n.Add(delta) }

// Load reads the counter without blocking on any in-flight commit.
func (c *TxCounter) Load() uint64 { return c.n.Load() }

// StageTxCount stages c's current value into b under the meta column.
func (b *Batch) StageTxCount(c *TxCounter) error {
	if err := b.PutMeta(metaKeyTxCount, c.Load()); err != nil {
		return fmt.Errorf("storage: staging tx count: %w", err)
	}
	return nil
}
