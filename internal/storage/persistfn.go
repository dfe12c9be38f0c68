package storage

import (
	"slimchain/internal/snapshot"
	"slimchain/internal/worker"
)

// NewPersistFn returns the worker.PersistFn a BlockImportWorker's backing
// node wires in: durably records snap's
// new head under the meta column before the worker moves on to the next
// block. Writes synchronously — spec.md §7 treats a persistence failure
// as fatal for the worker that hit it, so the worker needs to know about
// a failed fsync before it advances any further, not find out later.
func (s *Store) NewPersistFn() worker.PersistFn {
	return func(snap *snapshot.Snapshot) error {
		b := NewBatch()
		if err := b.PutSnapshot(snap); err != nil {
			return err
		}
		if err := b.PutBlockValue(snap.LatestBlock()); err != nil {
			return err
		}
		return s.WriteSync(b)
	}
}
