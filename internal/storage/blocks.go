package storage

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/util"

	"slimchain/internal/chain"
	"slimchain/internal/common"
)

// PutBlockValue JSON-encodes blk and stages it under the block column,
// keyed by height, via PutBlock.
func (b *Batch) PutBlockValue(blk chain.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("storage: encoding block at height %d: %w", blk.Header.Height, err)
	}
	b.PutBlock(blk.Header.Height, data)
	return nil
}

// GetBlock reads back the block committed at height h.
func (s *Store) GetBlock(h common.BlockHeight) (chain.Block, bool, error) {
	var blk chain.Block
	ok, err := s.getJSON(blockKey(h), &blk)
	return blk, ok, err
}

// tableSize sums key+value bytes across every entry in one column,
// mirroring db.rs's get_table_size diagnostic.
func (s *Store) tableSize(col byte) int {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{col}), nil)
	defer iter.Release()
	total := 0
	for iter.Next() {
		total += len(iter.Key()) + len(iter.Value())
	}
	return total
}

// BlockTableSize reports the on-disk size of the block column, exposed
// to the admin RPC surface's diagnostics endpoint.
func (s *Store) BlockTableSize() int { return s.tableSize(colBlock) }

// StateTableSize reports the on-disk size of the state-trie column.
func (s *Store) StateTableSize() int { return s.tableSize(colState) }

// HighestBlock scans backward from the most recently written block key,
// used during startup recovery if the meta "head" snapshot is missing or
// stale (e.g. the process crashed between a block write and the
// snapshot write that should have followed it).
func (s *Store) HighestBlock() (chain.Block, bool, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{colBlock}), nil)
	defer iter.Release()
	if !iter.Last() {
		return chain.Block{}, false, nil
	}
	var blk chain.Block
	if err := json.Unmarshal(iter.Value(), &blk); err != nil {
		return chain.Block{}, false, fmt.Errorf("storage: decoding highest block: %w", err)
	}
	return blk, true, nil
}

// PutTxValue stages tx under the tx column, keyed by its content digest.
func (b *Batch) PutTxValue(tx *chain.Tx) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("storage: encoding tx: %w", err)
	}
	b.PutTx(tx.Digest(), data)
	return nil
}

// GetTx reads back a previously-committed transaction by its digest.
func (s *Store) GetTx(digest common.H256) (*chain.Tx, bool, error) {
	var tx chain.Tx
	ok, err := s.getJSON(txKey(digest), &tx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &tx, true, nil
}
