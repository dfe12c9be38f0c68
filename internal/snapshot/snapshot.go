// Package snapshot implements C6: the {recent_blocks, access_map,
// tx_trie} bundle every role (client, miner, storage node) advances one
// block at a time and clones cheaply when it needs a pre-commit backup
// to roll back to.
package snapshot

import (
	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/partial"
)

// Snapshot is the node-local view of chain state the pipeline advances.
// Root is the account-trie root the latest committed block claims;
// TxTrie is the accumulated partial-trie evidence a client or miner has
// gathered so far (always the zero Child for a storage node, which reads
// straight from its full state instead).
type Snapshot struct {
	StateLen int
	Blocks   BlockList
	Access   *accessmap.AccessMap
	Root     common.H256
	TxTrie   partial.Child
}

// Genesis builds the empty-chain snapshot: one synthetic block at height
// 0 with the zero state root, and an access map with its window already
// opened at height 0.
func Genesis(stateLen int, timestampMs int64) *Snapshot {
	genesis := chain.Block{
		Header: chain.BlockHeader{
			Height:      0,
			PrevHash:    common.ZeroH256,
			TimestampMs: timestampMs,
			TxRoot:      common.ZeroH256,
			StateRoot:   common.ZeroH256,
		},
	}
	access := accessmap.New(stateLen)
	access.AllocNewBlock(0)
	return &Snapshot{
		StateLen: stateLen,
		Blocks:   NewBlockList().Append(genesis),
		Access:   access,
		Root:     common.ZeroH256,
		TxTrie:   partial.AbsentChild(),
	}
}

// Height is the height of the latest block this snapshot has committed.
func (s *Snapshot) Height() common.BlockHeight { return s.LatestBlock().Header.Height }

// LatestBlock is the most recently committed block.
func (s *Snapshot) LatestBlock() chain.Block { return s.Blocks.At(s.Blocks.Len() - 1) }

// OldestHeight is the height of the oldest block still tracked — the
// floor of the window a tx's TxBlockHeight must clear to avoid
// StaleOrFutureHeight.
func (s *Snapshot) OldestHeight() common.BlockHeight { return s.Blocks.At(0).Header.Height }

// GetBlock looks up a block by height within the current window.
func (s *Snapshot) GetBlock(h common.BlockHeight) (chain.Block, bool) {
	oldest := s.OldestHeight()
	if h < oldest || h > s.Height() {
		return chain.Block{}, false
	}
	return s.Blocks.At(int(h - oldest)), true
}

// InWindow reports whether h is neither stale (older than the tracked
// window) nor from the future (newer than the latest committed block).
func (s *Snapshot) InWindow(h common.BlockHeight) bool {
	return h >= s.OldestHeight() && h <= s.Height()
}

// BeginBlock opens a new per-block entry in the access map at height h,
// called once before a block's transactions are checked for conflicts
// against it. It does not touch Blocks or Root — those only change once
// the block is actually committed.
func (s *Snapshot) BeginBlock(h common.BlockHeight) { s.Access.AllocNewBlock(h) }

// CommitBlock appends blk as the new chain tip and updates Root,
// trimming the oldest tracked block (and its access-map entry) once the
// window exceeds StateLen. The returned PruningData names every
// (address, attribute) pair that fell out of the window entirely, which
// a storage node's commit step uses to drive KV pruning.
func (s *Snapshot) CommitBlock(blk chain.Block) *accessmap.PruningData {
	s.Blocks = s.Blocks.Append(blk)
	s.Root = blk.Header.StateRoot
	if s.Blocks.Len() > s.StateLen {
		pd := s.Access.RemoveOldestBlock()
		s.Blocks = s.Blocks.RemoveOldest()
		return pd
	}
	return &accessmap.PruningData{}
}

// Clone takes an O(state_len) backup: BlockList clones in O(1), but the
// access map's reverse index is a plain map of mutable slices so it must
// be deep-copied to be safe to mutate independently afterward.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		StateLen: s.StateLen,
		Blocks:   s.Blocks.Clone(),
		Access:   s.Access.Clone(),
		Root:     s.Root,
		TxTrie:   s.TxTrie,
	}
}
