package snapshot

import (
	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/partial"
)

// Persisted is Snapshot flattened to a form plain encoding/json (and so
// C11's LevelDB META column, and a Raft FSMSnapshot) can carry: BlockList
// becomes an ordinary slice, everything else is already JSON-able field
// by field.
type Persisted struct {
	StateLen int            `json:"state_len"`
	Blocks   []chain.Block  `json:"blocks"`
	Access   *accessmap.AccessMap `json:"access"`
	Root     common.H256    `json:"root"`
	TxTrie   partial.Child  `json:"tx_trie"`
}

// ToPersisted flattens s for durable storage or Raft snapshotting.
func (s *Snapshot) ToPersisted() *Persisted {
	blocks := make([]chain.Block, s.Blocks.Len())
	for i := range blocks {
		blocks[i] = s.Blocks.At(i)
	}
	return &Persisted{
		StateLen: s.StateLen,
		Blocks:   blocks,
		Access:   s.Access,
		Root:     s.Root,
		TxTrie:   s.TxTrie,
	}
}

// ToSnapshot rebuilds a live Snapshot from a previously flattened one.
func (p *Persisted) ToSnapshot() *Snapshot {
	bl := NewBlockList()
	for _, b := range p.Blocks {
		bl = bl.Append(b)
	}
	return &Snapshot{
		StateLen: p.StateLen,
		Blocks:   bl,
		Access:   p.Access,
		Root:     p.Root,
		TxTrie:   p.TxTrie,
	}
}
