package chain

import (
	"encoding/json"
	"fmt"
)

// blockWire is Block's wire shape: Consensus is a tagged union (PoWData
// or RaftData) rather than the bare interface, since encoding/json can't
// round-trip an interface-typed field without a type hint. This is what
// lets a committed Block travel through the Raft log and a persisted
// Snapshot as plain JSON.
type blockWire struct {
	Header        BlockHeader  `json:"header"`
	ConsensusType string       `json:"consensus_type"`
	PoW           *PoWData     `json:"pow,omitempty"`
	Raft          *RaftData    `json:"raft,omitempty"`
	Txs           BlockTxList  `json:"txs"`
}

// MarshalJSON implements json.Marshaler.
func (b Block) MarshalJSON() ([]byte, error) {
	w := blockWire{Header: b.Header, Txs: b.Txs}
	switch c := b.Consensus.(type) {
	case PoWData:
		w.ConsensusType = "pow"
		w.PoW = &c
	case RaftData:
		w.ConsensusType = "raft"
		w.Raft = &c
	case nil:
		w.ConsensusType = "none"
	default:
		return nil, fmt.Errorf("chain: marshal: unknown consensus data type %T", c)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Header = w.Header
	b.Txs = w.Txs
	switch w.ConsensusType {
	case "pow":
		if w.PoW == nil {
			return fmt.Errorf("chain: unmarshal: missing pow consensus payload")
		}
		b.Consensus = *w.PoW
	case "raft":
		if w.Raft == nil {
			b.Consensus = RaftData{}
		} else {
			b.Consensus = *w.Raft
		}
	case "none", "":
		b.Consensus = nil
	default:
		return fmt.Errorf("chain: unmarshal: unknown consensus type %q", w.ConsensusType)
	}
	return nil
}
