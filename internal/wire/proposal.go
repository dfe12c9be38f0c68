package wire

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/txtrie"
)

// rlpHeader is chain.BlockHeader's RLP projection. TimestampMs travels as
// a uint64 — RLP has no signed-integer encoding, and a block timestamp is
// never negative in practice.
type rlpHeader struct {
	Height      uint64
	PrevHash    common.H256
	TimestampMs uint64
	TxRoot      common.H256
	StateRoot   common.H256
}

// rlpBlockProposal is the canonical binary envelope a PoW miner
// broadcasts over pub/sub: block_without_tx_list, txs, and the two proof
// shapes that let a recipient rebuild the post-block state root. The
// nested partial-trie diff/write-set evidence already carries its own
// JSON tagged-union codec (internal/txtrie via internal/partial); rather
// than duplicate that recursive sum-type encoding in RLP, this envelope
// carries it as an opaque JSON blob inside an otherwise-RLP frame — RLP
// encodes the flat, high-volume fields (header, txs) natively, JSON
// handles the one recursive piece that already has a working codec.
type rlpBlockProposal struct {
	Header       rlpHeader
	Difficulty   uint64
	Nonce        uint64
	Txs          []rlpTx
	DiffJSON     []byte
	WriteSetJSON []byte
}

// EncodeBlockProposal serializes p for PoW pub/sub gossip. p.Block.Consensus
// must be chain.PoWData — Raft-committed proposals travel over the
// replicated log instead, via internal/consensus/raft's own JSON codec.
func EncodeBlockProposal(p *chain.BlockProposal) ([]byte, error) {
	pow, ok := p.Block.Consensus.(chain.PoWData)
	if !ok {
		return nil, fmt.Errorf("wire: encoding block proposal: consensus data is %T, want chain.PoWData", p.Block.Consensus)
	}

	out := rlpBlockProposal{
		Header: rlpHeader{
			Height:      uint64(p.Block.Header.Height),
			PrevHash:    p.Block.Header.PrevHash,
			TimestampMs: uint64(p.Block.Header.TimestampMs),
			TxRoot:      p.Block.Header.TxRoot,
			StateRoot:   p.Block.Header.StateRoot,
		},
		Difficulty: pow.Difficulty,
		Nonce:      pow.Nonce,
	}
	for _, tx := range p.Txs {
		out.Txs = append(out.Txs, *toRLPTx(tx))
	}
	if p.Trie.Diff != nil {
		data, err := json.Marshal(p.Trie.Diff)
		if err != nil {
			return nil, fmt.Errorf("wire: encoding block proposal diff: %w", err)
		}
		out.DiffJSON = data
	}
	if p.Trie.WriteSet != nil {
		data, err := json.Marshal(p.Trie.WriteSet)
		if err != nil {
			return nil, fmt.Errorf("wire: encoding block proposal write set: %w", err)
		}
		out.WriteSetJSON = data
	}

	data, err := rlp.EncodeToBytes(&out)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding block proposal: %w", err)
	}
	return data, nil
}

// DecodeBlockProposal is EncodeBlockProposal's inverse.
func DecodeBlockProposal(data []byte) (*chain.BlockProposal, error) {
	var w rlpBlockProposal
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("wire: decoding block proposal: %w", err)
	}

	txs := make([]*chain.Tx, 0, len(w.Txs))
	for i := range w.Txs {
		txs = append(txs, fromRLPTx(&w.Txs[i]))
	}

	header := chain.BlockHeader{
		Height:      common.BlockHeight(w.Header.Height),
		PrevHash:    w.Header.PrevHash,
		TimestampMs: int64(w.Header.TimestampMs),
		TxRoot:      w.Header.TxRoot,
		StateRoot:   w.Header.StateRoot,
	}
	block := chain.Block{
		Header:    header,
		Consensus: chain.PoWData{Difficulty: w.Difficulty, Nonce: w.Nonce},
		Txs:       chain.BlockTxList{Full: txs},
	}

	proposal := &chain.BlockProposal{Block: block, Txs: txs}
	if len(w.DiffJSON) > 0 {
		var diff txtrie.TxTrieDiff
		if err := json.Unmarshal(w.DiffJSON, &diff); err != nil {
			return nil, fmt.Errorf("wire: decoding block proposal diff: %w", err)
		}
		proposal.Trie.Diff = &diff
	}
	if len(w.WriteSetJSON) > 0 {
		var ws txtrie.TxWriteSetTrie
		if err := json.Unmarshal(w.WriteSetJSON, &ws); err != nil {
			return nil, fmt.Errorf("wire: decoding block proposal write set: %w", err)
		}
		proposal.Trie.WriteSet = &ws
	}
	return proposal, nil
}
