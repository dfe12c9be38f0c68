// Package chain holds the block/transaction data model shared by the
// propose/verify/commit pipeline (C8), the worker orchestration (C9) and
// the consensus adapters (C10): BlockHeader, Block, Tx, TxProposal and
// BlockProposal. Where the original design used trait objects over an
// abstract Block/Tx pair, this package uses a small ConsensusData
// interface plus concrete PoW/Raft structs instead of generics — the one
// axis of real polymorphism here is "what the consensus layer stapled to
// the header", not the block shape itself.
package chain

import (
	"crypto/ed25519"

	"slimchain/internal/accessmap"
	"slimchain/internal/common"
	"slimchain/internal/txtrie"
)

// BlockHeader is the consensus-agnostic commitment every Block carries.
type BlockHeader struct {
	Height      common.BlockHeight
	PrevHash    common.H256
	TimestampMs int64
	TxRoot      common.H256
	StateRoot   common.H256
}

// Hash is the header's content address — what prev_hash references and
// what feeds PoW's nonce search.
func (h BlockHeader) Hash() common.H256 {
	var ts [8]byte
	putInt64(ts[:], h.TimestampMs)
	return common.Blake2bSum(
		h.Height.Bytes(),
		h.PrevHash.Bytes(),
		ts[:],
		h.TxRoot.Bytes(),
		h.StateRoot.Bytes(),
	)
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
}

// ConsensusData is the per-consensus payload stapled onto a Block.
type ConsensusData interface{ isConsensusData() }

// PoWData carries the proof-of-work fields.
type PoWData struct {
	Difficulty uint64
	Nonce      uint64
}

func (PoWData) isConsensusData() {}

// RaftData is empty: a Raft-committed block carries no extra consensus
// fields, since the replicated log itself is the source of agreement.
type RaftData struct{}

func (RaftData) isConsensusData() {}

// BlockTxList is either bare tx digests (what a client retains) or full
// transactions (what a miner or storage node retains) — never both.
type BlockTxList struct {
	Digests []common.H256
	Full    []*Tx
}

// Digest returns the tx-root this list commits to: blake2b over the
// ordered digests, taking each full tx's own digest if Full is set.
func (l BlockTxList) Digest() common.H256 {
	if len(l.Full) > 0 {
		parts := make([][]byte, 0, len(l.Full))
		for _, tx := range l.Full {
			d := tx.Digest()
			parts = append(parts, d.Bytes())
		}
		return common.Blake2bSum(parts...)
	}
	parts := make([][]byte, 0, len(l.Digests))
	for _, d := range l.Digests {
		parts = append(parts, d.Bytes())
	}
	return common.Blake2bSum(parts...)
}

// Block wraps a header with its consensus payload and tx list.
type Block struct {
	Header    BlockHeader
	Consensus ConsensusData
	Txs       BlockTxList
}

// Digest is this block's content address, used as the next block's
// PrevHash.
func (b Block) Digest() common.H256 { return b.Header.Hash() }

// TxReadData is the per-address read evidence a transaction carries,
// mirroring accessmap.ReadSet but additionally recording the actual
// nonce value read (needed to check caller_nonce, not just that nonce
// was read).
type TxReadData struct {
	Nonce *common.Nonce
	Code  *common.H256
	Keys  map[common.StateKey]bool
}

// ToAccessSet projects this read evidence down to the shape AccessMap's
// conflict predicate consumes.
func (r TxReadData) ToAccessSet() accessmap.ReadSet {
	return accessmap.ReadSet{Nonce: r.Nonce != nil, Code: r.Code != nil, Keys: r.Keys}
}

// TxWriteData is the per-address write evidence: the new nonce/code (if
// touched), whether storage was reset wholesale, and the touched values.
type TxWriteData struct {
	Nonce       *common.Nonce
	Code        *common.H256
	ResetValues bool
	Values      map[common.StateKey]common.StateValue
}

// ToAccessSet projects this write evidence down to the shape AccessMap's
// conflict predicate consumes.
func (w TxWriteData) ToAccessSet() accessmap.WriteSet {
	keys := make(map[common.StateKey]bool, len(w.Values))
	for k := range w.Values {
		keys[k] = true
	}
	return accessmap.WriteSet{Nonce: w.Nonce != nil, Code: w.Code != nil, ResetValues: w.ResetValues, Keys: keys}
}

// Tx is a signed transaction pinned to the snapshot it was executed
// against.
type Tx struct {
	Caller        common.Address
	Input         []byte
	TxBlockHeight common.BlockHeight
	TxStateRoot   common.H256
	Reads         map[common.Address]TxReadData
	Writes        map[common.Address]TxWriteData
	Signature     []byte
	PubKey        ed25519.PublicKey
}

// Digest is the transaction's content address, used in the tx root and
// as its dedup key.
func (tx *Tx) Digest() common.H256 {
	return common.Blake2bSum(
		tx.Caller.Bytes(),
		tx.Input,
		tx.TxBlockHeight.Bytes(),
		tx.TxStateRoot.Bytes(),
		tx.Signature,
	)
}

// SignaturePayload is what Signature is computed over: every field
// except the signature itself.
func (tx *Tx) SignaturePayload() []byte {
	out := append([]byte{}, tx.Caller.Bytes()...)
	out = append(out, tx.Input...)
	out = append(out, tx.TxBlockHeight.Bytes()...)
	out = append(out, tx.TxStateRoot.Bytes()...)
	return out
}

// VerifySig checks tx.Signature against tx.PubKey over SignaturePayload.
func (tx *Tx) VerifySig() bool {
	if len(tx.PubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(tx.PubKey, tx.SignaturePayload(), tx.Signature)
}

// TxProposal is what a storage node hands to a miner: a signed tx plus
// the write-set evidence proving its reads/writes are consistent with
// tx.TxStateRoot.
type TxProposal struct {
	Tx        *Tx
	WriteTrie *txtrie.TxWriteSetTrie
}

// BlockProposalTrie carries the two proof shapes a BlockProposal needs for
// a recipient to independently recompute the post-block state root: Diff,
// the trie branches to reveal before applying writes, and WriteSet, the
// merged per-address pre-write evidence (a partial.Leaf only ever stores a
// value hash, never raw account fields, so Nonce/CodeHash must travel
// alongside the diff rather than be re-derived from it).
type BlockProposalTrie struct {
	WriteSet *txtrie.TxWriteSetTrie
	Diff     *txtrie.TxTrieDiff
}

// BlockProposal is the unit miners broadcast and Raft replicates.
type BlockProposal struct {
	Block Block
	Txs   []*Tx
	Trie  BlockProposalTrie
}
