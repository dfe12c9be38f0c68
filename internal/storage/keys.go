// Package storage implements C11: the LevelDB-backed persistence layer
// every long-lived node keeps behind its in-memory Snapshot. Grounded on
// slimchain-chain's db.rs, which keeps five columns (meta, block, tx,
// state, log) over a single kvdb handle — this package keeps the same
// five columns as byte-prefixed key ranges over one *leveldb.DB, since
// goleveldb has no native column-family concept.
package storage

import (
	"encoding/binary"

	"slimchain/internal/common"
)

// Column prefixes. A single leading byte is enough: goleveldb orders
// keys lexicographically, so every column occupies its own contiguous
// range and a prefix-bounded iterator (util.BytesPrefix) never crosses
// into another column.
const (
	colMeta byte = iota
	colBlock
	colTx
	colState
	colLog
)

// metaKey namespaces a string meta key (e.g. "head", "tx_count") under
// colMeta.
func metaKey(key string) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, colMeta)
	return append(out, key...)
}

// blockKey addresses a block by height: big-endian so lexicographic and
// numeric order agree, letting a range scan walk blocks in height order.
func blockKey(h common.BlockHeight) []byte {
	out := make([]byte, 9)
	out[0] = colBlock
	binary.BigEndian.PutUint64(out[1:], uint64(h))
	return out
}

// txKey addresses a transaction by its content digest.
func txKey(digest common.H256) []byte {
	out := make([]byte, 0, 33)
	out = append(out, colTx)
	return append(out, digest[:]...)
}

// stateKey addresses a trie node by its content hash — shared between
// the account trie and every account's state trie, since a node's hash
// alone is enough to identify it regardless of which trie it belongs to
// (mirrors db.rs's h256_to_db_key(node_address) used identically by
// both account_trie_node and state_trie_node).
func stateKey(h common.H256) []byte {
	out := make([]byte, 0, 33)
	out = append(out, colState)
	return append(out, h[:]...)
}

// logKey addresses an append-only audit-log entry by index.
func logKey(idx uint64) []byte {
	out := make([]byte, 9)
	out[0] = colLog
	binary.BigEndian.PutUint64(out[1:], idx)
	return out
}
