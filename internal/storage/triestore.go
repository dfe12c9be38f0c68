package storage

import (
	"fmt"

	"slimchain/internal/common"
	"slimchain/internal/state"
	"slimchain/internal/trie"
)

// TrieView is a storage node's durable state.TxStateView: both trie
// levels share the state column, content-addressed by node hash —
// mirroring db.rs's account_trie_node/state_trie_node, which both read
// STATE_DB_COL keyed by the node's own address (hash).
type TrieView struct {
	store *Store
}

// NewTrieView wraps store as a state.TxStateView.
func NewTrieView(store *Store) *TrieView { return &TrieView{store: store} }

var _ state.TxStateView = (*TrieView)(nil)

func (v *TrieView) AccountTrieNode(h common.H256) (trie.Node, bool) {
	return v.getNode(h, state.DecodeAccountData)
}

func (v *TrieView) StateTrieNode(_ common.Address, h common.H256) (trie.Node, bool) {
	return v.getNode(h, trie.DecodeRawValue)
}

func (v *TrieView) getNode(h common.H256, decodeValue trie.ValueDecoder) (trie.Node, bool) {
	data, ok, err := v.store.get(stateKey(h))
	if err != nil || !ok {
		if err != nil {
			v.store.log.WithError(err).WithField("hash", h.String()).Error("storage: reading trie node")
		}
		return nil, false
	}
	n, err := trie.DecodeNode(data, decodeValue)
	if err != nil {
		v.store.log.WithError(err).WithField("hash", h.String()).Error("storage: decoding trie node")
		return nil, false
	}
	return n, true
}

// PutNode stages a content-addressed trie node into b under the state
// column, keyed by its own hash.
func (b *Batch) PutNode(n trie.Node) (common.H256, error) {
	data, err := trie.EncodeNode(n)
	if err != nil {
		return common.H256{}, fmt.Errorf("storage: encoding trie node: %w", err)
	}
	h := n.Hash()
	b.PutStateNode(h, data)
	return h, nil
}
