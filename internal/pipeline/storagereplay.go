package pipeline

import (
	"fmt"

	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/state"
	"slimchain/internal/trie"
)

// fullFold is ApplyBlockToFullState's analogue of addrFold, operating on
// the real account/state tries a storage node holds instead of a
// partial-trie proof.
type fullFold struct {
	nonce     common.Nonce
	codeHash  common.H256
	stateRoot common.H256
}

// ApplyBlockToFullState replays a committed block's writes against a
// storage node's own full state, the node-local counterpart to
// verify_block's apply_diff/apply_writes over a partial trie. A storage
// node already holds every address it's responsible for in full, so no
// diff step is needed — only the account/state trie writes themselves.
func ApplyBlockToFullState(view state.TxStateView, backing trie.Store, accountRoot common.H256, block chain.Block) (common.H256, trie.MapStore, error) {
	staged := trie.MapStore{}
	folds := map[common.Address]*fullFold{}
	var order []common.Address

	acctTrie := state.AccountTrie{View: view, Root: accountRoot}
	for _, tx := range block.Txs.Full {
		for addr, w := range tx.Writes {
			f, ok := folds[addr]
			if !ok {
				ad, _, err := acctTrie.Read(addr)
				if err != nil {
					return common.H256{}, nil, fmt.Errorf("apply_block: reading account %s: %w", addr, err)
				}
				f = &fullFold{nonce: ad.Nonce, codeHash: ad.CodeHash, stateRoot: ad.AccStateRoot}
				folds[addr] = f
				order = append(order, addr)
			}
			if w.ResetValues {
				f.stateRoot = common.ZeroH256
			}
			if len(w.Values) > 0 {
				sw := state.StateTrie{View: view, Addr: addr, Root: f.stateRoot}.Write(backing)
				for k, v := range w.Values {
					var err error
					if v.IsZero() {
						err = sw.Delete(state.StateKeyNibbles(k))
					} else {
						err = sw.Insert(state.StateKeyNibbles(k), state.StateValueOf(v))
					}
					if err != nil {
						return common.H256{}, nil, fmt.Errorf("apply_block: writing %s/%s: %w", addr, k, err)
					}
				}
				for h, n := range sw.Staged() {
					staged[h] = n
				}
				f.stateRoot = sw.Root()
			}
			if w.Nonce != nil {
				f.nonce = *w.Nonce
			}
			if w.Code != nil {
				f.codeHash = *w.Code
			}
		}
	}

	aw := state.AccountTrie{View: view, Root: accountRoot}.Write(backing)
	for _, addr := range order {
		f := folds[addr]
		ad := state.AccountData{Nonce: f.nonce, CodeHash: f.codeHash, AccStateRoot: f.stateRoot}
		var err error
		if ad.IsZeroValue() {
			err = aw.Delete(state.AddressKey(addr))
		} else {
			err = aw.Insert(state.AddressKey(addr), ad)
		}
		if err != nil {
			return common.H256{}, nil, fmt.Errorf("apply_block: writing account %s: %w", addr, err)
		}
	}
	for h, n := range aw.Staged() {
		staged[h] = n
	}
	return aw.Root(), staged, nil
}
