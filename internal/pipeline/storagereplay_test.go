package pipeline

import (
	"testing"

	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/state"
	"slimchain/internal/trie"
)

// TestApplyBlockToFullStateAdvancesRoot checks the replay step a node
// that executes its own tx requests against full (not partial) state
// depends on: without merging ApplyBlockToFullState's staged nodes back
// into the backing store, a second read against the returned root would
// see none of the first block's writes.
func TestApplyBlockToFullStateAdvancesRoot(t *testing.T) {
	store := trie.MapStore{}
	view := &state.MapStateView{AccountNodes: store, StateNodes: store}
	caller := common.BytesToAddress([]byte{0x09})
	key := common.BytesToH256([]byte{0x01})

	one := common.NewNonce(1)
	block := chain.Block{
		Header: chain.BlockHeader{Height: 1},
		Txs: chain.BlockTxList{Full: []*chain.Tx{
			{
				Caller: caller,
				Writes: map[common.Address]chain.TxWriteData{
					caller: {
						Nonce:  &one,
						Values: map[common.StateKey]common.StateValue{key: common.BytesToH256([]byte{0x42})},
					},
				},
			},
		}},
	}

	newRoot, staged, err := ApplyBlockToFullState(view, store, common.ZeroH256, block)
	if err != nil {
		t.Fatalf("ApplyBlockToFullState: %v", err)
	}
	if newRoot.IsZero() {
		t.Fatalf("expected a non-zero root after writes")
	}

	// Mirror what a caller must do: staged nodes aren't visible to the
	// view until merged into its backing store.
	acct := state.AccountTrie{View: view, Root: newRoot}
	if _, found, err := acct.Read(caller); err == nil && found {
		t.Fatalf("expected account to be unreadable before staged nodes are merged")
	}
	for h, n := range staged {
		store[h] = n
	}

	ad, found, err := acct.Read(caller)
	if err != nil {
		t.Fatalf("reading account after merge: %v", err)
	}
	if !found {
		t.Fatalf("expected account to be found after merging staged nodes")
	}
	if !ad.Nonce.Equal(one) {
		t.Fatalf("expected nonce 1, got %s", ad.Nonce)
	}

	st := state.StateTrie{View: view, Addr: caller, Root: ad.AccStateRoot}
	val, found, err := st.Read(key)
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if !found {
		t.Fatalf("expected state key to be found")
	}
	if val != common.BytesToH256([]byte{0x42}) {
		t.Fatalf("unexpected state value: %v", val)
	}
}

// TestApplyBlockToFullStateSequentialBlocks checks that replaying a
// second block builds on the first block's already-merged state rather
// than starting over.
func TestApplyBlockToFullStateSequentialBlocks(t *testing.T) {
	store := trie.MapStore{}
	view := &state.MapStateView{AccountNodes: store, StateNodes: store}
	caller := common.BytesToAddress([]byte{0x0a})

	apply := func(root common.H256, b chain.Block) common.H256 {
		newRoot, staged, err := ApplyBlockToFullState(view, store, root, b)
		if err != nil {
			t.Fatalf("ApplyBlockToFullState: %v", err)
		}
		for h, n := range staged {
			store[h] = n
		}
		return newRoot
	}

	one := common.NewNonce(1)
	root := apply(common.ZeroH256, chain.Block{
		Header: chain.BlockHeader{Height: 1},
		Txs: chain.BlockTxList{Full: []*chain.Tx{
			{Caller: caller, Writes: map[common.Address]chain.TxWriteData{caller: {Nonce: &one}}},
		}},
	})

	two := common.NewNonce(2)
	root = apply(root, chain.Block{
		Header: chain.BlockHeader{Height: 2},
		Txs: chain.BlockTxList{Full: []*chain.Tx{
			{Caller: caller, Writes: map[common.Address]chain.TxWriteData{caller: {Nonce: &two}}},
		}},
	})

	ad, found, err := (state.AccountTrie{View: view, Root: root}).Read(caller)
	if err != nil {
		t.Fatalf("reading account: %v", err)
	}
	if !found {
		t.Fatalf("expected account to be found")
	}
	if !ad.Nonce.Equal(two) {
		t.Fatalf("expected nonce to have advanced to 2, got %s", ad.Nonce)
	}
}
