package state

import (
	"testing"

	"slimchain/internal/common"
)

func TestAccountRoundTrip(t *testing.T) {
	view := NewMapStateView()
	addr := common.BytesToAddress([]byte{0x01, 0x02, 0x03})

	accTrie := AccountTrie{View: view, Root: common.ZeroH256}
	w := accTrie.Write(view.AccountNodes)
	acc := AccountData{Nonce: common.NewNonce(7), CodeHash: common.ZeroH256, AccStateRoot: common.ZeroH256}
	if err := w.Insert(AddressKey(addr), acc); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	for h, n := range w.Staged() {
		view.AccountNodes[h] = n
	}

	readTrie := AccountTrie{View: view, Root: w.Root()}
	got, found, err := readTrie.Read(addr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found {
		t.Fatalf("expected account to be found")
	}
	if !got.Nonce.Equal(common.NewNonce(7)) {
		t.Fatalf("nonce mismatch: got %s", got.Nonce)
	}
}

func TestEmptyAccountDeletesOnWrite(t *testing.T) {
	view := NewMapStateView()
	addr := common.BytesToAddress([]byte{0xaa})

	w := AccountTrie{View: view, Root: common.ZeroH256}.Write(view.AccountNodes)
	if err := w.Insert(AddressKey(addr), AccountData{Nonce: common.NewNonce(1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if w.Root().IsZero() {
		t.Fatalf("expected non-zero root")
	}
	if err := w.Insert(AddressKey(addr), EmptyAccount); err != nil {
		t.Fatalf("insert empty: %v", err)
	}
	if !w.Root().IsZero() {
		t.Fatalf("expected empty account write to delete the address")
	}
}

func TestCachedStateViewHitsUnderlying(t *testing.T) {
	view := NewMapStateView()
	addr := common.BytesToAddress([]byte{0x05})

	w := AccountTrie{View: view, Root: common.ZeroH256}.Write(view.AccountNodes)
	if err := w.Insert(AddressKey(addr), AccountData{Nonce: common.NewNonce(3)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for h, n := range w.Staged() {
		view.AccountNodes[h] = n
	}

	cached := NewCachedStateView(view, 16)
	readTrie := AccountTrie{View: cached, Root: w.Root()}
	got, found, err := readTrie.Read(addr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found || !got.Nonce.Equal(common.NewNonce(3)) {
		t.Fatalf("unexpected account via cache: %+v found=%v", got, found)
	}
	// Second read must be served from cache without touching view again —
	// exercised implicitly: removing the backing node would break an
	// uncached read but not this one.
	delete(view.AccountNodes, w.Root())
	if _, found2, err := readTrie.Read(addr); err != nil || !found2 {
		t.Fatalf("expected cached read to still succeed after evicting backing node, found=%v err=%v", found2, err)
	}
}

func TestStateKeyRoundTrip(t *testing.T) {
	view := NewMapStateView()
	addr := common.BytesToAddress([]byte{0x01})
	key := common.BytesToH256([]byte{0x09})
	val := common.BytesToH256([]byte{0x42})

	st := StateTrie{View: view, Addr: addr, Root: common.ZeroH256}
	w := st.Write(view.StateNodes)
	if err := w.Insert(StateKeyNibbles(key), StateValueOf(val)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for h, n := range w.Staged() {
		view.StateNodes[h] = n
	}

	st2 := StateTrie{View: view, Addr: addr, Root: w.Root()}
	got, found, err := st2.Read(key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found || got != val {
		t.Fatalf("expected %s, got %s (found=%v)", val, got, found)
	}
}
