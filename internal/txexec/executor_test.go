package txexec

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/state"
)

func setupAccount(t *testing.T, view *state.MapStateView, root common.H256, addr common.Address, nonce uint64) common.H256 {
	t.Helper()
	acc := state.AccountData{Nonce: common.NewNonce(nonce), CodeHash: common.ZeroH256, AccStateRoot: common.ZeroH256}
	w := state.AccountTrie{View: view, Root: root}.Write(view.AccountNodes)
	if err := w.Insert(state.AddressKey(addr), acc); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	for h, n := range w.Staged() {
		view.AccountNodes[h] = n
	}
	return w.Root()
}

func TestExecuteIncrementsNonceAndCompressesRead(t *testing.T) {
	view := state.NewMapStateView()
	caller := common.BytesToAddress([]byte{0x01})
	root := setupAccount(t, view, common.ZeroH256, caller, 1)

	tx, err := Execute(view, root, 5, caller, common.NewNonce(1), []byte("payload"), func(ctx *Adapter) {
		ctx.SetValue(caller, common.BytesToH256([]byte{0x9}), common.BytesToH256([]byte{0x42}))
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	w, ok := tx.Writes[caller]
	if !ok || w.Nonce == nil || !w.Nonce.Equal(common.NewNonce(2)) {
		t.Fatalf("expected caller nonce write of 2, got %+v", w)
	}
	if len(w.Values) != 1 {
		t.Fatalf("expected one value write, got %d", len(w.Values))
	}

	// The nonce read (1) is fully implied by the write (2); since it was
	// the caller's only read attribute, it should be compressed away
	// entirely.
	if _, stillThere := tx.Reads[caller]; stillThere {
		t.Fatalf("expected caller's read entry to be compressed away, got %+v", tx.Reads[caller])
	}

	priv, _, genErr := ed25519.GenerateKey(nil)
	if genErr != nil {
		t.Fatalf("generate key: %v", genErr)
	}
	Sign(tx, priv)
	if !tx.VerifySig() {
		t.Fatalf("expected signature to verify")
	}
}

func TestExecuteNonceMismatch(t *testing.T) {
	view := state.NewMapStateView()
	caller := common.BytesToAddress([]byte{0x02})
	root := setupAccount(t, view, common.ZeroH256, caller, 3)

	_, err := Execute(view, root, 1, caller, common.NewNonce(1), nil, func(ctx *Adapter) {})
	if err == nil || !errors.Is(err, chainerr.NonceMismatch) {
		t.Fatalf("expected NonceMismatch, got %v", err)
	}
}

func TestReadCompressionKeepsOtherAttributes(t *testing.T) {
	view := state.NewMapStateView()
	caller := common.BytesToAddress([]byte{0x03})
	other := common.BytesToAddress([]byte{0x04})
	root := setupAccount(t, view, common.ZeroH256, caller, 1)
	root = setupAccount(t, view, root, other, 9)

	key := common.BytesToH256([]byte{0x11})
	tx, err := Execute(view, root, 1, caller, common.NewNonce(1), nil, func(ctx *Adapter) {
		_ = ctx.GetValue(caller, key)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	r, ok := tx.Reads[caller]
	if !ok {
		t.Fatalf("expected caller's read entry (for the key read) to survive compression")
	}
	if r.Nonce != nil {
		t.Fatalf("expected caller's nonce read to be compressed away, got %+v", r.Nonce)
	}
	if !r.Keys[key] {
		t.Fatalf("expected key read to survive")
	}
}
