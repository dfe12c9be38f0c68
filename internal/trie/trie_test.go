package trie

import (
	"bytes"
	"encoding/hex"
	"testing"

	"slimchain/internal/common"
	"slimchain/internal/nibble"
	"slimchain/internal/partial"
)

func keyFromHex(t *testing.T, s string) nibble.Nibbles {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return nibble.FromBytes(b).View()
}

func rawVal(n byte) RawValue { return RawValue([]byte{n}) }

func TestInsertDeleteRoundTrip(t *testing.T) {
	w := NewWriteTrieContext(MapStore{}, common.ZeroH256)

	keys := []string{"0a711355", "0a77d337", "0a7f9365", "0a77d397"}
	for i, k := range keys {
		if err := w.Insert(keyFromHex(t, k), rawVal(byte(i+1))); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}
	root := w.Root()
	if root.IsZero() {
		t.Fatalf("expected non-zero root after inserts")
	}

	store := w.Staged()
	backing := MapStore{}
	for k, v := range store {
		backing[k] = v
	}

	w2 := NewWriteTrieContext(backing, root)
	for i := len(keys) - 1; i >= 0; i-- {
		if err := w2.Delete(keyFromHex(t, keys[i])); err != nil {
			t.Fatalf("delete %s: %v", keys[i], err)
		}
	}
	if !w2.Root().IsZero() {
		t.Fatalf("expected zero root after deleting every key, got %s", w2.Root())
	}
}

func TestInsertOrderIndependence(t *testing.T) {
	keys := []string{"0a711355", "0a77d337", "0a7f9365", "0a77d397"}

	w1 := NewWriteTrieContext(MapStore{}, common.ZeroH256)
	for i, k := range keys {
		if err := w1.Insert(keyFromHex(t, k), rawVal(byte(i+1))); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}

	order := []int{2, 0, 3, 1}
	w2 := NewWriteTrieContext(MapStore{}, common.ZeroH256)
	for _, i := range order {
		if err := w2.Insert(keyFromHex(t, keys[i]), rawVal(byte(i+1))); err != nil {
			t.Fatalf("insert %s: %v", keys[i], err)
		}
	}

	if w1.Root() != w2.Root() {
		t.Fatalf("insertion order changed root: %s vs %s", w1.Root(), w2.Root())
	}
}

func TestProofSoundness(t *testing.T) {
	w := NewWriteTrieContext(MapStore{}, common.ZeroH256)
	keys := []string{"0a711355", "0a77d337", "0a7f9365", "0a77d397"}
	for i, k := range keys {
		if err := w.Insert(keyFromHex(t, k), rawVal(byte(i+1))); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}

	tr := &Trie{Store: w.Staged(), Root: w.Root()}
	readKey := keyFromHex(t, "0a77d337")
	val, found, proof, err := tr.Read(readKey)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found {
		t.Fatalf("expected key to be found")
	}
	rv, ok := val.(RawValue)
	if !ok || !bytes.Equal(rv, []byte{2}) {
		t.Fatalf("expected value=2, got %v", val)
	}
	if proof.Hash() != tr.Root {
		t.Fatalf("proof root %s does not match trie root %s", proof.Hash(), tr.Root)
	}
	vh, covered := partial.ValueHash(proof, readKey)
	if !covered {
		t.Fatalf("expected proof to cover the read key")
	}
	if vh != rawVal(2).Digest() {
		t.Fatalf("proof value hash mismatch")
	}

	otherKey := keyFromHex(t, "0a711355")
	if partial.Covers(proof, otherKey) {
		t.Fatalf("single-key proof should not cover an unrelated key")
	}
}

func TestInsertZeroValueDeletes(t *testing.T) {
	w := NewWriteTrieContext(MapStore{}, common.ZeroH256)
	k := keyFromHex(t, "0a77d337")
	if err := w.Insert(k, rawVal(2)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if w.Root().IsZero() {
		t.Fatalf("expected non-zero root")
	}
	if err := w.Insert(k, RawValue(make([]byte, 32))); err != nil {
		t.Fatalf("zero-value insert: %v", err)
	}
	if !w.Root().IsZero() {
		t.Fatalf("expected zero-value write to delete the only key, root=%s", w.Root())
	}
}
