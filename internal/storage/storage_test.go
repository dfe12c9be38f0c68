package storage

import (
	"context"
	"crypto/ed25519"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/nibble"
	"slimchain/internal/snapshot"
	"slimchain/internal/state"
	"slimchain/internal/trie"
	"slimchain/internal/txexec"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(testLogger())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetaSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	snap := snapshot.Genesis(4, 1000)
	view := state.NewMapStateView()
	tx, err := txexec.Execute(view, common.ZeroH256, 0, common.BytesToAddress([]byte{1}), common.ZeroNonce, nil, func(a *txexec.Adapter) {
		a.SetValue(common.BytesToAddress([]byte{1}), common.BytesToH256([]byte{2}), common.BytesToH256([]byte{3}))
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	priv, _, _ := ed25519.GenerateKey(nil)
	txexec.Sign(tx, priv)

	block := chain.Block{Header: chain.BlockHeader{Height: 1, TxRoot: common.ZeroH256, StateRoot: common.ZeroH256}}
	snap.BeginBlock(1)
	snap.CommitBlock(block)

	b := NewBatch()
	if err := b.PutSnapshot(snap); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	if err := b.PutTxValue(tx); err != nil {
		t.Fatalf("put tx: %v", err)
	}
	if err := s.WriteSync(b); err != nil {
		t.Fatalf("write sync: %v", err)
	}

	restored, ok, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatalf("expected a persisted snapshot")
	}
	if restored.Height() != snap.Height() {
		t.Fatalf("height mismatch: got %d want %d", restored.Height(), snap.Height())
	}

	gotTx, ok, err := s.GetTx(tx.Digest())
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if !ok {
		t.Fatalf("expected to find tx by digest")
	}
	if gotTx.Digest() != tx.Digest() {
		t.Fatalf("tx digest mismatch after round trip")
	}
}

func TestBlockRoundTripAndHighest(t *testing.T) {
	s := openTestStore(t)

	for h := common.BlockHeight(0); h < 3; h++ {
		blk := chain.Block{Header: chain.BlockHeader{Height: h, TxRoot: common.ZeroH256, StateRoot: common.ZeroH256}}
		b := NewBatch()
		if err := b.PutBlockValue(blk); err != nil {
			t.Fatalf("put block %d: %v", h, err)
		}
		if err := s.WriteSync(b); err != nil {
			t.Fatalf("write block %d: %v", h, err)
		}
	}

	blk, ok, err := s.GetBlock(1)
	if err != nil || !ok {
		t.Fatalf("get block 1: ok=%v err=%v", ok, err)
	}
	if blk.Header.Height != 1 {
		t.Fatalf("height mismatch: got %d", blk.Header.Height)
	}

	highest, ok, err := s.HighestBlock()
	if err != nil || !ok {
		t.Fatalf("highest block: ok=%v err=%v", ok, err)
	}
	if highest.Header.Height != 2 {
		t.Fatalf("expected highest height 2, got %d", highest.Header.Height)
	}
}

func TestTrieViewRoundTrip(t *testing.T) {
	s := openTestStore(t)
	view := NewTrieView(s)

	path := nibble.FromBytes([]byte{0x12, 0x34}).View()
	rawLeaf := &trie.Leaf{Path: path, Value: trie.RawValue([]byte("value"))}
	b := NewBatch()
	hash, err := b.PutNode(rawLeaf)
	if err != nil {
		t.Fatalf("put raw leaf: %v", err)
	}
	acctLeaf := &trie.Leaf{Path: path, Value: state.AccountData{Nonce: common.NewNonce(1), CodeHash: common.ZeroH256, AccStateRoot: common.ZeroH256}}
	acctHash, err := b.PutNode(acctLeaf)
	if err != nil {
		t.Fatalf("put account leaf: %v", err)
	}
	if err := s.WriteSync(b); err != nil {
		t.Fatalf("write sync: %v", err)
	}

	n, ok := view.StateTrieNode(common.Address{}, hash)
	if !ok {
		t.Fatalf("expected to find raw-value node")
	}
	got, ok := n.(*trie.Leaf)
	if !ok || got.Hash() != rawLeaf.Hash() {
		t.Fatalf("raw leaf round trip mismatch")
	}

	n, ok = view.AccountTrieNode(acctHash)
	if !ok {
		t.Fatalf("expected to find account node")
	}
	got, ok = n.(*trie.Leaf)
	if !ok || got.Hash() != acctLeaf.Hash() {
		t.Fatalf("account leaf round trip mismatch")
	}
}

func TestTxCounterPersists(t *testing.T) {
	s := openTestStore(t)

	counter, err := s.LoadTxCounter()
	if err != nil {
		t.Fatalf("load tx counter: %v", err)
	}
	if counter.Load() != 0 {
		t.Fatalf("expected 0, got %d", counter.Load())
	}
	counter.Add(5)

	b := NewBatch()
	if err := b.StageTxCount(counter); err != nil {
		t.Fatalf("stage tx count: %v", err)
	}
	if err := s.WriteSync(b); err != nil {
		t.Fatalf("write sync: %v", err)
	}

	reloaded, err := s.LoadTxCounter()
	if err != nil {
		t.Fatalf("reload tx counter: %v", err)
	}
	if reloaded.Load() != 5 {
		t.Fatalf("expected persisted count 5, got %d", reloaded.Load())
	}
}

func TestWriteAsync(t *testing.T) {
	s := openTestStore(t)
	b := NewBatch()
	if err := b.PutMeta("k", "v"); err != nil {
		t.Fatalf("put meta: %v", err)
	}
	errCh := s.WriteAsync(context.Background(), b)
	if err := <-errCh; err != nil {
		t.Fatalf("async write failed: %v", err)
	}
	var out string
	ok, err := s.getJSON(metaKey("k"), &out)
	if err != nil || !ok || out != "v" {
		t.Fatalf("expected to read back async write: ok=%v err=%v out=%q", ok, err, out)
	}
}
