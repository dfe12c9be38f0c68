package wire

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/state"
	"slimchain/internal/txexec"
)

func buildTestTx(t *testing.T) *chain.Tx {
	t.Helper()
	view := state.NewMapStateView()
	tx, err := txexec.Execute(view, common.ZeroH256, 7, common.BytesToAddress([]byte{1}), common.ZeroNonce, []byte("call"), func(a *txexec.Adapter) {
		a.SetValue(common.BytesToAddress([]byte{1}), common.BytesToH256([]byte{2}), common.BytesToH256([]byte{3}))
		a.SetValue(common.BytesToAddress([]byte{4}), common.BytesToH256([]byte{5}), common.BytesToH256([]byte{6}))
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	priv, _, _ := ed25519.GenerateKey(nil)
	txexec.Sign(tx, priv)
	return tx
}

func TestEncodeDecodeTxRoundTrip(t *testing.T) {
	tx := buildTestTx(t)

	data, err := EncodeTx(tx)
	if err != nil {
		t.Fatalf("encode tx: %v", err)
	}
	got, err := DecodeTx(data)
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if got.Digest() != tx.Digest() {
		t.Fatalf("digest mismatch after round trip: got %s want %s", got.Digest(), tx.Digest())
	}
	if !got.VerifySig() {
		t.Fatalf("expected signature to still verify after round trip")
	}
	if len(got.Writes) != len(tx.Writes) {
		t.Fatalf("writes count mismatch: got %d want %d", len(got.Writes), len(tx.Writes))
	}
}

func TestEncodeDecodeBlockProposalRoundTrip(t *testing.T) {
	tx := buildTestTx(t)
	header := chain.BlockHeader{Height: 3, PrevHash: common.ZeroH256, TimestampMs: 1000, TxRoot: common.ZeroH256, StateRoot: common.ZeroH256}
	proposal := &chain.BlockProposal{
		Block: chain.Block{
			Header:    header,
			Consensus: chain.PoWData{Difficulty: 1_000_000, Nonce: 42},
			Txs:       chain.BlockTxList{Full: []*chain.Tx{tx}},
		},
		Txs: []*chain.Tx{tx},
	}

	data, err := EncodeBlockProposal(proposal)
	if err != nil {
		t.Fatalf("encode proposal: %v", err)
	}
	got, err := DecodeBlockProposal(data)
	if err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if got.Block.Header.Height != header.Height {
		t.Fatalf("height mismatch: got %d want %d", got.Block.Header.Height, header.Height)
	}
	pow, ok := got.Block.Consensus.(chain.PoWData)
	if !ok || pow.Nonce != 42 || pow.Difficulty != 1_000_000 {
		t.Fatalf("consensus data mismatch after round trip: %#v", got.Block.Consensus)
	}
	if len(got.Txs) != 1 || got.Txs[0].Digest() != tx.Digest() {
		t.Fatalf("tx list mismatch after round trip")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	if err := w.WriteFrame([]byte("hello")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := w.WriteFrame([]byte("world")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	r := NewFrameReader(&buf)
	defer r.Close()
	first, err := r.ReadFrame()
	if err != nil || string(first) != "hello" {
		t.Fatalf("first frame: got %q err %v", first, err)
	}
	second, err := r.ReadFrame()
	if err != nil || string(second) != "world" {
		t.Fatalf("second frame: got %q err %v", second, err)
	}
}
