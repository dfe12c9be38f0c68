package trie

import (
	"testing"

	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

func TestEncodeDecodeNodeRoundTrip(t *testing.T) {
	leaf := &Leaf{Path: nibble.FromBytes([]byte{0x1a, 0x2b}).View(), Value: RawValue([]byte("hello"))}

	data, err := EncodeNode(leaf)
	if err != nil {
		t.Fatalf("encode leaf: %v", err)
	}
	decoded, err := DecodeNode(data, DecodeRawValue)
	if err != nil {
		t.Fatalf("decode leaf: %v", err)
	}
	got, ok := decoded.(*Leaf)
	if !ok {
		t.Fatalf("expected *Leaf, got %T", decoded)
	}
	if got.Hash() != leaf.Hash() {
		t.Fatalf("hash mismatch after round trip: got %s want %s", got.Hash(), leaf.Hash())
	}

	ext := &Extension{Path: nibble.FromBytes([]byte{0x05}).View(), ChildHash: common.Blake2bSum([]byte("child"))}
	data, err = EncodeNode(ext)
	if err != nil {
		t.Fatalf("encode extension: %v", err)
	}
	decoded, err = DecodeNode(data, DecodeRawValue)
	if err != nil {
		t.Fatalf("decode extension: %v", err)
	}
	if decoded.Hash() != ext.Hash() {
		t.Fatalf("extension hash mismatch after round trip")
	}

	var branch Branch
	branch.Children[3] = common.Blake2bSum([]byte("three"))
	branch.Children[9] = common.Blake2bSum([]byte("nine"))
	data, err = EncodeNode(&branch)
	if err != nil {
		t.Fatalf("encode branch: %v", err)
	}
	decoded, err = DecodeNode(data, DecodeRawValue)
	if err != nil {
		t.Fatalf("decode branch: %v", err)
	}
	if decoded.Hash() != branch.Hash() {
		t.Fatalf("branch hash mismatch after round trip")
	}
}
