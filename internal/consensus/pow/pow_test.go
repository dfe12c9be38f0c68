package pow

import (
	"context"
	"testing"

	"slimchain/internal/chain"
)

func TestComputeDiffFastBlockIncreases(t *testing.T) {
	got := ComputeDiff(1_005_000, 1_000_000, 1_000_000)
	if got != 1_000_488 {
		t.Fatalf("ComputeDiff(+5s) = %d, want 1000488", got)
	}
}

func TestComputeDiffSlowBlockDecreases(t *testing.T) {
	got := ComputeDiff(1_030_000, 1_000_000, 1_000_000)
	if got != 999_024 {
		t.Fatalf("ComputeDiff(+30s) = %d, want 999024", got)
	}
}

func TestComputeDiffNeverGoesBelowOne(t *testing.T) {
	got := ComputeDiff(100_000_000, 1_000_000, 2048)
	if got < 1 {
		t.Fatalf("ComputeDiff underflowed: %d", got)
	}
}

func TestNonceIsValidAgainstTrivialDifficulty(t *testing.T) {
	var anyHash [32]byte
	anyHash[0] = 0xff
	if !NonceIsValid(anyHash, 1) {
		t.Fatalf("expected difficulty 1 to accept any hash")
	}
}

func TestNewBlockMintsNonceMeetingDifficulty(t *testing.T) {
	d := NewDriver(1)
	header := chain.BlockHeader{Height: 1, TimestampMs: 1000}
	prev := chain.Block{Header: chain.BlockHeader{Height: 0, TimestampMs: 0}}

	minted, data, err := d.NewBlock(context.Background(), header, prev)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	powData, ok := data.(chain.PoWData)
	if !ok {
		t.Fatalf("expected PoWData, got %T", data)
	}
	if minted.Height != header.Height {
		t.Fatalf("NewBlock must not revise height")
	}
	if err := d.VerifyConsensus(minted, powData, prev); err != nil {
		t.Fatalf("VerifyConsensus rejected a block NewBlock just minted: %v", err)
	}
}

func TestVerifyConsensusRejectsWrongDifficulty(t *testing.T) {
	d := NewDriver(1_000_000)
	header := chain.BlockHeader{Height: 1, TimestampMs: 1_005_000}
	prev := chain.Block{
		Header:    chain.BlockHeader{Height: 0, TimestampMs: 1_000_000},
		Consensus: chain.PoWData{Difficulty: 1_000_000, Nonce: 0},
	}

	err := d.VerifyConsensus(header, chain.PoWData{Difficulty: 1, Nonce: 0}, prev)
	if err == nil {
		t.Fatalf("expected rejection of a block claiming the wrong retargeted difficulty")
	}
}
