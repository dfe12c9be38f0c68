package snapshot

import (
	"testing"

	"slimchain/internal/chain"
	"slimchain/internal/common"
)

func blockAt(h common.BlockHeight, root common.H256) chain.Block {
	return chain.Block{Header: chain.BlockHeader{Height: h, StateRoot: root}}
}

func TestGenesisWindow(t *testing.T) {
	s := Genesis(2, 1000)
	if s.Height() != 0 || s.OldestHeight() != 0 {
		t.Fatalf("expected genesis at height 0")
	}
	if s.Blocks.Len() != 1 {
		t.Fatalf("expected one block in window, got %d", s.Blocks.Len())
	}
}

func TestCommitBlockTrimsWindow(t *testing.T) {
	s := Genesis(2, 1000)

	s.BeginBlock(1)
	s.CommitBlock(blockAt(1, common.BytesToH256([]byte{1})))
	if s.Blocks.Len() != 2 {
		t.Fatalf("expected window len 2, got %d", s.Blocks.Len())
	}

	s.BeginBlock(2)
	pd := s.CommitBlock(blockAt(2, common.BytesToH256([]byte{2})))
	if s.Blocks.Len() != 2 {
		t.Fatalf("expected window capped at 2, got %d", s.Blocks.Len())
	}
	if s.OldestHeight() != 1 {
		t.Fatalf("expected oldest height 1 after trim, got %d", s.OldestHeight())
	}
	_ = pd
	if _, ok := s.GetBlock(0); ok {
		t.Fatalf("expected height 0 to have fallen out of the window")
	}
	if blk, ok := s.GetBlock(2); !ok || blk.Header.Height != 2 {
		t.Fatalf("expected to find height 2 in window")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := Genesis(3, 1000)
	s.BeginBlock(1)
	s.CommitBlock(blockAt(1, common.BytesToH256([]byte{1})))

	backup := s.Clone()

	s.BeginBlock(2)
	s.CommitBlock(blockAt(2, common.BytesToH256([]byte{2})))

	if backup.Height() != 1 {
		t.Fatalf("expected backup to remain at height 1, got %d", backup.Height())
	}
	if s.Height() != 2 {
		t.Fatalf("expected live snapshot to have advanced to height 2, got %d", s.Height())
	}
}

func TestInWindow(t *testing.T) {
	s := Genesis(2, 1000)
	s.BeginBlock(1)
	s.CommitBlock(blockAt(1, common.ZeroH256))
	s.BeginBlock(2)
	s.CommitBlock(blockAt(2, common.ZeroH256))

	if s.InWindow(0) {
		t.Fatalf("expected height 0 to be stale")
	}
	if !s.InWindow(1) || !s.InWindow(2) {
		t.Fatalf("expected heights 1 and 2 to be in window")
	}
	if s.InWindow(3) {
		t.Fatalf("expected height 3 to be future")
	}
}
