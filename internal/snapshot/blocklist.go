package snapshot

import "slimchain/internal/chain"

// blockArena is the backing store a family of BlockList clones shares.
// Blocks are only ever appended at the tail and trimmed from the head,
// so a plain growable slice works as the shared arena; blockArena exists
// as its own type only so multiple BlockList values can hold a pointer
// to the same one.
type blockArena struct {
	blocks []chain.Block
}

// BlockList is a clone-on-write view of recent blocks: cloning is O(1)
// (copy three fields, share the arena pointer) and the common-case
// append is also O(1), amortized, on the arena's shared backing slice.
// It only forks a private arena copy when a clone's Append would
// otherwise silently race with blocks appended through a different,
// already-diverged clone of the same arena — the situation a worker hits
// when it reverts to a pre-commit backup snapshot after a failed verify
// and then resumes appending from there.
type BlockList struct {
	arena      *blockArena
	start, end int
}

// NewBlockList returns an empty list with a fresh backing arena.
func NewBlockList() BlockList {
	return BlockList{arena: &blockArena{}}
}

// Len is the number of blocks currently in view.
func (l BlockList) Len() int { return l.end - l.start }

// At returns the i'th block in view, oldest first.
func (l BlockList) At(i int) chain.Block { return l.arena.blocks[l.start+i] }

// Clone is an O(1) snapshot of the current view; neither the original
// nor the clone is mutated in place by later Append/RemoveOldest calls.
func (l BlockList) Clone() BlockList { return l }

// Append returns a new BlockList with b appended. If the arena has
// already grown past this list's own view of it (some other clone
// appended first), the arena is forked so both families keep a
// consistent, independent tail.
func (l BlockList) Append(b chain.Block) BlockList {
	if l.end != len(l.arena.blocks) {
		forked := make([]chain.Block, l.end-l.start)
		copy(forked, l.arena.blocks[l.start:l.end])
		l = BlockList{arena: &blockArena{blocks: forked}, start: 0, end: len(forked)}
	}
	l.arena.blocks = append(l.arena.blocks, b)
	return BlockList{arena: l.arena, start: l.start, end: l.end + 1}
}

// RemoveOldest drops the front block in O(1) by advancing the view's
// start index; the arena slot itself is retained until the arena is
// garbage-collected, trading memory for clone safety.
func (l BlockList) RemoveOldest() BlockList {
	if l.Len() == 0 {
		return l
	}
	return BlockList{arena: l.arena, start: l.start + 1, end: l.end}
}
