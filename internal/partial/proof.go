package partial

import (
	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// ValueHash walks the proof rooted at c along key and reports:
//   - (hash, true)   if a Leaf with nibbles==key and value-hash=hash is present
//   - (zero, true)   if the walk concretely terminates in absence
//   - (zero, false)  if the walk hits a Hash placeholder (not covered)
func ValueHash(c Child, key nibble.Nibbles) (common.H256, bool) {
	switch c.Kind {
	case Hashed:
		return common.H256{}, false
	case Absent:
		return common.H256{}, true
	}
	switch n := c.Node.(type) {
	case *Leaf:
		if n.Path.Equal(key) {
			return n.ValueHash, true
		}
		return common.H256{}, true
	case *Extension:
		rest, ok := key.StripPrefix(n.Path)
		if !ok {
			return common.H256{}, true
		}
		return ValueHash(n.Child, rest)
	case *Branch:
		if key.IsEmpty() {
			// Keys are fixed-length hashes; no key ever terminates at a
			// branch, so this position is concretely empty.
			return common.H256{}, true
		}
		idx, rest := key.SplitFirst()
		return ValueHash(n.Children[idx], rest)
	}
	return common.H256{}, true
}

// Covers reports whether the proof rooted at c fully covers key (i.e. does
// not bottom out on a Hash placeholder along the way).
func Covers(c Child, key nibble.Nibbles) bool {
	_, covered := ValueHash(c, key)
	return covered
}
