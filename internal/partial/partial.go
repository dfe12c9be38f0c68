// Package partial implements the pruned-trie representation shipped
// between storage nodes and clients: a PartialTrie mirrors a Merkle
// Patricia Trie but any subtree may be replaced by a bare Hash(H256)
// placeholder. Read proofs, transaction write-set evidence and the
// client-side tx trie are all instances of this one representation; this
// package is also where the diff/merge/apply algebra over it lives.
package partial

import (
	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// Kind tags what a Child slot actually holds.
type Kind uint8

const (
	// Absent means this position is concretely known to hold nothing —
	// not "unknown", but verified empty.
	Absent Kind = iota
	// Hashed means this subtree was pruned: only its digest is known.
	Hashed
	// Concrete means the subtree's structure is present in full.
	Concrete
)

// Child is one branch/extension child slot, or the root of a PartialTrie.
type Child struct {
	Kind Kind
	hash common.H256 // valid for Hashed and Concrete (cached digest)
	Node Node        // valid for Concrete
}

// AbsentChild is the empty-slot sentinel.
func AbsentChild() Child { return Child{Kind: Absent} }

// HashChild wraps a bare digest. The zero hash collapses to Absent, since
// an empty subtree and "a pruned subtree that happens to be empty" are
// the same thing.
func HashChild(h common.H256) Child {
	if h.IsZero() {
		return Child{Kind: Absent}
	}
	return Child{Kind: Hashed, hash: h}
}

// ConcreteChild wraps a fully present subtree.
func ConcreteChild(n Node) Child {
	return Child{Kind: Concrete, hash: n.Hash(), Node: n}
}

// Hash returns c's digest regardless of which Kind it is.
func (c Child) Hash() common.H256 {
	switch c.Kind {
	case Absent:
		return common.ZeroH256
	case Hashed:
		return c.hash
	default:
		return c.Node.Hash()
	}
}

// Node is the sum type of partial-trie node shapes: Leaf, Extension,
// Branch. Unlike trie.Node, a Leaf here only carries its value's digest —
// proofs never need to ship raw values, only enough to check a digest.
type Node interface {
	Hash() common.H256
	isNode()
}

// Leaf is a terminal node carrying the digest of its value.
type Leaf struct {
	Path      nibble.Nibbles
	ValueHash common.H256
}

func (l *Leaf) isNode() {}

func (l *Leaf) Hash() common.H256 {
	return common.Blake2bSum([]byte("L"), pathBytes(l.Path), l.ValueHash.Bytes())
}

// Extension is a shared path segment leading to a single Branch child.
type Extension struct {
	Path  nibble.Nibbles
	Child Child
}

func (e *Extension) isNode() {}

func (e *Extension) Hash() common.H256 {
	return common.Blake2bSum([]byte("E"), pathBytes(e.Path), e.Child.Hash().Bytes())
}

// Branch has up to 16 children, indexed by nibble value.
type Branch struct {
	Children [16]Child
}

func (b *Branch) isNode() {}

func (b *Branch) Hash() common.H256 {
	parts := make([][]byte, 0, 17)
	parts = append(parts, []byte("B"))
	for i := range b.Children {
		h := b.Children[i].Hash()
		parts = append(parts, h.Bytes())
	}
	return common.Blake2bSum(parts...)
}

func pathBytes(p nibble.Nibbles) []byte {
	vals := p.Values()
	out := make([]byte, 0, len(vals)+2)
	out = append(out, byte(len(vals)>>8), byte(len(vals)))
	out = append(out, vals...)
	return out
}

// RootHash returns the hash a Child would have as the root of a trie —
// for Absent this is the all-zero H256, matching spec.md §3/§4.1.
func RootHash(c Child) common.H256 { return c.Hash() }
