// Package trie implements the canonical, hash-addressed Merkle Patricia
// Trie (MPT): Leaf/Extension/Branch nodes over 4-bit nibble paths, with
// content-addressed, copy-on-write inserts and blake2b node hashing.
//
// Keys are fixed-length 160- or 256-bit hashes, so no key ever terminates
// at a Branch — branches never carry a value of their own.
package trie

import (
	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// Value is anything a trie leaf can store; it only needs to be
// content-addressable.
type Value interface {
	// Digest returns the blake2b digest that identifies this value inside
	// a Leaf node hash.
	Digest() common.H256
}

// RawValue is the simplest Value: the digest is blake2b(bytes) and the
// stored payload is the bytes themselves, used for StateValue leaves.
type RawValue []byte

func (v RawValue) Digest() common.H256 { return common.Blake2bSum(v) }

// Node is the sum type of trie node shapes. Implementations are Leaf,
// Extension and Branch.
type Node interface {
	// Hash returns this node's content address.
	Hash() common.H256
	isNode()
}

// Leaf is a terminal node: the remaining path nibbles plus the value
// stored at that key.
type Leaf struct {
	Path  nibble.Nibbles
	Value Value
}

func (l *Leaf) isNode() {}

func (l *Leaf) Hash() common.H256 {
	return common.Blake2bSum([]byte("L"), pathBytes(l.Path), l.Value.Digest().Bytes())
}

// Extension is a shared path segment of at least one nibble leading to a
// Branch child.
type Extension struct {
	Path      nibble.Nibbles
	ChildHash common.H256
}

func (e *Extension) isNode() {}

func (e *Extension) Hash() common.H256 {
	return common.Blake2bSum([]byte("E"), pathBytes(e.Path), e.ChildHash.Bytes())
}

// Branch has up to 16 children, indexed by nibble value. A nil entry is
// the zero hash.
type Branch struct {
	Children [16]common.H256
}

func (b *Branch) isNode() {}

func (b *Branch) Hash() common.H256 {
	parts := make([][]byte, 0, 17)
	parts = append(parts, []byte("B"))
	for i := range b.Children {
		parts = append(parts, b.Children[i].Bytes())
	}
	return common.Blake2bSum(parts...)
}

// ChildCount returns how many non-zero children b has.
func (b *Branch) ChildCount() int {
	n := 0
	for i := range b.Children {
		if !b.Children[i].IsZero() {
			n++
		}
	}
	return n
}

// SoleChild returns the index and hash of b's only non-zero child, if it
// has exactly one.
func (b *Branch) SoleChild() (idx int, h common.H256, ok bool) {
	found := -1
	for i := range b.Children {
		if !b.Children[i].IsZero() {
			if found != -1 {
				return 0, common.H256{}, false
			}
			found = i
		}
	}
	if found == -1 {
		return 0, common.H256{}, false
	}
	return found, b.Children[found], true
}

// pathBytes canonicalizes a nibble path for hashing: a length-prefixed
// nibble-value byte string, so "path=[1]" and "path=[1,0]" never collide
// despite one being a prefix of the other's packed bytes.
func pathBytes(p nibble.Nibbles) []byte {
	vals := p.Values()
	out := make([]byte, 0, len(vals)+2)
	out = append(out, byte(len(vals)>>8), byte(len(vals)))
	out = append(out, vals...)
	return out
}

// Store loads nodes by hash. Both the full MPT and the PartialTrie read
// contexts are built against this interface, so the same Read/Write
// machinery works whether the backing store is the real KV-backed trie or
// an in-memory staging map.
type Store interface {
	GetNode(h common.H256) (Node, bool)
}

// MapStore is an in-memory Store, used for tests and as the staging area
// for WriteTrieContext.
type MapStore map[common.H256]Node

func (m MapStore) GetNode(h common.H256) (Node, bool) {
	n, ok := m[h]
	return n, ok
}

func (m MapStore) PutNode(n Node) common.H256 {
	h := n.Hash()
	m[h] = n
	return h
}
