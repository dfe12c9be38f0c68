package trie

import (
	"slimchain/internal/common"
	"slimchain/internal/nibble"
	"slimchain/internal/partial"
)

// ReadTrieContext reads against a Store, rooted at a fixed root hash, and
// accumulates a proof (a partial.Child) covering every path it has walked
// so far. Repeated reads through the same context reuse already-expanded
// proof structure instead of re-descending from the root hash each time.
type ReadTrieContext struct {
	store Store
	root  partial.Child
}

// NewReadTrieContext opens a read context against root, which may be the
// zero hash (empty trie).
func NewReadTrieContext(store Store, root common.H256) *ReadTrieContext {
	return &ReadTrieContext{store: store, root: partial.HashChild(root)}
}

// Proof returns the proof accumulated so far across all reads made
// through this context.
func (c *ReadTrieContext) Proof() partial.Child { return c.root }

// Read looks up key, returning the stored value (if any), whether it was
// found, and the proof covering this read (which may be larger than the
// minimal single-key proof if earlier reads already expanded overlapping
// structure).
func (c *ReadTrieContext) Read(key nibble.Nibbles) (v Value, found bool, err error) {
	newRoot, val, found, err := c.descend(c.root, key)
	if err != nil {
		return nil, false, err
	}
	c.root = newRoot
	return val, found, nil
}

// descend expands child along key as needed, loading nodes from the store
// only where the existing proof doesn't already cover them, and returns
// the (possibly-expanded) child plus the read result.
func (c *ReadTrieContext) descend(child partial.Child, key nibble.Nibbles) (partial.Child, Value, bool, error) {
	switch child.Kind {
	case partial.Absent:
		return child, nil, false, nil
	case partial.Concrete:
		return c.descendConcrete(child, key)
	default: // Hashed: needs expansion from the store
		if child.Hash() == common.ZeroH256 {
			return partial.AbsentChild(), nil, false, nil
		}
		n, ok := c.store.GetNode(child.Hash())
		if !ok {
			return child, nil, false, &NodeNotFoundError{Hash: child.Hash()}
		}
		expanded, val, found := expandAndRead(n, key)
		if _, isLeaf := n.(*Leaf); isLeaf {
			return expanded, val, found, nil
		}
		return c.descendConcrete(expanded, key)
	}
}

func (c *ReadTrieContext) descendConcrete(child partial.Child, key nibble.Nibbles) (partial.Child, Value, bool, error) {
	switch n := child.Node.(type) {
	case *partial.Leaf:
		if n.Path.Equal(key) {
			// The value itself isn't carried by the proof; the caller
			// must have a value store to resolve it. Callers that only
			// need the proof (e.g. storage nodes re-proving a write they
			// already know) can ignore the (nil, false) result here when
			// found is actually true — ReadTrieContext only promises the
			// *proof*; see Trie.Read for value resolution.
			return child, nil, true, nil
		}
		return child, nil, false, nil
	case *partial.Extension:
		rest, ok := key.StripPrefix(n.Path)
		if !ok {
			return child, nil, false, nil
		}
		newChild, val, found, err := c.descend(n.Child, rest)
		if err != nil {
			return child, nil, false, err
		}
		return partial.ConcreteChild(&partial.Extension{Path: n.Path, Child: newChild}), val, found, nil
	case *partial.Branch:
		if key.IsEmpty() {
			return child, nil, false, nil
		}
		idx, rest := key.SplitFirst()
		newChild, val, found, err := c.descend(n.Children[idx], rest)
		if err != nil {
			return child, nil, false, err
		}
		nb := *n
		nb.Children[idx] = newChild
		return partial.ConcreteChild(&nb), val, found, nil
	}
	return child, nil, false, nil
}

// expandAndRead converts one freshly-loaded full trie.Node into its
// partial.Child proof representation, recursing exactly one level (the
// children, if any, stay as Hash placeholders until actually visited) and
// reports a preliminary found/value signal used by Trie.Read.
func expandAndRead(n Node, key nibble.Nibbles) (partial.Child, Value, bool) {
	switch tn := n.(type) {
	case *Leaf:
		pn := &partial.Leaf{Path: tn.Path, ValueHash: tn.Value.Digest()}
		if tn.Path.Equal(key) {
			return partial.ConcreteChild(pn), tn.Value, true
		}
		return partial.ConcreteChild(pn), nil, false
	case *Extension:
		pn := &partial.Extension{Path: tn.Path, Child: partial.HashChild(tn.ChildHash)}
		return partial.ConcreteChild(pn), nil, false
	case *Branch:
		var pb partial.Branch
		for i := range tn.Children {
			pb.Children[i] = partial.HashChild(tn.Children[i])
		}
		return partial.ConcreteChild(&pb), nil, false
	}
	return partial.AbsentChild(), nil, false
}

// NodeNotFoundError means a hash the caller expected to resolve via Store
// was missing — a corrupted or incomplete KV backend.
type NodeNotFoundError struct{ Hash common.H256 }

func (e *NodeNotFoundError) Error() string { return "trie: node not found: " + e.Hash.String() }

// Trie wraps a Store with value resolution: ReadTrieContext alone can only
// build proofs (it never needs the raw value once a leaf is found), but
// top-level callers want the decoded value too.
type Trie struct {
	Store Store
	Root  common.H256
}

// Read performs a one-shot read, returning the value, whether it was
// found, and a proof covering exactly this key's path.
func (t *Trie) Read(key nibble.Nibbles) (Value, bool, partial.Child, error) {
	ctx := NewReadTrieContext(t.Store, t.Root)
	val, found, err := ctx.Read(key)
	if err != nil {
		return nil, false, partial.Child{}, err
	}
	return val, found, ctx.Proof(), nil
}
