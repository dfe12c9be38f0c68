package trie

import (
	"fmt"

	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// zeroer is implemented by Values whose zero representation means
// "delete this key" rather than "store this value" — RawValue's all-zero
// 32-byte state value and state.AccountData's empty account are the
// instances in this codebase.
type zeroer interface {
	IsZeroValue() bool
}

func (v RawValue) IsZeroValue() bool {
	if len(v) == 0 {
		return true
	}
	for _, b := range v {
		if b != 0 {
			return false
		}
	}
	return true
}

// WriteTrieContext performs copy-on-write inserts and deletes against a
// backing Store, staging every newly-allocated node in an in-memory map
// rather than mutating the backing store directly. Callers commit the
// staged nodes (and persist the new root) only once a whole block's
// writes have been folded in successfully.
type WriteTrieContext struct {
	backing  Store
	staged   MapStore
	root     common.H256
	outdated []common.H256
}

// NewWriteTrieContext opens a write session against backing, rooted at
// root (which may be the zero hash for a brand-new trie).
func NewWriteTrieContext(backing Store, root common.H256) *WriteTrieContext {
	return &WriteTrieContext{backing: backing, staged: make(MapStore), root: root}
}

// Root is the current root hash after every Insert/Delete applied so far.
func (w *WriteTrieContext) Root() common.H256 { return w.root }

// Staged returns the nodes allocated during this session, keyed by hash.
func (w *WriteTrieContext) Staged() MapStore { return w.staged }

// Outdated returns the hashes of nodes this session superseded — every
// one of these, if not also present in Staged, is safe to prune once the
// new root is durable.
func (w *WriteTrieContext) Outdated() []common.H256 { return w.outdated }

func (w *WriteTrieContext) getNode(h common.H256) (Node, bool) {
	if n, ok := w.staged.GetNode(h); ok {
		return n, true
	}
	return w.backing.GetNode(h)
}

func (w *WriteTrieContext) stage(n Node) common.H256 { return w.staged.PutNode(n) }

func (w *WriteTrieContext) markOutdated(h common.H256) {
	if h.IsZero() {
		return
	}
	w.outdated = append(w.outdated, h)
}

// Insert writes value at key. A value whose IsZeroValue() reports true is
// treated as a delete, matching the state trie's convention that writing
// the zero H256 to a slot removes it.
func (w *WriteTrieContext) Insert(key nibble.Nibbles, value Value) error {
	if z, ok := value.(zeroer); ok && z.IsZeroValue() {
		return w.Delete(key)
	}
	newRoot, err := w.insertAt(w.root, key, value)
	if err != nil {
		return err
	}
	w.root = newRoot
	return nil
}

func (w *WriteTrieContext) insertAt(h common.H256, key nibble.Nibbles, value Value) (common.H256, error) {
	if h.IsZero() {
		return w.stage(&Leaf{Path: key, Value: value}), nil
	}
	n, ok := w.getNode(h)
	if !ok {
		return common.H256{}, &NodeNotFoundError{Hash: h}
	}
	w.markOutdated(h)
	switch node := n.(type) {
	case *Leaf:
		return w.insertIntoLeaf(node, key, value)
	case *Extension:
		return w.insertIntoExtension(node, key, value)
	case *Branch:
		return w.insertIntoBranch(node, key, value)
	}
	return common.H256{}, fmt.Errorf("trie: insert: unknown node type %T", n)
}

func (w *WriteTrieContext) insertIntoLeaf(node *Leaf, key nibble.Nibbles, value Value) (common.H256, error) {
	if node.Path.Equal(key) {
		return w.stage(&Leaf{Path: key, Value: value}), nil
	}
	cp := node.Path.CommonPrefixLen(key)
	prefix, oldSuffix := node.Path.SplitAt(cp)
	_, newSuffix := key.SplitAt(cp)

	var branch Branch
	oldIdx, oldRest := oldSuffix.SplitFirst()
	branch.Children[oldIdx] = w.stage(&Leaf{Path: oldRest, Value: node.Value})

	newIdx, newRest := newSuffix.SplitFirst()
	branch.Children[newIdx] = w.stage(&Leaf{Path: newRest, Value: value})

	branchHash := w.stage(&branch)
	if cp == 0 {
		return branchHash, nil
	}
	return w.stage(&Extension{Path: prefix, ChildHash: branchHash}), nil
}

func (w *WriteTrieContext) insertIntoExtension(node *Extension, key nibble.Nibbles, value Value) (common.H256, error) {
	cp := node.Path.CommonPrefixLen(key)
	if cp == node.Path.Len() {
		rest, _ := key.StripPrefix(node.Path)
		newChildHash, err := w.insertAt(node.ChildHash, rest, value)
		if err != nil {
			return common.H256{}, err
		}
		return w.stage(&Extension{Path: node.Path, ChildHash: newChildHash}), nil
	}

	prefix, oldSuffix := node.Path.SplitAt(cp)
	_, newSuffix := key.SplitAt(cp)

	var branch Branch
	oldIdx, oldRest := oldSuffix.SplitFirst()
	if oldRest.IsEmpty() {
		branch.Children[oldIdx] = node.ChildHash
	} else {
		branch.Children[oldIdx] = w.stage(&Extension{Path: oldRest, ChildHash: node.ChildHash})
	}

	newIdx, newRest := newSuffix.SplitFirst()
	branch.Children[newIdx] = w.stage(&Leaf{Path: newRest, Value: value})

	branchHash := w.stage(&branch)
	if cp == 0 {
		return branchHash, nil
	}
	return w.stage(&Extension{Path: prefix, ChildHash: branchHash}), nil
}

func (w *WriteTrieContext) insertIntoBranch(node *Branch, key nibble.Nibbles, value Value) (common.H256, error) {
	if key.IsEmpty() {
		return common.H256{}, fmt.Errorf("trie: insert: key terminates at a branch")
	}
	idx, rest := key.SplitFirst()
	newChildHash, err := w.insertAt(node.Children[idx], rest, value)
	if err != nil {
		return common.H256{}, err
	}
	nb := *node
	nb.Children[idx] = newChildHash
	return w.stage(&nb), nil
}

// Delete removes key, if present. Deleting an absent key is a no-op, not
// an error.
func (w *WriteTrieContext) Delete(key nibble.Nibbles) error {
	newRoot, _, err := w.deleteAt(w.root, key)
	if err != nil {
		return err
	}
	w.root = newRoot
	return nil
}

func (w *WriteTrieContext) deleteAt(h common.H256, key nibble.Nibbles) (common.H256, bool, error) {
	if h.IsZero() {
		return h, false, nil
	}
	n, ok := w.getNode(h)
	if !ok {
		return common.H256{}, false, &NodeNotFoundError{Hash: h}
	}
	switch node := n.(type) {
	case *Leaf:
		if !node.Path.Equal(key) {
			return h, false, nil
		}
		w.markOutdated(h)
		return common.H256{}, true, nil

	case *Extension:
		rest, ok := key.StripPrefix(node.Path)
		if !ok {
			return h, false, nil
		}
		newChildHash, deleted, err := w.deleteAt(node.ChildHash, rest)
		if err != nil {
			return common.H256{}, false, err
		}
		if !deleted {
			return h, false, nil
		}
		w.markOutdated(h)
		if newChildHash.IsZero() {
			return common.H256{}, true, nil
		}
		merged, err := w.mergeExtensionChild(node.Path, newChildHash)
		if err != nil {
			return common.H256{}, false, err
		}
		return merged, true, nil

	case *Branch:
		if key.IsEmpty() {
			return h, false, nil
		}
		idx, rest := key.SplitFirst()
		newChildHash, deleted, err := w.deleteAt(node.Children[idx], rest)
		if err != nil {
			return common.H256{}, false, err
		}
		if !deleted {
			return h, false, nil
		}
		w.markOutdated(h)
		nb := *node
		nb.Children[idx] = newChildHash
		collapsed, err := w.collapseBranch(&nb)
		if err != nil {
			return common.H256{}, false, err
		}
		return collapsed, true, nil
	}
	return common.H256{}, false, fmt.Errorf("trie: delete: unknown node type %T", n)
}

// mergeExtensionChild re-anchors prefix onto whatever childHash now holds,
// collapsing two adjacent extensions (or an extension directly into a
// leaf) into one node rather than leaving a degenerate extension-of-length-0.
func (w *WriteTrieContext) mergeExtensionChild(prefix nibble.Nibbles, childHash common.H256) (common.H256, error) {
	child, ok := w.getNode(childHash)
	if !ok {
		return common.H256{}, &NodeNotFoundError{Hash: childHash}
	}
	switch c := child.(type) {
	case *Leaf:
		w.markOutdated(childHash)
		return w.stage(&Leaf{Path: prefix.Append(c.Path), Value: c.Value}), nil
	case *Extension:
		w.markOutdated(childHash)
		return w.stage(&Extension{Path: prefix.Append(c.Path), ChildHash: c.ChildHash}), nil
	default: // Branch: no merge possible, extension stands as-is
		return w.stage(&Extension{Path: prefix, ChildHash: childHash}), nil
	}
}

// collapseBranch re-stages nb, or — if deletion left it with exactly one
// child — collapses it into an Extension (or merges straight into a leaf)
// so the invariant "every Branch has at least two children" is restored.
func (w *WriteTrieContext) collapseBranch(nb *Branch) (common.H256, error) {
	idx, h, ok := nb.SoleChild()
	if !ok {
		return w.stage(nb), nil
	}
	child, found := w.getNode(h)
	if !found {
		return w.stage(&Extension{Path: nibble.FromNibbleValues([]byte{byte(idx)}).View(), ChildHash: h}), nil
	}
	w.markOutdated(h)
	idxPath := nibble.FromNibbleValues([]byte{byte(idx)}).View()
	switch c := child.(type) {
	case *Leaf:
		return w.stage(&Leaf{Path: idxPath.Append(c.Path), Value: c.Value}), nil
	case *Extension:
		return w.stage(&Extension{Path: idxPath.Append(c.Path), ChildHash: c.ChildHash}), nil
	default: // Branch
		return w.stage(&Extension{Path: idxPath, ChildHash: h}), nil
	}
}
