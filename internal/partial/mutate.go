package partial

import (
	"fmt"

	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// Insert and Delete perform the `apply_writes` half of C4: once apply_diff
// has installed every branch a batch of writes touches, the touched
// leaves themselves are rewritten directly against the now-fully-revealed
// partial structure — no backing store is consulted, so a path that
// bottoms out on a Hash placeholder here means the diff didn't reveal
// enough and this is a genuine error, not a cache miss.

// Insert writes valueHash at key, returning the new root Child. A key
// whose current position is Absent is created, splitting Leaf/Extension/
// Branch nodes exactly the way a full trie's WriteTrieContext does.
func Insert(base Child, key nibble.Nibbles, valueHash common.H256) (Child, error) {
	switch base.Kind {
	case Absent:
		return ConcreteChild(&Leaf{Path: key, ValueHash: valueHash}), nil
	case Hashed:
		return Child{}, fmt.Errorf("partial insert: key %s lands on an unrevealed placeholder: %w", key.Hex(), chainerr.InvalidProof)
	}
	switch n := base.Node.(type) {
	case *Leaf:
		return insertIntoLeaf(n, key, valueHash)
	case *Extension:
		return insertIntoExtension(n, key, valueHash)
	case *Branch:
		return insertIntoBranch(n, key, valueHash)
	}
	return Child{}, fmt.Errorf("partial insert: unknown node type %T", base.Node)
}

func insertIntoLeaf(n *Leaf, key nibble.Nibbles, valueHash common.H256) (Child, error) {
	if n.Path.Equal(key) {
		return ConcreteChild(&Leaf{Path: key, ValueHash: valueHash}), nil
	}
	cp := n.Path.CommonPrefixLen(key)
	prefix, oldSuffix := n.Path.SplitAt(cp)
	_, newSuffix := key.SplitAt(cp)

	var b Branch
	oldIdx, oldRest := oldSuffix.SplitFirst()
	b.Children[oldIdx] = ConcreteChild(&Leaf{Path: oldRest, ValueHash: n.ValueHash})
	newIdx, newRest := newSuffix.SplitFirst()
	b.Children[newIdx] = ConcreteChild(&Leaf{Path: newRest, ValueHash: valueHash})

	if cp == 0 {
		return ConcreteChild(&b), nil
	}
	return ConcreteChild(&Extension{Path: prefix, Child: ConcreteChild(&b)}), nil
}

func insertIntoExtension(n *Extension, key nibble.Nibbles, valueHash common.H256) (Child, error) {
	cp := n.Path.CommonPrefixLen(key)
	if cp == n.Path.Len() {
		rest, _ := key.StripPrefix(n.Path)
		newChild, err := Insert(n.Child, rest, valueHash)
		if err != nil {
			return Child{}, err
		}
		return ConcreteChild(&Extension{Path: n.Path, Child: newChild}), nil
	}

	prefix, oldSuffix := n.Path.SplitAt(cp)
	_, newSuffix := key.SplitAt(cp)

	var b Branch
	oldIdx, oldRest := oldSuffix.SplitFirst()
	if oldRest.IsEmpty() {
		b.Children[oldIdx] = n.Child
	} else {
		b.Children[oldIdx] = ConcreteChild(&Extension{Path: oldRest, Child: n.Child})
	}
	newIdx, newRest := newSuffix.SplitFirst()
	b.Children[newIdx] = ConcreteChild(&Leaf{Path: newRest, ValueHash: valueHash})

	if cp == 0 {
		return ConcreteChild(&b), nil
	}
	return ConcreteChild(&Extension{Path: prefix, Child: ConcreteChild(&b)}), nil
}

func insertIntoBranch(n *Branch, key nibble.Nibbles, valueHash common.H256) (Child, error) {
	if key.IsEmpty() {
		return Child{}, fmt.Errorf("partial insert: key terminates at a branch")
	}
	idx, rest := key.SplitFirst()
	newChild, err := Insert(n.Children[idx], rest, valueHash)
	if err != nil {
		return Child{}, err
	}
	nb := *n
	nb.Children[idx] = newChild
	return ConcreteChild(&nb), nil
}

// Delete removes key from base, collapsing Branch-with-one-child back
// into an Extension (or merging straight into a Leaf) the same way a
// full trie's WriteTrieContext does. Deleting an already-absent key is a
// no-op.
func Delete(base Child, key nibble.Nibbles) (Child, error) {
	newChild, _, err := deleteAt(base, key)
	return newChild, err
}

func deleteAt(base Child, key nibble.Nibbles) (Child, bool, error) {
	switch base.Kind {
	case Absent:
		return base, false, nil
	case Hashed:
		return Child{}, false, fmt.Errorf("partial delete: key %s lands on an unrevealed placeholder: %w", key.Hex(), chainerr.InvalidProof)
	}
	switch n := base.Node.(type) {
	case *Leaf:
		if !n.Path.Equal(key) {
			return base, false, nil
		}
		return AbsentChild(), true, nil
	case *Extension:
		rest, ok := key.StripPrefix(n.Path)
		if !ok {
			return base, false, nil
		}
		newChild, deleted, err := deleteAt(n.Child, rest)
		if err != nil {
			return Child{}, false, err
		}
		if !deleted {
			return base, false, nil
		}
		if newChild.Kind == Absent {
			return AbsentChild(), true, nil
		}
		merged, err := mergeExtensionChild(n.Path, newChild)
		if err != nil {
			return Child{}, false, err
		}
		return merged, true, nil
	case *Branch:
		if key.IsEmpty() {
			return base, false, nil
		}
		idx, rest := key.SplitFirst()
		newChild, deleted, err := deleteAt(n.Children[idx], rest)
		if err != nil {
			return Child{}, false, err
		}
		if !deleted {
			return base, false, nil
		}
		nb := *n
		nb.Children[idx] = newChild
		collapsed, err := collapseBranch(&nb)
		if err != nil {
			return Child{}, false, err
		}
		return collapsed, true, nil
	}
	return Child{}, false, fmt.Errorf("partial delete: unknown node type %T", base.Node)
}

func mergeExtensionChild(prefix nibble.Nibbles, child Child) (Child, error) {
	if child.Kind == Hashed {
		return ConcreteChild(&Extension{Path: prefix, Child: child}), nil
	}
	if child.Kind == Absent {
		return child, nil
	}
	switch c := child.Node.(type) {
	case *Leaf:
		return ConcreteChild(&Leaf{Path: prefix.Append(c.Path), ValueHash: c.ValueHash}), nil
	case *Extension:
		return ConcreteChild(&Extension{Path: prefix.Append(c.Path), Child: c.Child}), nil
	default: // Branch
		return ConcreteChild(&Extension{Path: prefix, Child: child}), nil
	}
}

func collapseBranch(nb *Branch) (Child, error) {
	soleIdx := -1
	for i := range nb.Children {
		if nb.Children[i].Kind != Absent {
			if soleIdx != -1 {
				return ConcreteChild(nb), nil
			}
			soleIdx = i
		}
	}
	if soleIdx == -1 {
		return ConcreteChild(nb), nil
	}
	idxPath := nibble.FromNibbleValues([]byte{byte(soleIdx)}).View()
	child := nb.Children[soleIdx]
	if child.Kind == Hashed {
		return ConcreteChild(&Extension{Path: idxPath, Child: child}), nil
	}
	if child.Kind == Absent {
		return ConcreteChild(nb), nil
	}
	switch c := child.Node.(type) {
	case *Leaf:
		return ConcreteChild(&Leaf{Path: idxPath.Append(c.Path), ValueHash: c.ValueHash}), nil
	case *Extension:
		return ConcreteChild(&Extension{Path: idxPath.Append(c.Path), Child: c.Child}), nil
	default: // Branch
		return ConcreteChild(&Extension{Path: idxPath, Child: child}), nil
	}
}
