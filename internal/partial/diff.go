package partial

import (
	"fmt"
	"sort"

	"slimchain/internal/chainerr"
	"slimchain/internal/nibble"
)

// Diff maps a nibble-path prefix (hex-encoded, so it can key a Go map) to
// the subtree the fork trie has there that the main trie lacks. It is the
// wire payload that lets a peer holding `main` catch up to `fork` without
// re-shipping the whole trie.
type Diff struct {
	entries map[string]diffEntry
}

type diffEntry struct {
	prefix nibble.Nibbles
	sub    Child
}

// NewDiff returns an empty diff.
func NewDiff() *Diff { return &Diff{entries: make(map[string]diffEntry)} }

// Entries returns the diff's (prefix, subtree) pairs in a stable,
// lexicographic-by-prefix order — callers that fold multiple diffs
// together need a deterministic iteration order.
func (d *Diff) Entries() []struct {
	Prefix nibble.Nibbles
	Sub    Child
} {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]struct {
		Prefix nibble.Nibbles
		Sub    Child
	}, 0, len(keys))
	for _, k := range keys {
		e := d.entries[k]
		out = append(out, struct {
			Prefix nibble.Nibbles
			Sub    Child
		}{e.prefix, e.sub})
	}
	return out
}

func (d *Diff) set(prefix nibble.Nibbles, sub Child) {
	d.entries[prefix.Hex()] = diffEntry{prefix: prefix, sub: sub}
}

func (d *Diff) get(prefix nibble.Nibbles) (Child, bool) {
	e, ok := d.entries[prefix.Hex()]
	return e.sub, ok
}

func (d *Diff) IsEmpty() bool { return len(d.entries) == 0 }

// DiffMissingBranches computes the branches present in fork but missing
// (pruned to a bare Hash) in main. Both main and fork must be partial
// views of the same underlying full trie at the paths they share;
// wherever the two concretely disagree on the same leaf, that is a
// write-write conflict and this returns chainerr.WriteConflict.
func DiffMissingBranches(main, fork Child) (*Diff, error) {
	d := NewDiff()
	empty := nibble.FromNibbleValues(nil).View()
	if err := diffWalk(main, fork, empty, d); err != nil {
		return nil, err
	}
	return d, nil
}

func diffWalk(main, fork Child, prefix nibble.Nibbles, out *Diff) error {
	switch main.Kind {
	case Hashed:
		switch fork.Kind {
		case Hashed:
			if fork.hash != main.hash {
				return fmt.Errorf("partial trie diff at %s: %w", prefix.Hex(), chainerr.WriteConflict)
			}
			return nil
		default: // Absent or Concrete: fork reveals what main's placeholder hides
			if fork.Hash() != main.hash {
				return fmt.Errorf("partial trie diff at %s: hash mismatch under placeholder: %w", prefix.Hex(), chainerr.WriteConflict)
			}
			out.set(prefix, fork)
			return nil
		}
	case Absent:
		if fork.Kind == Absent {
			return nil
		}
		// main concretely shows nothing here yet fork has structure: a
		// first write into a previously-untouched slot. Still worth
		// recording so apply_diff can install it directly.
		out.set(prefix, fork)
		return nil
	default: // Concrete
		switch fork.Kind {
		case Hashed:
			if fork.hash != main.Node.Hash() {
				return fmt.Errorf("partial trie diff at %s: %w", prefix.Hex(), chainerr.WriteConflict)
			}
			return nil
		case Absent:
			// fork doesn't reveal anything new at a spot main already
			// knows in full.
			return nil
		default:
			return diffConcrete(main.Node, fork.Node, prefix, out)
		}
	}
}

// diffConcrete pairs up two concrete node shapes at the same prefix,
// recursing where they align (matching Branch/Branch, Extension/Extension
// with equal path, Leaf/Leaf with equal path) and otherwise normalizing:
// a genuine shape mismatch (e.g. the fork reveals a split that hasn't
// happened in main's view yet) is resolved by replacing main's entire
// subtree at this prefix with fork's, which yields the same post-apply
// hash as a node-by-node merge at the cost of shipping a few more bytes.
func diffConcrete(mainNode, forkNode Node, prefix nibble.Nibbles, out *Diff) error {
	switch mn := mainNode.(type) {
	case *Leaf:
		if fn, ok := forkNode.(*Leaf); ok && mn.Path.Equal(fn.Path) {
			if mn.ValueHash != fn.ValueHash {
				return fmt.Errorf("partial trie diff at %s: conflicting leaf write: %w", prefix.Hex(), chainerr.WriteConflict)
			}
			return nil
		}
		return replaceSubtree(mainNode, forkNode, prefix, out)
	case *Extension:
		if fn, ok := forkNode.(*Extension); ok && mn.Path.Equal(fn.Path) {
			return diffWalk(mn.Child, fn.Child, prefix.Append(mn.Path), out)
		}
		return replaceSubtree(mainNode, forkNode, prefix, out)
	case *Branch:
		if fn, ok := forkNode.(*Branch); ok {
			for i := 0; i < 16; i++ {
				childPrefix := prefix.Append(nibble.FromNibbleValues([]byte{byte(i)}).View())
				if mn.Children[i].Kind == Absent && fn.Children[i].Kind == Absent {
					continue
				}
				if err := diffWalk(mn.Children[i], fn.Children[i], childPrefix, out); err != nil {
					return err
				}
			}
			return nil
		}
		return replaceSubtree(mainNode, forkNode, prefix, out)
	}
	return replaceSubtree(mainNode, forkNode, prefix, out)
}

func replaceSubtree(mainNode, forkNode Node, prefix nibble.Nibbles, out *Diff) error {
	if mainNode.Hash() == forkNode.Hash() {
		return nil
	}
	out.set(prefix, ConcreteChild(forkNode))
	return nil
}

// ApplyDiff descends base along every entry of diff and substitutes the
// fork subtree there, rebuilding the chain of ancestors so the returned
// root reflects every substitution. When checkHash is true, a descent
// that doesn't land on a Hash placeholder whose digest matches the
// substituted subtree's digest is an error; when false, this is only
// asserted (skipped) to save a hash recomputation on a trusted path.
//
// Invariant: RootHash(ApplyDiff(base, emptyDiff, _)) == RootHash(base).
func ApplyDiff(base Child, diff *Diff, checkHash bool) (Child, error) {
	cur := base
	for _, e := range diff.Entries() {
		next, err := applyOne(cur, e.Prefix, e.Sub, checkHash)
		if err != nil {
			return Child{}, err
		}
		cur = next
	}
	return cur, nil
}

func applyOne(base Child, prefix nibble.Nibbles, sub Child, checkHash bool) (Child, error) {
	if prefix.IsEmpty() {
		if checkHash && base.Hash() != sub.Hash() {
			return Child{}, fmt.Errorf("apply_diff: %w", chainerr.InvalidProof)
		}
		return sub, nil
	}
	switch base.Kind {
	case Hashed, Absent:
		// A non-empty remaining prefix means the diff expects to descend
		// further than this placeholder reveals — only a malformed diff
		// (one not produced by DiffMissingBranches against this same
		// base) does that.
		return Child{}, fmt.Errorf("apply_diff: prefix continues past an unexpanded placeholder: %w", chainerr.InvalidProof)
	case Concrete:
		switch n := base.Node.(type) {
		case *Extension:
			rest, ok := prefix.StripPrefix(n.Path)
			if !ok {
				return Child{}, fmt.Errorf("apply_diff: prefix does not align with extension: %w", chainerr.InvalidProof)
			}
			newChild, err := applyOne(n.Child, rest, sub, checkHash)
			if err != nil {
				return Child{}, err
			}
			return ConcreteChild(&Extension{Path: n.Path, Child: newChild}), nil
		case *Branch:
			idx, rest := prefix.SplitFirst()
			newChild, err := applyOne(n.Children[idx], rest, sub, checkHash)
			if err != nil {
				return Child{}, err
			}
			nb := *n
			nb.Children[idx] = newChild
			return ConcreteChild(&nb), nil
		case *Leaf:
			return Child{}, fmt.Errorf("apply_diff: prefix continues past a leaf: %w", chainerr.InvalidProof)
		}
	}
	return Child{}, fmt.Errorf("apply_diff: unreachable")
}

// MergeDiff unions d1 and d2. On a prefix collision the two subtrees are
// structurally merged (Hash ∨ concrete → concrete); two concrete entries
// at the same prefix must already agree (both diffs were computed against
// the same main trie), otherwise this is a programmer error.
func MergeDiff(d1, d2 *Diff) *Diff {
	out := NewDiff()
	for _, e := range d1.Entries() {
		out.set(e.Prefix, e.Sub)
	}
	for _, e := range d2.Entries() {
		if existing, ok := out.get(e.Prefix); ok {
			out.set(e.Prefix, mergeChild(existing, e.Sub))
		} else {
			out.set(e.Prefix, e.Sub)
		}
	}
	return out
}

func mergeChild(a, b Child) Child {
	if a.Kind == Hashed {
		return b
	}
	if b.Kind == Hashed {
		return a
	}
	if a.Hash() != b.Hash() {
		panic("merge_diff: two diffs disagree on a concrete subtree at the same prefix")
	}
	return a
}
