// Package txtrie implements C4: the write-set evidence a storage node
// ships alongside a freshly-executed transaction (TxWriteSetTrie) and the
// branch-diff a miner folds across a block's worth of transactions
// (TxTrieDiff) so clients holding only a partial state trie can catch up.
package txtrie

import (
	"fmt"

	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/partial"
	"slimchain/internal/state"
	"slimchain/internal/trie"
)

// AccountWriteEvidence is the pre-write account fields plus a proof of
// the account's pre-write state trie, for one address a transaction
// writes.
type AccountWriteEvidence struct {
	Nonce       common.Nonce
	CodeHash    common.H256
	ResetValues bool
	StateTrie   partial.Child
}

// TxWriteSetTrie is the compact evidence a storage node ships alongside a
// newly-executed transaction: a top-level partial account trie covering
// every address the tx writes, plus per-address pre-write evidence.
type TxWriteSetTrie struct {
	TopLevel partial.Child
	Accounts map[common.Address]AccountWriteEvidence
}

// WriteKeys names, for one address a transaction writes, whether it
// resets the account's entire state (in which case individual pre-write
// key values don't matter) and if not, which keys it touches.
type WriteKeys struct {
	ResetValues bool
	Keys        []common.StateKey
}

// Build constructs a TxWriteSetTrie against the account trie rooted at
// accountRoot, for the given per-address write-set shape. It performs
// exactly the reads spec.md §4.4 describes: one top-level read per
// address (shared across addresses through a single ReadTrieContext so
// overlapping proof structure is captured once), plus per-key state-trie
// reads unless the address resets its whole state.
func Build(view state.TxStateView, accountRoot common.H256, writes map[common.Address]WriteKeys) (*TxWriteSetTrie, error) {
	ctx := trie.NewReadTrieContext(state.AccountTrieView{View: view}, accountRoot)
	accounts := make(map[common.Address]AccountWriteEvidence, len(writes))

	for addr, wk := range writes {
		val, found, err := ctx.Read(state.AddressKey(addr))
		if err != nil {
			return nil, fmt.Errorf("tx write-set trie: reading account %s: %w", addr, err)
		}
		ad := state.EmptyAccount
		if found {
			if got, ok := val.(state.AccountData); ok {
				ad = got
			}
		}

		var stateProof partial.Child
		if wk.ResetValues {
			stateProof = partial.HashChild(ad.AccStateRoot)
		} else {
			sctx := trie.NewReadTrieContext(state.StateTrieView{View: view, Addr: addr}, ad.AccStateRoot)
			for _, k := range wk.Keys {
				if _, _, err := sctx.Read(state.StateKeyNibbles(k)); err != nil {
					return nil, fmt.Errorf("tx write-set trie: reading %s/%s: %w", addr, k, err)
				}
			}
			stateProof = sctx.Proof()
		}

		accounts[addr] = AccountWriteEvidence{
			Nonce:       ad.Nonce,
			CodeHash:    ad.CodeHash,
			ResetValues: wk.ResetValues,
			StateTrie:   stateProof,
		}
	}

	return &TxWriteSetTrie{TopLevel: ctx.Proof(), Accounts: accounts}, nil
}

// Verify asserts the evidence is consistent with stateRoot: the top-level
// root matches, and every address's carried (nonce, code_hash,
// acc_state_root) hashes to exactly what the top-level proof claims is
// stored there.
func (t *TxWriteSetTrie) Verify(stateRoot common.H256) error {
	if t.TopLevel.Hash() != stateRoot {
		return fmt.Errorf("tx write-set trie: top-level root %s != state root %s: %w", t.TopLevel.Hash(), stateRoot, chainerr.InvalidProof)
	}
	for addr, ev := range t.Accounts {
		accStateRoot := ev.StateTrie.Hash()
		vh, covered := partial.ValueHash(t.TopLevel, state.AddressKey(addr))
		if !covered {
			return fmt.Errorf("tx write-set trie: address %s not covered by proof: %w", addr, chainerr.InvalidProof)
		}
		if vh.IsZero() {
			if !ev.Nonce.Equal(common.ZeroNonce) || !ev.CodeHash.IsZero() || !accStateRoot.IsZero() {
				return fmt.Errorf("tx write-set trie: address %s claimed absent but evidence is non-empty: %w", addr, chainerr.InvalidProof)
			}
			continue
		}
		computed := state.AccountData{Nonce: ev.Nonce, CodeHash: ev.CodeHash, AccStateRoot: accStateRoot}.Digest()
		if vh != computed {
			return fmt.Errorf("tx write-set trie: account hash mismatch at %s: %w", addr, chainerr.InvalidProof)
		}
	}
	return nil
}

// TxTrieDiff is the set of branches missing from a miner's partial trie
// that a batch of transactions' write-set trees would reveal, folded
// across the whole block.
type TxTrieDiff struct {
	Diff *partial.Diff
}

// Fold computes diff_missing_branches(minerTrie, ws.TopLevel) for every
// write-set trie in the block and unions the results.
func Fold(minerTrie partial.Child, writeSets []*TxWriteSetTrie) (*TxTrieDiff, error) {
	acc := partial.NewDiff()
	for i, ws := range writeSets {
		d, err := partial.DiffMissingBranches(minerTrie, ws.TopLevel)
		if err != nil {
			return nil, fmt.Errorf("tx trie diff: folding tx %d: %w", i, err)
		}
		acc = partial.MergeDiff(acc, d)
	}
	return &TxTrieDiff{Diff: acc}, nil
}

// Apply installs this diff's branches into base (apply_diff).
func (d *TxTrieDiff) Apply(base partial.Child, checkHash bool) (partial.Child, error) {
	return partial.ApplyDiff(base, d.Diff, checkHash)
}

// AccountWrite is the post-write account state to install for one
// address during apply_writes.
type AccountWrite struct {
	Addr    common.Address
	Account state.AccountData // IsZeroValue() true deletes the address
}

// StateWrite is one post-write (key, value) pair to install into an
// address's state trie during apply_writes.
type StateWrite struct {
	Addr  common.Address
	Key   common.StateKey
	Value common.StateValue // all-zero deletes the key
}

// ApplyWrites rewrites only the touched leaves of base — the account
// trie's top level, plus any per-address state subtrees it carries —
// after apply_diff has already installed every branch the writes need.
// Every state subtree referenced by an AccountWrite's resulting
// AccStateRoot must already be concrete within base (apply_diff's job);
// ApplyWrites only ever edits, never fetches.
func ApplyWrites(base partial.Child, accountWrites []AccountWrite) (partial.Child, error) {
	cur := base
	for _, w := range accountWrites {
		var err error
		if w.Account.IsZeroValue() {
			cur, err = partial.Delete(cur, state.AddressKey(w.Addr))
		} else {
			cur, err = partial.Insert(cur, state.AddressKey(w.Addr), w.Account.Digest())
		}
		if err != nil {
			return partial.Child{}, fmt.Errorf("tx trie diff: apply_writes account %s: %w", w.Addr, err)
		}
	}
	return cur, nil
}

// ApplyStateWrites rewrites the touched leaves of one address's state
// subtree, returning its new root. Callers fold the result into the
// corresponding AccountWrite's AccStateRoot before calling ApplyWrites.
func ApplyStateWrites(base partial.Child, writes []StateWrite) (partial.Child, error) {
	cur := base
	for _, w := range writes {
		var err error
		if w.Value.IsZero() {
			cur, err = partial.Delete(cur, state.StateKeyNibbles(w.Key))
		} else {
			cur, err = partial.Insert(cur, state.StateKeyNibbles(w.Key), common.Blake2bSum(w.Value.Bytes()))
		}
		if err != nil {
			return partial.Child{}, fmt.Errorf("tx trie diff: apply_writes state %s/%s: %w", w.Addr, w.Key, err)
		}
	}
	return cur, nil
}
