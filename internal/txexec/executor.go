// Package txexec implements C7: the glue between a pluggable contract
// execution function and the two-level state view, producing a signed
// Tx with exactly the read/write evidence spec.md §4.6 requires — no
// more (every touched attribute is recorded, so a verifier can replay
// the same compressed reads) and no less (nonce reads that are implied
// by a written nonce are compressed away).
package txexec

import (
	"crypto/ed25519"
	"fmt"

	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/state"
	"slimchain/internal/trie"
)

// Adapter is the capability a contract execution function runs against.
// Every Get records first-read-wins evidence in Reads; every Set records
// evidence in Writes. Errors encountered inside Get/Set are stashed on
// the adapter rather than threaded through the execution function's
// call signature — most exec functions are a chain of Gets/Sets with no
// natural place to check an error after each one, so Adapter checks once
// itself, after the function returns.
type Adapter struct {
	view        state.TxStateView
	accountRoot common.H256
	accounts    *trie.ReadTrieContext
	stateCtx    map[common.Address]*trie.ReadTrieContext
	loaded      map[common.Address]state.AccountData

	reads  map[common.Address]*chain.TxReadData
	writes map[common.Address]*chain.TxWriteData

	err error
}

// NewAdapter opens an execution context reading against accountRoot.
func NewAdapter(view state.TxStateView, accountRoot common.H256) *Adapter {
	return &Adapter{
		view:        view,
		accountRoot: accountRoot,
		accounts:    trie.NewReadTrieContext(state.AccountTrieView{View: view}, accountRoot),
		stateCtx:    map[common.Address]*trie.ReadTrieContext{},
		loaded:      map[common.Address]state.AccountData{},
		reads:       map[common.Address]*chain.TxReadData{},
		writes:      map[common.Address]*chain.TxWriteData{},
	}
}

// Err returns the first error Get/Set encountered, if any.
func (a *Adapter) Err() error { return a.err }

func (a *Adapter) readEntry(addr common.Address) *chain.TxReadData {
	r, ok := a.reads[addr]
	if !ok {
		r = &chain.TxReadData{Keys: map[common.StateKey]bool{}}
		a.reads[addr] = r
	}
	return r
}

func (a *Adapter) writeEntry(addr common.Address) *chain.TxWriteData {
	w, ok := a.writes[addr]
	if !ok {
		w = &chain.TxWriteData{Values: map[common.StateKey]common.StateValue{}}
		a.writes[addr] = w
	}
	return w
}

func (a *Adapter) loadAccount(addr common.Address) state.AccountData {
	if ad, ok := a.loaded[addr]; ok {
		return ad
	}
	val, found, err := a.accounts.Read(state.AddressKey(addr))
	if err != nil {
		if a.err == nil {
			a.err = fmt.Errorf("tx executor: reading account %s: %w", addr, err)
		}
		return state.EmptyAccount
	}
	ad := state.EmptyAccount
	if found {
		if got, ok := val.(state.AccountData); ok {
			ad = got
		}
	}
	a.loaded[addr] = ad
	return ad
}

func (a *Adapter) stateReadCtx(addr common.Address, root common.H256) *trie.ReadTrieContext {
	if ctx, ok := a.stateCtx[addr]; ok {
		return ctx
	}
	ctx := trie.NewReadTrieContext(state.StateTrieView{View: a.view, Addr: addr}, root)
	a.stateCtx[addr] = ctx
	return ctx
}

// GetNonce returns addr's current nonce, recording the read.
func (a *Adapter) GetNonce(addr common.Address) common.Nonce {
	if a.err != nil {
		return common.ZeroNonce
	}
	ad := a.loadAccount(addr)
	n := ad.Nonce
	a.readEntry(addr).Nonce = &n
	return n
}

// GetCodeHash returns addr's current code hash, recording the read.
func (a *Adapter) GetCodeHash(addr common.Address) common.H256 {
	if a.err != nil {
		return common.ZeroH256
	}
	ad := a.loadAccount(addr)
	h := ad.CodeHash
	a.readEntry(addr).Code = &h
	return h
}

// GetValue returns the value stored at (addr, key), recording the read.
func (a *Adapter) GetValue(addr common.Address, key common.StateKey) common.StateValue {
	if a.err != nil {
		return common.ZeroH256
	}
	ad := a.loadAccount(addr)
	val, found, err := a.stateReadCtx(addr, ad.AccStateRoot).Read(state.StateKeyNibbles(key))
	if err != nil {
		if a.err == nil {
			a.err = fmt.Errorf("tx executor: reading %s/%s: %w", addr, key, err)
		}
		return common.ZeroH256
	}
	a.readEntry(addr).Keys[key] = true
	if !found {
		return common.ZeroH256
	}
	rv, _ := val.(trie.RawValue)
	return common.BytesToH256(rv)
}

// SetNonce records a new nonce for addr.
func (a *Adapter) SetNonce(addr common.Address, n common.Nonce) {
	if a.err != nil {
		return
	}
	a.writeEntry(addr).Nonce = &n
}

// IncrementNonce reads addr's current nonce and writes nonce+1, the one
// state change every accepted transaction makes to its caller.
func (a *Adapter) IncrementNonce(addr common.Address) {
	if a.err != nil {
		return
	}
	a.SetNonce(addr, a.GetNonce(addr).Next())
}

// SetCodeHash records a new code hash for addr.
func (a *Adapter) SetCodeHash(addr common.Address, h common.H256) {
	if a.err != nil {
		return
	}
	a.writeEntry(addr).Code = &h
}

// SetValue records a new value at (addr, key).
func (a *Adapter) SetValue(addr common.Address, key common.StateKey, val common.StateValue) {
	if a.err != nil {
		return
	}
	a.writeEntry(addr).Values[key] = val
}

// ResetValues marks addr's entire state sub-trie as replaced, dropping
// any individual key writes already staged for it — they're subsumed by
// the reset.
func (a *Adapter) ResetValues(addr common.Address) {
	if a.err != nil {
		return
	}
	w := a.writeEntry(addr)
	w.ResetValues = true
	w.Values = map[common.StateKey]common.StateValue{}
}

// DeleteAccount zeroes addr's nonce and code and resets its state,
// matching AccountData.IsZeroValue()'s convention that the empty account
// is equivalent to "no account here".
func (a *Adapter) DeleteAccount(addr common.Address) {
	if a.err != nil {
		return
	}
	zero := common.ZeroNonce
	zh := common.ZeroH256
	a.SetNonce(addr, zero)
	a.SetCodeHash(addr, zh)
	a.ResetValues(addr)
}

// compress elides a read that is wholly implied by a write: a nonce read
// followed by writing its successor carries no extra information.
func compress(reads map[common.Address]*chain.TxReadData, writes map[common.Address]*chain.TxWriteData) {
	for addr, w := range writes {
		r, ok := reads[addr]
		if !ok || r.Nonce == nil || w.Nonce == nil {
			continue
		}
		if r.Nonce.Next().Equal(*w.Nonce) {
			r.Nonce = nil
		}
		if r.Nonce == nil && r.Code == nil && len(r.Keys) == 0 {
			delete(reads, addr)
		}
	}
}

// Finish closes out the adapter, returning the compressed read/write
// evidence, or the first error encountered during execution.
func (a *Adapter) Finish() (map[common.Address]chain.TxReadData, map[common.Address]chain.TxWriteData, error) {
	if a.err != nil {
		return nil, nil, a.err
	}
	compress(a.reads, a.writes)

	reads := make(map[common.Address]chain.TxReadData, len(a.reads))
	for addr, r := range a.reads {
		reads[addr] = *r
	}
	writes := make(map[common.Address]chain.TxWriteData, len(a.writes))
	for addr, w := range a.writes {
		writes[addr] = *w
	}
	return reads, writes, nil
}

// Func is a contract execution function: given full Get/Set capability
// over the state Adapter exposes, it runs some domain-specific logic.
// SlimChain itself is agnostic to what that logic is — spec.md scopes
// contract semantics out of this layer entirely.
type Func func(ctx *Adapter)

// Execute runs fn against accountRoot, first checking and advancing
// caller's nonce, and bundles the result into an unsigned Tx pinned to
// height/accountRoot. NonceMismatch is returned if callerNonce doesn't
// match the nonce observed in the snapshot.
func Execute(view state.TxStateView, accountRoot common.H256, height common.BlockHeight, caller common.Address, callerNonce common.Nonce, input []byte, fn Func) (*chain.Tx, error) {
	ctx := NewAdapter(view, accountRoot)

	observed := ctx.GetNonce(caller)
	if !observed.Equal(callerNonce) {
		return nil, fmt.Errorf("tx executor: caller %s nonce %s != declared %s: %w", caller, observed, callerNonce, chainerr.NonceMismatch)
	}
	ctx.IncrementNonce(caller)

	fn(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tx executor: %w", err)
	}

	reads, writes, err := ctx.Finish()
	if err != nil {
		return nil, fmt.Errorf("tx executor: %w", err)
	}

	return &chain.Tx{
		Caller:        caller,
		Input:         input,
		TxBlockHeight: height,
		TxStateRoot:   accountRoot,
		Reads:         reads,
		Writes:        writes,
	}, nil
}

// Sign computes tx.Signature over tx.SignaturePayload() with priv, and
// records the corresponding public key.
func Sign(tx *chain.Tx, priv ed25519.PrivateKey) {
	tx.PubKey = priv.Public().(ed25519.PublicKey)
	tx.Signature = ed25519.Sign(priv, tx.SignaturePayload())
}
