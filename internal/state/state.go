// Package state implements the two-level state view (C3): a top-level
// account-trie mapping Address to AccountData, over per-account
// state-tries mapping StateKey to StateValue. Both levels are ordinary
// internal/trie tries; this package only supplies the AccountData value
// contract and the loader glue that lets trie/partial read and write
// contexts address either level through a single backing view.
package state

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"slimchain/internal/common"
	"slimchain/internal/nibble"
	"slimchain/internal/trie"
)

// AccountData is the value stored at an address in the account trie. Its
// Digest is the account hash referenced throughout spec.md:
// blake2b(nonce ∥ code_hash ∥ acc_state_root).
type AccountData struct {
	Nonce        common.Nonce
	CodeHash     common.H256
	AccStateRoot common.H256
}

// EmptyAccount is the value an address has before it is ever touched —
// zero nonce, empty code, empty state trie.
var EmptyAccount = AccountData{
	Nonce:        common.ZeroNonce,
	CodeHash:     common.ZeroH256,
	AccStateRoot: common.ZeroH256,
}

func (a AccountData) Digest() common.H256 {
	return common.Blake2bSum(a.Nonce.Bytes(), a.CodeHash.Bytes(), a.AccStateRoot.Bytes())
}

// IsZeroValue reports whether a is the empty account, so inserting it
// into the account trie deletes the address instead (mirroring
// RawValue's zero-state-value convention in internal/trie).
func (a AccountData) IsZeroValue() bool {
	return a.Nonce.Equal(common.ZeroNonce) && a.CodeHash.IsZero() && a.AccStateRoot.IsZero()
}

// DecodeAccountData is the trie.ValueDecoder for account-trie leaves —
// the counterpart to trie.DecodeRawValue a LevelDB-backed account trie
// passes to trie.DecodeNode.
func DecodeAccountData(data []byte) (trie.Value, error) {
	var a AccountData
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("state: decoding account data: %w", err)
	}
	return a, nil
}

// TxStateView is the read capability a transaction execution (or a
// verify/commit pass) needs: resolve a node hash at either trie level.
// Both the real LevelDB-backed store and an in-memory partial-trie view
// built from proofs implement this.
type TxStateView interface {
	AccountTrieNode(h common.H256) (trie.Node, bool)
	StateTrieNode(addr common.Address, h common.H256) (trie.Node, bool)
}

// AccountTrieView adapts a TxStateView into a trie.Store for the
// account-level trie.
type AccountTrieView struct{ View TxStateView }

func (v AccountTrieView) GetNode(h common.H256) (trie.Node, bool) {
	return v.View.AccountTrieNode(h)
}

// StateTrieView adapts a TxStateView into a trie.Store for one account's
// per-key state trie.
type StateTrieView struct {
	View TxStateView
	Addr common.Address
}

func (v StateTrieView) GetNode(h common.H256) (trie.Node, bool) {
	return v.View.StateTrieNode(v.Addr, h)
}

// MapStateView is an in-memory TxStateView over two flat node maps, used
// for tests and as the staging area committed blocks write through.
type MapStateView struct {
	AccountNodes trie.MapStore
	StateNodes   trie.MapStore // shared across every account; nodes are content-addressed
}

func NewMapStateView() *MapStateView {
	return &MapStateView{AccountNodes: trie.MapStore{}, StateNodes: trie.MapStore{}}
}

func (v *MapStateView) AccountTrieNode(h common.H256) (trie.Node, bool) {
	return v.AccountNodes.GetNode(h)
}

func (v *MapStateView) StateTrieNode(_ common.Address, h common.H256) (trie.Node, bool) {
	return v.StateNodes.GetNode(h)
}

// AccountTrie wraps the account-level trie rooted at Root.
type AccountTrie struct {
	View TxStateView
	Root common.H256
}

func (t AccountTrie) Read(addr common.Address) (AccountData, bool, error) {
	tr := &trie.Trie{Store: AccountTrieView{View: t.View}, Root: t.Root}
	val, found, _, err := tr.Read(AddressKey(addr))
	if err != nil {
		return AccountData{}, false, err
	}
	if !found {
		return EmptyAccount, false, nil
	}
	ad, ok := val.(AccountData)
	if !ok {
		return AccountData{}, false, nil
	}
	return ad, true, nil
}

// Write opens a WriteTrieContext over the account trie's backing store,
// rooted at t.Root, ready for Insert/Delete of account data.
func (t AccountTrie) Write(backing trie.Store) *trie.WriteTrieContext {
	return trie.NewWriteTrieContext(backing, t.Root)
}

// StateTrie wraps one account's per-key trie rooted at Root.
type StateTrie struct {
	View TxStateView
	Addr common.Address
	Root common.H256
}

func (t StateTrie) Read(key common.StateKey) (common.StateValue, bool, error) {
	tr := &trie.Trie{Store: StateTrieView{View: t.View, Addr: t.Addr}, Root: t.Root}
	val, found, _, err := tr.Read(StateKeyNibbles(key))
	if err != nil {
		return common.StateValue{}, false, err
	}
	if !found {
		return common.StateValue{}, false, nil
	}
	rv, _ := val.(trie.RawValue)
	return common.BytesToH256(rv), true, nil
}

// Write opens a WriteTrieContext over the state trie's backing store,
// rooted at t.Root.
func (t StateTrie) Write(backing trie.Store) *trie.WriteTrieContext {
	return trie.NewWriteTrieContext(backing, t.Root)
}

// AddressKey is the nibble path an address occupies in the account trie.
func AddressKey(addr common.Address) nibble.Nibbles {
	return nibble.FromBytes(addr.Bytes()).View()
}

// StateKeyNibbles is the nibble path a state key occupies in an account's
// state trie.
func StateKeyNibbles(key common.StateKey) nibble.Nibbles {
	return nibble.FromBytes(key.Bytes()).View()
}

// StateValueOf converts a StateValue into the RawValue a state trie
// stores (the digest of which is blake2b(value bytes), matching the
// value_hash proofs reference elsewhere).
func StateValueOf(v common.StateValue) trie.RawValue { return trie.RawValue(v.Bytes()) }

type cacheKey struct {
	addr common.Address
	hash common.H256
}

// CachedStateView wraps a backing TxStateView with a bounded LRU over
// both trie levels. Read-heavy verify/commit passes re-walk the same
// hot account-trie branches block after block; this avoids re-hitting
// the underlying KV store for nodes that were already decoded recently.
type CachedStateView struct {
	backing TxStateView
	nodes   *lru.Cache[cacheKey, trie.Node]
}

// NewCachedStateView wraps backing with an LRU of the given node
// capacity (shared across both the account trie and every account's
// state trie).
func NewCachedStateView(backing TxStateView, capacity int) *CachedStateView {
	c, err := lru.New[cacheKey, trie.Node](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; no config option sets
		// the capacity, so callers pass a positive constant of their own.
		panic(err)
	}
	return &CachedStateView{backing: backing, nodes: c}
}

func (v *CachedStateView) AccountTrieNode(h common.H256) (trie.Node, bool) {
	key := cacheKey{hash: h}
	if n, ok := v.nodes.Get(key); ok {
		return n, true
	}
	n, ok := v.backing.AccountTrieNode(h)
	if ok {
		v.nodes.Add(key, n)
	}
	return n, ok
}

func (v *CachedStateView) StateTrieNode(addr common.Address, h common.H256) (trie.Node, bool) {
	key := cacheKey{addr: addr, hash: h}
	if n, ok := v.nodes.Get(key); ok {
		return n, true
	}
	n, ok := v.backing.StateTrieNode(addr, h)
	if ok {
		v.nodes.Add(key, n)
	}
	return n, ok
}
