// Package accessmap implements C5: a sliding window of per-block
// read/write access records plus a reverse index answering, in
// O(|tx reads|+|tx writes|), whether a transaction executed against an
// older snapshot height conflicts with anything committed since.
package accessmap

import (
	"sort"

	"slimchain/internal/common"
)

// AttrKind names which part of an account an access touched.
type AttrKind uint8

const (
	AttrNonce AttrKind = iota
	AttrCode
	AttrReset
	AttrStateKey
)

type attrKey struct {
	Kind AttrKind
	Key  common.StateKey
}

// BlockHeightList is a sorted, deduplicated list of the heights in the
// current window where one (address, attribute) pair was touched.
type BlockHeightList struct {
	heights []common.BlockHeight
}

// Add records h, a no-op if h is already the list's most recent entry
// (a tx within the same block touching the same attribute twice).
func (l *BlockHeightList) Add(h common.BlockHeight) {
	n := len(l.heights)
	if n > 0 && l.heights[n-1] == h {
		return
	}
	l.heights = append(l.heights, h)
}

// Remove drops h, which must be the window's current oldest height —
// callers only ever prune front-to-back. Reports whether the list is
// now empty.
func (l *BlockHeightList) Remove(h common.BlockHeight) (removed bool, empty bool) {
	if len(l.heights) == 0 || l.heights[0] != h {
		return false, len(l.heights) == 0
	}
	l.heights = l.heights[1:]
	return true, len(l.heights) == 0
}

// ConflictsWith reports whether this list contains any height strictly
// greater than h — i.e. whether the attribute was touched by a block
// committed after the snapshot height a transaction read against.
func (l *BlockHeightList) ConflictsWith(h common.BlockHeight) bool {
	if len(l.heights) == 0 {
		return false
	}
	return l.heights[len(l.heights)-1] > h
}

// TouchedAtAll reports whether this list has any entry, regardless of
// height — used by the SSI conflict predicate's stronger RAW check.
func (l *BlockHeightList) TouchedAtAll() bool { return len(l.heights) > 0 }

// addrAccess is one address's access record within a single block.
type addrAccess struct {
	Nonce bool
	Code  bool
	Reset bool
	Keys  map[common.StateKey]bool
}

func newAddrAccess() *addrAccess { return &addrAccess{Keys: map[common.StateKey]bool{}} }

type blockEntry struct {
	Height common.BlockHeight
	Reads  map[common.Address]*addrAccess
	Writes map[common.Address]*addrAccess
}

func newBlockEntry(h common.BlockHeight) *blockEntry {
	return &blockEntry{
		Height: h,
		Reads:  map[common.Address]*addrAccess{},
		Writes: map[common.Address]*addrAccess{},
	}
}

// ReadSet is the per-address attributes a transaction read.
type ReadSet struct {
	Nonce bool
	Code  bool
	Keys  map[common.StateKey]bool
}

// WriteSet is the per-address attributes a transaction wrote.
type WriteSet struct {
	Nonce       bool
	Code        bool
	ResetValues bool
	Keys        map[common.StateKey]bool
}

// PrunedAttr names one (address, attribute) pair that no longer has any
// entry in the window's reverse index, emitted by RemoveOldestBlock so
// C8 can drive trie-node pruning from it.
type PrunedAttr struct {
	Addr common.Address
	Kind AttrKind
	Key  common.StateKey
	Read bool // true: pruned from the read-reverse index; false: write
}

// PruningData is the set of attributes RemoveOldestBlock fully retired.
type PruningData struct {
	Pruned []PrunedAttr
}

// AccessMap is the sliding window described in spec.md §4.5.
type AccessMap struct {
	maxBlocks int
	blocks    []*blockEntry // ascending by height, oldest first

	readRev  map[common.Address]map[attrKey]*BlockHeightList
	writeRev map[common.Address]map[attrKey]*BlockHeightList
}

// New returns an empty AccessMap capped at maxBlocks.
func New(maxBlocks int) *AccessMap {
	return &AccessMap{
		maxBlocks: maxBlocks,
		readRev:   map[common.Address]map[attrKey]*BlockHeightList{},
		writeRev:  map[common.Address]map[attrKey]*BlockHeightList{},
	}
}

// Clone returns a deep copy, used by C6 Snapshot to take an O(state_len)
// backup before a speculative verify/commit pass that might have to be
// rolled back.
func (m *AccessMap) Clone() *AccessMap {
	out := New(m.maxBlocks)
	out.blocks = make([]*blockEntry, len(m.blocks))
	for i, b := range m.blocks {
		nb := newBlockEntry(b.Height)
		for a, acc := range b.Reads {
			nb.Reads[a] = cloneAddrAccess(acc)
		}
		for a, acc := range b.Writes {
			nb.Writes[a] = cloneAddrAccess(acc)
		}
		out.blocks[i] = nb
	}
	out.readRev = cloneRev(m.readRev)
	out.writeRev = cloneRev(m.writeRev)
	return out
}

func cloneAddrAccess(a *addrAccess) *addrAccess {
	na := newAddrAccess()
	na.Nonce, na.Code, na.Reset = a.Nonce, a.Code, a.Reset
	for k := range a.Keys {
		na.Keys[k] = true
	}
	return na
}

func cloneRev(rev map[common.Address]map[attrKey]*BlockHeightList) map[common.Address]map[attrKey]*BlockHeightList {
	out := make(map[common.Address]map[attrKey]*BlockHeightList, len(rev))
	for addr, byAttr := range rev {
		nb := make(map[attrKey]*BlockHeightList, len(byAttr))
		for a, l := range byAttr {
			heights := make([]common.BlockHeight, len(l.heights))
			copy(heights, l.heights)
			nb[a] = &BlockHeightList{heights: heights}
		}
		out[addr] = nb
	}
	return out
}

// WindowLen is the number of blocks currently tracked.
func (m *AccessMap) WindowLen() int { return len(m.blocks) }

// LatestHeight is the height of the newest tracked block. Only valid
// when WindowLen() > 0.
func (m *AccessMap) LatestHeight() common.BlockHeight {
	return m.blocks[len(m.blocks)-1].Height
}

// AllocNewBlock appends an empty per-block entry at height h. Eviction
// (capping the window at state_len) is the caller's (C6 Snapshot's)
// responsibility via RemoveOldestBlock, matching spec.md's separation
// between "advance the map" and "shrink the window".
func (m *AccessMap) AllocNewBlock(h common.BlockHeight) {
	m.blocks = append(m.blocks, newBlockEntry(h))
}

func (m *AccessMap) topBlock() *blockEntry {
	if len(m.blocks) == 0 {
		panic("accessmap: no block allocated — call AllocNewBlock first")
	}
	return m.blocks[len(m.blocks)-1]
}

func (m *AccessMap) revList(rev map[common.Address]map[attrKey]*BlockHeightList, addr common.Address, a attrKey) *BlockHeightList {
	byAttr, ok := rev[addr]
	if !ok {
		byAttr = map[attrKey]*BlockHeightList{}
		rev[addr] = byAttr
	}
	l, ok := byAttr[a]
	if !ok {
		l = &BlockHeightList{}
		byAttr[a] = l
	}
	return l
}

// AddRead merges a read access into the topmost block entry and the
// read-reverse index.
func (m *AccessMap) AddRead(addr common.Address, r ReadSet) {
	h := m.topBlock().Height
	acc, ok := m.topBlock().Reads[addr]
	if !ok {
		acc = newAddrAccess()
		m.topBlock().Reads[addr] = acc
	}
	if r.Nonce {
		acc.Nonce = true
		m.revList(m.readRev, addr, attrKey{Kind: AttrNonce}).Add(h)
	}
	if r.Code {
		acc.Code = true
		m.revList(m.readRev, addr, attrKey{Kind: AttrCode}).Add(h)
	}
	for k := range r.Keys {
		acc.Keys[k] = true
		m.revList(m.readRev, addr, attrKey{Kind: AttrStateKey, Key: k}).Add(h)
	}
}

// AddWrite merges a write access into the topmost block entry and the
// write-reverse index.
func (m *AccessMap) AddWrite(addr common.Address, w WriteSet) {
	h := m.topBlock().Height
	acc, ok := m.topBlock().Writes[addr]
	if !ok {
		acc = newAddrAccess()
		m.topBlock().Writes[addr] = acc
	}
	if w.Nonce {
		acc.Nonce = true
		m.revList(m.writeRev, addr, attrKey{Kind: AttrNonce}).Add(h)
	}
	if w.Code {
		acc.Code = true
		m.revList(m.writeRev, addr, attrKey{Kind: AttrCode}).Add(h)
	}
	if w.ResetValues {
		acc.Reset = true
		m.revList(m.writeRev, addr, attrKey{Kind: AttrReset}).Add(h)
	}
	for k := range w.Keys {
		acc.Keys[k] = true
		m.revList(m.writeRev, addr, attrKey{Kind: AttrStateKey, Key: k}).Add(h)
	}
}

// RemoveOldestBlock pops the window's front entry and retires its height
// from every reverse-index list it touched, reporting any attribute
// whose list became empty as a result.
func (m *AccessMap) RemoveOldestBlock() *PruningData {
	if len(m.blocks) == 0 {
		return &PruningData{}
	}
	oldest := m.blocks[0]
	m.blocks = m.blocks[1:]

	pd := &PruningData{}
	for addr, acc := range oldest.Reads {
		pd.Pruned = append(pd.Pruned, m.retire(m.readRev, addr, acc, oldest.Height, true)...)
	}
	for addr, acc := range oldest.Writes {
		pd.Pruned = append(pd.Pruned, m.retire(m.writeRev, addr, acc, oldest.Height, false)...)
	}
	sort.Slice(pd.Pruned, func(i, j int) bool {
		if pd.Pruned[i].Addr != pd.Pruned[j].Addr {
			return string(pd.Pruned[i].Addr[:]) < string(pd.Pruned[j].Addr[:])
		}
		return pd.Pruned[i].Kind < pd.Pruned[j].Kind
	})
	return pd
}

func (m *AccessMap) retire(rev map[common.Address]map[attrKey]*BlockHeightList, addr common.Address, acc *addrAccess, h common.BlockHeight, isRead bool) []PrunedAttr {
	var out []PrunedAttr
	byAttr := rev[addr]
	retireOne := func(a attrKey) {
		l, ok := byAttr[a]
		if !ok {
			return
		}
		_, empty := l.Remove(h)
		if empty {
			delete(byAttr, a)
			out = append(out, PrunedAttr{Addr: addr, Kind: a.Kind, Key: a.Key, Read: isRead})
		}
	}
	if acc.Nonce {
		retireOne(attrKey{Kind: AttrNonce})
	}
	if acc.Code {
		retireOne(attrKey{Kind: AttrCode})
	}
	if acc.Reset {
		retireOne(attrKey{Kind: AttrReset})
	}
	for k := range acc.Keys {
		retireOne(attrKey{Kind: AttrStateKey, Key: k})
	}
	if len(byAttr) == 0 {
		delete(rev, addr)
	}
	return out
}

func (m *AccessMap) writeConflictsAfter(addr common.Address, a attrKey, hT common.BlockHeight) bool {
	byAttr, ok := m.writeRev[addr]
	if !ok {
		return false
	}
	l, ok := byAttr[a]
	return ok && l.ConflictsWith(hT)
}

func (m *AccessMap) readConflictsAfter(addr common.Address, a attrKey, hT common.BlockHeight) bool {
	byAttr, ok := m.readRev[addr]
	if !ok {
		return false
	}
	l, ok := byAttr[a]
	return ok && l.ConflictsWith(hT)
}

func (m *AccessMap) writeTouchedAtAll(addr common.Address, a attrKey) bool {
	byAttr, ok := m.writeRev[addr]
	if !ok {
		return false
	}
	l, ok := byAttr[a]
	return ok && l.TouchedAtAll()
}

func (m *AccessMap) anyConflictsAfter(addr common.Address, hT common.BlockHeight) bool {
	for _, l := range m.readRev[addr] {
		if l.ConflictsWith(hT) {
			return true
		}
	}
	for _, l := range m.writeRev[addr] {
		if l.ConflictsWith(hT) {
			return true
		}
	}
	return false
}

// conflicts implements both specializations; ssi=true adds the strictly
// stronger RAW check described in spec.md §4.5.
func (m *AccessMap) conflicts(hT common.BlockHeight, reads map[common.Address]ReadSet, writes map[common.Address]WriteSet, ssi bool) bool {
	for addr, r := range reads {
		if r.Nonce {
			if m.writeConflictsAfter(addr, attrKey{Kind: AttrNonce}, hT) {
				return true
			}
			if ssi && m.writeTouchedAtAll(addr, attrKey{Kind: AttrNonce}) {
				return true
			}
		}
		if r.Code {
			if m.writeConflictsAfter(addr, attrKey{Kind: AttrCode}, hT) {
				return true
			}
			if ssi && m.writeTouchedAtAll(addr, attrKey{Kind: AttrCode}) {
				return true
			}
		}
		for k := range r.Keys {
			a := attrKey{Kind: AttrStateKey, Key: k}
			if m.writeConflictsAfter(addr, a, hT) {
				return true
			}
			if ssi && m.writeTouchedAtAll(addr, a) {
				return true
			}
		}
	}

	for addr, w := range writes {
		if w.Nonce {
			a := attrKey{Kind: AttrNonce}
			if m.readConflictsAfter(addr, a, hT) || m.writeConflictsAfter(addr, a, hT) {
				return true
			}
		}
		if w.Code {
			a := attrKey{Kind: AttrCode}
			if m.readConflictsAfter(addr, a, hT) || m.writeConflictsAfter(addr, a, hT) {
				return true
			}
		}
		for k := range w.Keys {
			a := attrKey{Kind: AttrStateKey, Key: k}
			if m.readConflictsAfter(addr, a, hT) || m.writeConflictsAfter(addr, a, hT) {
				return true
			}
		}
		if w.ResetValues && m.anyConflictsAfter(addr, hT) {
			return true
		}
	}
	return false
}

// Checker is the shared interface of Optimistic and SSI.
type Checker interface {
	Conflicts(m *AccessMap, hT common.BlockHeight, reads map[common.Address]ReadSet, writes map[common.Address]WriteSet) bool
}

// Optimistic implements the base conflict predicate: a tx conflicts only
// if an attribute it touched was written strictly after its origin
// height.
type Optimistic struct{}

func (Optimistic) Conflicts(m *AccessMap, hT common.BlockHeight, reads map[common.Address]ReadSet, writes map[common.Address]WriteSet) bool {
	return m.conflicts(hT, reads, writes, false)
}

// SSI is strictly stronger than Optimistic: a read also conflicts if the
// attribute it read was written at all within the window, not only
// after hT, preventing write skew.
type SSI struct{}

func (SSI) Conflicts(m *AccessMap, hT common.BlockHeight, reads map[common.Address]ReadSet, writes map[common.Address]WriteSet) bool {
	return m.conflicts(hT, reads, writes, true)
}
