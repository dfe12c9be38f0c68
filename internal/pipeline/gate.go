package pipeline

import (
	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/snapshot"
)

func toReadSets(reads map[common.Address]chain.TxReadData) map[common.Address]accessmap.ReadSet {
	out := make(map[common.Address]accessmap.ReadSet, len(reads))
	for addr, r := range reads {
		out[addr] = r.ToAccessSet()
	}
	return out
}

func toWriteSets(writes map[common.Address]chain.TxWriteData) map[common.Address]accessmap.WriteSet {
	out := make(map[common.Address]accessmap.WriteSet, len(writes))
	for addr, w := range writes {
		out[addr] = w.ToAccessSet()
	}
	return out
}

// gateTx runs every check spec.md §4.8 requires before a transaction may
// be folded into a block: signature, window membership, state-root
// pinning, write-set evidence soundness and access-map conflict. It
// never mutates snap — callers record acceptance via recordAccess only
// after deciding to keep the tx.
func gateTx(snap *snapshot.Snapshot, checker accessmap.Checker, tp *chain.TxProposal) (ok bool, reason chainerr.DiscardReason) {
	tx := tp.Tx

	if !tx.VerifySig() {
		return false, chainerr.ReasonBadSignature
	}
	if !snap.InWindow(tx.TxBlockHeight) {
		if tx.TxBlockHeight < snap.OldestHeight() {
			return false, chainerr.ReasonOutdated
		}
		return false, chainerr.ReasonFutureHeight
	}
	blk, found := snap.GetBlock(tx.TxBlockHeight)
	if !found || blk.Header.StateRoot != tx.TxStateRoot {
		return false, chainerr.ReasonWrongStateRoot
	}
	if tp.WriteTrie != nil {
		if err := tp.WriteTrie.Verify(tx.TxStateRoot); err != nil {
			return false, chainerr.ReasonInvalidWriteSet
		}
	}
	if checker.Conflicts(snap.Access, tx.TxBlockHeight, toReadSets(tx.Reads), toWriteSets(tx.Writes)) {
		return false, chainerr.ReasonConflict
	}
	return true, ""
}

// recordAccess folds an accepted tx's reads and writes into the access
// map's current (topmost) block entry, so later transactions within the
// same block observe it as a potential conflict source.
func recordAccess(snap *snapshot.Snapshot, tx *chain.Tx) {
	for addr, r := range tx.Reads {
		snap.Access.AddRead(addr, r.ToAccessSet())
	}
	for addr, w := range tx.Writes {
		snap.Access.AddWrite(addr, w.ToAccessSet())
	}
}
