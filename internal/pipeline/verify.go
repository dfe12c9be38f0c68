package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/snapshot"
	"slimchain/internal/txtrie"
)

// MaxClockSkew bounds how far into the future a block's timestamp may
// claim to be, per spec.md §4.8's header sanity check.
const MaxClockSkew = 30 * time.Second

// VerifyBlock re-derives a proposal's state root from scratch against
// snap and, if every check passes, commits it. A non-nil error always
// means the block was rejected. A rejection by the header, consensus or
// tx-root checks leaves snap untouched; any later rejection can leave
// snap's access map holding a partly recorded new block, so callers
// restore a snap.Clone() taken beforehand (as BlockImportWorker and the
// Raft FSM do).
func VerifyBlock(
	snap *snapshot.Snapshot,
	checker accessmap.Checker,
	driver ConsensusDriver,
	proposal *chain.BlockProposal,
	metrics *Metrics,
	log *logrus.Logger,
) error {
	prev := snap.LatestBlock()
	header := proposal.Block.Header

	if header.Height != prev.Header.Height+1 {
		return fmt.Errorf("verify_block: height %d != prev+1 (%d): %w", header.Height, prev.Header.Height+1, chainerr.ConsensusViolation)
	}
	if header.PrevHash != prev.Digest() {
		return fmt.Errorf("verify_block: prev_hash mismatch: %w", chainerr.ConsensusViolation)
	}
	if header.TimestampMs <= prev.Header.TimestampMs {
		return fmt.Errorf("verify_block: timestamp %d not after prev %d: %w", header.TimestampMs, prev.Header.TimestampMs, chainerr.ConsensusViolation)
	}
	if header.TimestampMs > time.Now().Add(MaxClockSkew).UnixMilli() {
		return fmt.Errorf("verify_block: timestamp %d too far in the future: %w", header.TimestampMs, chainerr.ConsensusViolation)
	}
	if err := driver.VerifyConsensus(header, proposal.Block.Consensus, prev); err != nil {
		return fmt.Errorf("verify_block: %w", err)
	}

	txList := chain.BlockTxList{Full: proposal.Txs}
	if txList.Digest() != header.TxRoot {
		return fmt.Errorf("verify_block: tx_root mismatch: %w", chainerr.ConsensusViolation)
	}

	snap.BeginBlock(header.Height)
	for _, tx := range proposal.Txs {
		ok, reason := gateTx(snap, checker, &chain.TxProposal{Tx: tx})
		if !ok {
			metrics.DiscardTx(reason)
			return fmt.Errorf("verify_block: tx from %s rejected (%s): %w", tx.Caller, reason, chainerr.ConsensusViolation)
		}
		recordAccess(snap, tx)
	}

	if proposal.Trie.WriteSet != nil {
		if err := proposal.Trie.WriteSet.Verify(prev.Header.StateRoot); err != nil {
			return fmt.Errorf("verify_block: %w", err)
		}
	}

	postDiff := snap.TxTrie
	var err error
	if proposal.Trie.Diff != nil {
		postDiff, err = proposal.Trie.Diff.Apply(snap.TxTrie, true)
		if err != nil {
			return fmt.Errorf("verify_block: applying diff: %w", err)
		}
	}

	evidence := map[common.Address]txtrie.AccountWriteEvidence{}
	if proposal.Trie.WriteSet != nil {
		evidence = proposal.Trie.WriteSet.Accounts
	}
	accountWrites, err := FoldAccountWrites(proposal.Txs, evidence)
	if err != nil {
		return fmt.Errorf("verify_block: %w", err)
	}
	finalTrie, err := txtrie.ApplyWrites(postDiff, accountWrites)
	if err != nil {
		return fmt.Errorf("verify_block: applying writes: %w", err)
	}
	if finalTrie.Hash() != header.StateRoot {
		return fmt.Errorf("verify_block: state_root mismatch (got %s want %s): %w", finalTrie.Hash(), header.StateRoot, chainerr.ConsensusViolation)
	}

	pd := snap.CommitBlock(proposal.Block)
	snap.TxTrie = finalTrie
	metrics.BlockCommitted()
	log.WithFields(logrus.Fields{"height": header.Height, "txs": len(proposal.Txs), "pruned": len(pd.Pruned)}).Info("verified and committed block")
	return nil
}
