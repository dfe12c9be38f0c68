package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/snapshot"
	"slimchain/internal/txtrie"
)

// ProposeConfig bounds how long propose_block waits for transactions and
// how many it will fold into one block, matching spec.md §6's
// miner.max_txs/min_txs/max_block_interval_ms options. The
// MaxBlockInterval deadline ends draining only once MinTxs proposals have
// been accepted; a closed incoming channel ends draining at once, even
// below MinTxs.
type ProposeConfig struct {
	MinTxs           int
	MaxTxs           int
	MaxBlockInterval time.Duration
}

// ProposeBlock drains incoming transaction proposals, gates each one,
// folds the accepted ones into a new block, mints it via driver, and
// commits it onto snap. It returns the BlockProposal to broadcast (PoW)
// or submit to the replicated log (Raft).
func ProposeBlock(
	ctx context.Context,
	snap *snapshot.Snapshot,
	checker accessmap.Checker,
	cfg ProposeConfig,
	driver ConsensusDriver,
	incoming <-chan *chain.TxProposal,
	metrics *Metrics,
	log *logrus.Logger,
) (*chain.BlockProposal, error) {
	prev := snap.LatestBlock()
	newHeight := prev.Header.Height + 1
	snap.BeginBlock(newHeight)

	deadline := time.NewTimer(cfg.MaxBlockInterval)
	defer deadline.Stop()
	expired := false

	var accepted []*chain.TxProposal
drain:
	for len(accepted) < cfg.MaxTxs {
		if expired && len(accepted) >= cfg.MinTxs {
			break
		}
		select {
		case tp, open := <-incoming:
			if !open {
				break drain
			}
			ok, reason := gateTx(snap, checker, tp)
			if !ok {
				metrics.DiscardTx(reason)
				log.WithFields(logrus.Fields{"caller": tp.Tx.Caller, "reason": reason}).Debug("discarding tx proposal")
				continue
			}
			recordAccess(snap, tp.Tx)
			accepted = append(accepted, tp)
		case <-deadline.C:
			expired = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(accepted) < cfg.MinTxs && len(accepted) == 0 {
		log.WithFields(logrus.Fields{"height": newHeight}).Debug("propose_block: empty block, incoming closed before min_txs")
	}

	txs := make([]*chain.Tx, 0, len(accepted))
	writeSets := make([]*txtrie.TxWriteSetTrie, 0, len(accepted))
	for _, tp := range accepted {
		txs = append(txs, tp.Tx)
		if tp.WriteTrie != nil {
			writeSets = append(writeSets, tp.WriteTrie)
		}
	}

	diff, err := txtrie.Fold(snap.TxTrie, writeSets)
	if err != nil {
		return nil, fmt.Errorf("propose_block: %w", err)
	}
	postDiff, err := diff.Apply(snap.TxTrie, true)
	if err != nil {
		return nil, fmt.Errorf("propose_block: applying diff: %w", err)
	}

	evidence := MergeEvidence(accepted)
	accountWrites, err := FoldAccountWrites(txs, evidence)
	if err != nil {
		return nil, fmt.Errorf("propose_block: %w", err)
	}
	finalTrie, err := txtrie.ApplyWrites(postDiff, accountWrites)
	if err != nil {
		return nil, fmt.Errorf("propose_block: applying writes: %w", err)
	}

	txList := chain.BlockTxList{Full: txs}
	header := chain.BlockHeader{
		Height:      newHeight,
		PrevHash:    prev.Digest(),
		TimestampMs: time.Now().UnixMilli(),
		TxRoot:      txList.Digest(),
		StateRoot:   finalTrie.Hash(),
	}

	mintedHeader, cons, err := driver.NewBlock(ctx, header, prev)
	if err != nil {
		return nil, fmt.Errorf("propose_block: minting: %w", err)
	}

	block := chain.Block{Header: mintedHeader, Consensus: cons, Txs: txList}

	pd := snap.CommitBlock(block)
	snap.TxTrie = finalTrie
	metrics.BlockCommitted()
	log.WithFields(logrus.Fields{"height": block.Header.Height, "txs": len(txs), "pruned": len(pd.Pruned)}).Info("proposed and committed block")

	mergedWriteSet := &txtrie.TxWriteSetTrie{TopLevel: postDiff, Accounts: evidence}
	return &chain.BlockProposal{
		Block: block,
		Txs:   txs,
		Trie:  chain.BlockProposalTrie{WriteSet: mergedWriteSet, Diff: diff},
	}, nil
}
