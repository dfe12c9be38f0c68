package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/pipeline"
	"slimchain/internal/snapshot"
)

// ForwardFn ships a newly-proposed block onward: broadcast to peers
// (PoW) or submit to the replicated log (Raft).
type ForwardFn func(*chain.BlockProposal) error

// BlockProposalWorker is the miner-only loop that drains incoming
// transaction proposals into new blocks via propose_block and forwards
// each one as it's produced.
type BlockProposalWorker struct {
	snap    *snapshot.Snapshot
	checker accessmap.Checker
	driver  pipeline.ConsensusDriver
	cfg     pipeline.ProposeConfig
	metrics *pipeline.Metrics
	log     *logrus.Logger
	forward ForwardFn

	incoming chan *chain.TxProposal
	done     chan struct{}
	shutdown int32
}

// NewBlockProposalWorker wires a miner's block-proposal loop.
func NewBlockProposalWorker(
	snap *snapshot.Snapshot,
	checker accessmap.Checker,
	driver pipeline.ConsensusDriver,
	cfg pipeline.ProposeConfig,
	metrics *pipeline.Metrics,
	log *logrus.Logger,
	forward ForwardFn,
	incoming chan *chain.TxProposal,
) *BlockProposalWorker {
	return &BlockProposalWorker{
		snap:     snap,
		checker:  checker,
		driver:   driver,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
		forward:  forward,
		incoming: incoming,
		done:     make(chan struct{}),
	}
}

// Submit enqueues a transaction proposal for the next block.
func (w *BlockProposalWorker) Submit(tp *chain.TxProposal) error {
	if atomic.LoadInt32(&w.shutdown) != 0 {
		return chainerr.AlreadyShutdown
	}
	select {
	case w.incoming <- tp:
		return nil
	case <-w.done:
		return chainerr.AlreadyShutdown
	}
}

// Run repeatedly calls propose_block until ctx is cancelled or the
// worker is shut down, forwarding every block it mints.
func (w *BlockProposalWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		default:
		}

		proposal, err := pipeline.ProposeBlock(ctx, w.snap, w.checker, w.cfg, w.driver, w.incoming, w.metrics, w.log)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.WithError(err).Error("propose_block failed")
			continue
		}
		if w.forward != nil {
			if err := w.forward(proposal); err != nil {
				w.log.WithError(err).WithField("height", proposal.Block.Header.Height).Error("forwarding block proposal failed")
			}
		}
	}
}

// Shutdown idempotently stops the worker; a second call returns
// AlreadyShutdown. Closing incoming lets any in-flight propose_block
// drain its remaining buffered proposals before returning.
func (w *BlockProposalWorker) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&w.shutdown, 0, 1) {
		return chainerr.AlreadyShutdown
	}
	close(w.done)
	close(w.incoming)
	return nil
}
