package worker

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/pipeline"
	"slimchain/internal/snapshot"
)

// PersistFn durably records snap's new state; returning an error is
// treated as fatal for the worker calling it (spec.md §7: a persistence
// failure is unrecoverable for the node that hit it).
type PersistFn func(snap *snapshot.Snapshot) error

// BlockImportWorker consumes block proposals from the network (or from
// Raft's apply path) in height order and runs verify_block/commit_block
// against its own Snapshot. Every role but a lone miner runs one of
// these; a miner runs BlockProposalWorker alongside it to also originate
// blocks.
type BlockImportWorker struct {
	snap    *snapshot.Snapshot
	checker accessmap.Checker
	driver  pipeline.ConsensusDriver
	metrics *pipeline.Metrics
	log     *logrus.Logger
	persist PersistFn

	in       chan *chain.BlockProposal
	done     chan struct{}
	shutdown int32
}

// NewBlockImportWorker wires a worker around snap. in should be a
// reasonably large buffered channel — SlimChain nodes are meant to
// absorb network-ordering jitter, not backpressure the gossip layer.
func NewBlockImportWorker(
	snap *snapshot.Snapshot,
	checker accessmap.Checker,
	driver pipeline.ConsensusDriver,
	metrics *pipeline.Metrics,
	log *logrus.Logger,
	persist PersistFn,
	in chan *chain.BlockProposal,
) *BlockImportWorker {
	return &BlockImportWorker{
		snap:    snap,
		checker: checker,
		driver:  driver,
		metrics: metrics,
		log:     log,
		persist: persist,
		in:      in,
		done:    make(chan struct{}),
	}
}

// Submit enqueues a block proposal for import. Returns AlreadyShutdown
// if the worker has already been shut down.
func (w *BlockImportWorker) Submit(p *chain.BlockProposal) error {
	if atomic.LoadInt32(&w.shutdown) != 0 {
		return chainerr.AlreadyShutdown
	}
	select {
	case w.in <- p:
		return nil
	case <-w.done:
		return chainerr.AlreadyShutdown
	}
}

// Run processes proposals until ctx is cancelled or the worker is shut
// down. Each height is attempted against a backup clone of snap taken
// just beforehand: a rejected block restores the backup and the worker
// keeps going (the proposal was simply bad), but a persistence failure
// restores the backup and terminates the worker entirely, since its
// durable state can no longer be trusted to match its in-memory view.
func (w *BlockImportWorker) Run(ctx context.Context) {
	stream := NewOrderedStream(w.snap.Height() + 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case p, ok := <-w.in:
			if !ok {
				return
			}
			for _, ready := range stream.Push(p) {
				if !w.importOne(ready) {
					return
				}
			}
		}
	}
}

// importOne returns false if the worker should stop running entirely
// (a fatal persistence failure).
func (w *BlockImportWorker) importOne(p *chain.BlockProposal) bool {
	backup := w.snap.Clone()
	if err := pipeline.VerifyBlock(w.snap, w.checker, w.driver, p, w.metrics, w.log); err != nil {
		w.log.WithError(err).WithField("height", p.Block.Header.Height).Warn("rejecting block proposal")
		*w.snap = *backup
		return true
	}
	if w.persist != nil {
		if err := w.persist(w.snap); err != nil {
			w.log.WithError(err).WithField("height", p.Block.Header.Height).Error("persistence failed, terminating import worker")
			*w.snap = *backup
			_ = w.Shutdown()
			return false
		}
	}
	return true
}

// Shutdown idempotently stops the worker, persisting its current
// snapshot one last time. A second call returns AlreadyShutdown.
func (w *BlockImportWorker) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&w.shutdown, 0, 1) {
		return chainerr.AlreadyShutdown
	}
	close(w.done)
	if w.persist != nil {
		_ = w.persist(w.snap)
	}
	return nil
}
