// Package raft implements the Raft-backed ConsensusDriver and FSM: the
// alternative to PoW for a permissioned deployment where membership is
// known in advance and block agreement comes from a replicated log
// instead of a nonce search. Grounded on hashicorp/raft's own FSM
// contract, following the same "replay the committed log into state,
// snapshot to truncate it" shape as the teacher's Ledger.applyBlock /
// Ledger.snapshot / Ledger.RebuildChain (core/ledger.go) — JSON-encode a
// block (or the whole ledger) to durable storage, truncate the log,
// replay on restore.
package raft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	hraft "github.com/hashicorp/raft"
	"github.com/sirupsen/logrus"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/pipeline"
	"slimchain/internal/snapshot"
	"slimchain/internal/txtrie"
)

// wireProposal is the Raft log payload for one committed block: a
// BlockProposal stripped of its Consensus field, since under Raft,
// agreement comes from the replicated log itself rather than from any
// payload stapled to the header.
type wireProposal struct {
	Header   chain.BlockHeader        `json:"header"`
	Txs      []*chain.Tx              `json:"txs"`
	Diff     *txtrie.TxTrieDiff       `json:"diff,omitempty"`
	WriteSet *txtrie.TxWriteSetTrie   `json:"write_set,omitempty"`
}

// EncodeProposal serializes p as a Raft log entry.
func EncodeProposal(p *chain.BlockProposal) ([]byte, error) {
	w := wireProposal{Header: p.Block.Header, Txs: p.Txs, Diff: p.Trie.Diff, WriteSet: p.Trie.WriteSet}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("raft: encoding block proposal: %w", err)
	}
	return data, nil
}

// DecodeProposal is EncodeProposal's inverse.
func DecodeProposal(data []byte) (*chain.BlockProposal, error) {
	var w wireProposal
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("raft: decoding block proposal: %w", err)
	}
	txList := chain.BlockTxList{Full: w.Txs}
	block := chain.Block{Header: w.Header, Consensus: chain.RaftData{}, Txs: txList}
	return &chain.BlockProposal{
		Block: block,
		Txs:   w.Txs,
		Trie:  chain.BlockProposalTrie{Diff: w.Diff, WriteSet: w.WriteSet},
	}, nil
}

// Driver implements pipeline.ConsensusDriver for Raft-replicated chains.
// By the time FSM.Apply runs, hashicorp/raft has already established
// agreement on the log entry's bytes, so there is nothing left for a
// header-level consensus check to do: NewBlock mints the header
// unchanged, VerifyConsensus always succeeds.
type Driver struct{}

func (Driver) NewBlock(_ context.Context, header chain.BlockHeader, _ chain.Block) (chain.BlockHeader, chain.ConsensusData, error) {
	return header, chain.RaftData{}, nil
}

func (Driver) VerifyConsensus(chain.BlockHeader, chain.ConsensusData, chain.Block) error {
	return nil
}

// FSM is the hashicorp/raft state machine every node running under Raft
// drives: FSM.Apply replays the replicated log of block proposals through
// verify_block/commit_block against the node's own bounded Snapshot —
// even under Raft, a node only ever holds a sliding window of recent
// blocks, never a full replica.
type FSM struct {
	mu sync.Mutex

	snap    *snapshot.Snapshot
	checker accessmap.Checker
	driver  pipeline.ConsensusDriver
	metrics *pipeline.Metrics
	log     *logrus.Logger

	lastApplied common.BlockHeight

	// OnCommit, if set, is called after a log entry is successfully
	// verified and folded into snap — on every node in the cluster, not
	// just whichever one proposed it, since agreement only exists once
	// the entry comes back through Apply. A node that also keeps a full
	// (non-bounded) replica of state uses this to replay the same
	// writes into it.
	OnCommit func(chain.Block)
}

// NewFSM wires an FSM around snap. snap.Height() seeds lastApplied, so a
// restart that reloaded snap from durable storage won't re-verify blocks
// it already committed before crashing.
func NewFSM(snap *snapshot.Snapshot, checker accessmap.Checker, metrics *pipeline.Metrics, log *logrus.Logger) *FSM {
	return &FSM{snap: snap, checker: checker, driver: Driver{}, metrics: metrics, log: log, lastApplied: snap.Height()}
}

// Apply implements raft.FSM. It is idempotent: a log entry at or below
// lastApplied is skipped rather than re-verified, covering both a
// restart's log replay and the leader observing its own already-reflected
// proposal come back through the log.
func (f *FSM) Apply(entry *hraft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	proposal, err := DecodeProposal(entry.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", chainerr.RaftApplyError, err)
	}
	if proposal.Block.Header.Height <= f.lastApplied {
		return nil
	}
	backup := f.snap.Clone()
	if err := pipeline.VerifyBlock(f.snap, f.checker, f.driver, proposal, f.metrics, f.log); err != nil {
		*f.snap = *backup
		f.log.WithError(err).WithField("height", proposal.Block.Header.Height).Warn("raft apply: verify_block rejected committed log entry")
		return fmt.Errorf("%w: %v", chainerr.RaftApplyError, err)
	}
	f.lastApplied = proposal.Block.Header.Height
	if f.OnCommit != nil {
		f.OnCommit(proposal.Block)
	}
	return nil
}

// Snapshot implements raft.FSM: it hands off a frozen clone so
// fsmSnapshot.Persist can encode it at its own pace without blocking
// further Apply calls.
func (f *FSM) Snapshot() (hraft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &fsmSnapshot{snap: f.snap.Clone()}, nil
}

// Restore implements raft.FSM, replacing the FSM's state wholesale from a
// previously-persisted snapshot — InstallSnapshot catching up a lagging
// follower, or a local restart.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var persisted snapshot.Persisted
	if err := json.NewDecoder(rc).Decode(&persisted); err != nil {
		return fmt.Errorf("raft: restoring snapshot: %w", err)
	}
	restored := persisted.ToSnapshot()

	f.mu.Lock()
	defer f.mu.Unlock()
	*f.snap = *restored
	f.lastApplied = restored.Height()
	return nil
}

// fsmSnapshot implements raft.FSMSnapshot over a frozen Snapshot clone.
type fsmSnapshot struct {
	snap *snapshot.Snapshot
}

// Persist implements raft.FSMSnapshot.
func (s *fsmSnapshot) Persist(sink hraft.SnapshotSink) error {
	enc := json.NewEncoder(sink)
	if err := enc.Encode(s.snap.ToPersisted()); err != nil {
		sink.Cancel()
		return fmt.Errorf("raft: persisting snapshot: %w", err)
	}
	return sink.Close()
}

// Release implements raft.FSMSnapshot; the frozen clone needs no
// teardown beyond letting the garbage collector reclaim it.
func (s *fsmSnapshot) Release() {}

// Submit replicates proposal through node's log, used as the ForwardFn a
// BlockProposalWorker calls once it has minted a block. Only the leader
// can actually append to the log; off the leader this returns
// RaftForwardToLeader without retrying, and the client-facing RPC layer
// (C12) reports that error as HTTP 307. That response does not name the
// leader; the leader's ID is served separately by the node_rpc/leader_id
// route.
func Submit(node *hraft.Raft, proposal *chain.BlockProposal, timeout time.Duration) error {
	if node.State() != hraft.Leader {
		return chainerr.RaftForwardToLeader
	}
	data, err := EncodeProposal(proposal)
	if err != nil {
		return err
	}
	future := node.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if err == hraft.ErrNotLeader || err == hraft.ErrLeadershipLost {
			return chainerr.RaftForwardToLeader
		}
		return fmt.Errorf("%w: %v", chainerr.RaftApplyError, err)
	}
	if fsmErr, ok := future.Response().(error); ok && fsmErr != nil {
		return fsmErr
	}
	return nil
}
