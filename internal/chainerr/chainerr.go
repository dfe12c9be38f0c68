// Package chainerr defines the error taxonomy shared across SlimChain's
// transaction pipeline. Every public entry point in the pipeline either
// recovers from one of these kinds (discards a tx, drops a block, retries)
// or treats it as fatal; nothing else is allowed to escape as a bare error.
package chainerr

import "errors"

// Sentinel error kinds. Use errors.Is against these after wrapping with
// fmt.Errorf("...: %w", Kind) so call sites retain context while callers
// can still classify the failure.
var (
	// InvalidProof means a partial-trie hash did not match the hash it was
	// expected to cover. Recovered locally by rejecting the tx or block.
	InvalidProof = errors.New("invalid proof")

	// WriteConflict means a trie diff touches a leaf two fork tries
	// disagree on. Recovered locally by rejecting the tx or block.
	WriteConflict = errors.New("write-write conflict")

	// NonceMismatch means a tx's declared caller nonce does not match the
	// nonce observed in the snapshot it claims to be executed against.
	NonceMismatch = errors.New("nonce mismatch")

	// BadSignature means tx.verify_sig() failed.
	BadSignature = errors.New("bad signature")

	// StaleOrFutureHeight means a tx or block falls outside the window of
	// heights the snapshot currently tracks.
	StaleOrFutureHeight = errors.New("stale or future height")

	// ConsensusViolation means a PoW target was not met or a block header
	// invariant (height/prev-hash/timestamp ordering) failed.
	ConsensusViolation = errors.New("consensus violation")

	// RaftForwardToLeader is returned to a non-leader client that received
	// a client-write; it is not fatal, the caller re-routes to the leader.
	RaftForwardToLeader = errors.New("forward to raft leader")

	// RaftApplyError means the state machine's apply step failed (for
	// example the commit write failed); Raft will retry apply.
	RaftApplyError = errors.New("raft apply error")

	// PersistenceError means a KV write failed. It is fatal for the
	// worker that hit it: the worker best-effort persists its backup
	// snapshot meta and then terminates.
	PersistenceError = errors.New("persistence error")

	// AlreadyShutdown guards against a worker being shut down twice.
	AlreadyShutdown = errors.New("already shutdown")

	// NotFound marks a missing KV key. Storage APIs return (nil, nil) for
	// a missing key; this sentinel is only used where a caller has
	// explicitly annotated a lookup as required.
	NotFound = errors.New("not found")
)

// DiscardReason names why propose_block/verify_block rejected a tx without
// touching the snapshot; it is the payload of the discard_tx metrics event
// that forms the audit trail for rejected transactions (spec §7).
type DiscardReason string

const (
	ReasonOutdated        DiscardReason = "outdated_height"
	ReasonFutureHeight    DiscardReason = "future_height"
	ReasonConflict        DiscardReason = "conflict"
	ReasonWrongStateRoot  DiscardReason = "wrong_state_root"
	ReasonBadSignature    DiscardReason = "bad_signature"
	ReasonInvalidWriteSet DiscardReason = "invalid_write_set"
)
