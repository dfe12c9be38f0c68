package main

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/rpc"
	"slimchain/internal/state"
	"slimchain/internal/txexec"
	"slimchain/internal/txtrie"
	"slimchain/internal/worker"
)

// localRouter implements rpc.ShardRouter for a single-process deployment
// acting as its own storage node: it runs the submitted tx request
// against its own full state view, the way a real storage node runs a
// tx request that arrived off the network, then hands the executed,
// evidence-bearing Tx on to the proposal worker. Contract semantics
// (spec.md scopes the VM out of this layer) boil down to the generic
// nonce-bump + optional single-slot write Create/Call already expose.
type localRouter struct {
	mu   sync.Mutex
	view *state.MapStateView
	root func() common.H256

	priv     ed25519.PrivateKey
	shard    common.ShardID
	proposer *worker.BlockProposalWorker
	log      *logrus.Entry
}

func newLocalRouter(view *state.MapStateView, root func() common.H256, priv ed25519.PrivateKey, shard common.ShardID, proposer *worker.BlockProposalWorker, log *logrus.Logger) *localRouter {
	return &localRouter{view: view, root: root, priv: priv, shard: shard, proposer: proposer, log: log.WithField("component", "router")}
}

// RouteTxRequest implements rpc.ShardRouter.
func (r *localRouter) RouteTxRequest(signed rpc.SignedTxRequest, shard common.ShardID) error {
	if !signed.Verify() {
		return fmt.Errorf("router: %w", chainerr.BadSignature)
	}
	if shard != r.shard {
		return fmt.Errorf("router: tx request addressed to shard %s, this node owns %s: %w", shard, r.shard, chainerr.NotFound)
	}
	if r.proposer == nil {
		return fmt.Errorf("router: node has no miner role to accept tx proposals: %w", chainerr.AlreadyShutdown)
	}

	caller := signed.CallerAddress()
	accountRoot := r.root()

	r.mu.Lock()
	defer r.mu.Unlock()

	var writeAddr *common.Address
	var writeKey common.StateKey
	var input []byte

	switch req := signed.Input.(type) {
	case rpc.CreateTxRequest:
		input = req.Code
	case rpc.CallTxRequest:
		input = req.Data
		a := req.Address
		writeAddr = &a
		writeKey = common.BytesToH256([]byte("call"))
	default:
		return rpc.ErrUnknownTxRequestType
	}

	nonce := signed.Input.RequestNonce()
	tx, err := txexec.Execute(r.view, accountRoot, 0, caller, nonce, input, func(ctx *txexec.Adapter) {
		if create, ok := signed.Input.(rpc.CreateTxRequest); ok {
			ctx.SetCodeHash(caller, common.Blake2bSum(create.Code))
			return
		}
		if writeAddr != nil {
			ctx.SetValue(*writeAddr, writeKey, common.Blake2bSum(input))
		}
	})
	if err != nil {
		return fmt.Errorf("router: executing tx request: %w", err)
	}
	txexec.Sign(tx, r.priv)

	writes := map[common.Address]txtrie.WriteKeys{}
	if writeAddr != nil {
		writes[*writeAddr] = txtrie.WriteKeys{Keys: []common.StateKey{writeKey}}
	}
	writes[caller] = txtrie.WriteKeys{}

	ws, err := txtrie.Build(r.view, accountRoot, writes)
	if err != nil {
		return fmt.Errorf("router: building write-set trie: %w", err)
	}

	if err := r.proposer.Submit(&chain.TxProposal{Tx: tx, WriteTrie: ws}); err != nil {
		return fmt.Errorf("router: submitting tx proposal: %w", err)
	}
	r.log.WithFields(logrus.Fields{"caller": caller, "nonce": nonce}).Debug("routed tx request into proposal worker")
	return nil
}
