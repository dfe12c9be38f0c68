package pipeline

import (
	"context"
	"crypto/ed25519"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/snapshot"
	"slimchain/internal/state"
	"slimchain/internal/txexec"
	"slimchain/internal/txtrie"
)

// passthroughDriver stands in for a real consensus adapter in tests: it
// mints the header unchanged and accepts any block.
type passthroughDriver struct{}

func (passthroughDriver) NewBlock(_ context.Context, header chain.BlockHeader, _ chain.Block) (chain.BlockHeader, chain.ConsensusData, error) {
	return header, chain.RaftData{}, nil
}

func (passthroughDriver) VerifyConsensus(chain.BlockHeader, chain.ConsensusData, chain.Block) error {
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestProposeThenVerifyRoundTrip(t *testing.T) {
	view := state.NewMapStateView()
	caller := common.BytesToAddress([]byte{0x01})
	key := common.BytesToH256([]byte{0x07})

	tx, err := txexec.Execute(view, common.ZeroH256, 0, caller, common.ZeroNonce, []byte("hello"), func(ctx *txexec.Adapter) {
		ctx.SetValue(caller, key, common.BytesToH256([]byte{0x42}))
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	priv, _, genErr := ed25519.GenerateKey(nil)
	if genErr != nil {
		t.Fatalf("generate key: %v", genErr)
	}
	txexec.Sign(tx, priv)

	ws, err := txtrie.Build(view, common.ZeroH256, map[common.Address]txtrie.WriteKeys{
		caller: {Keys: []common.StateKey{key}},
	})
	if err != nil {
		t.Fatalf("build write-set trie: %v", err)
	}
	tp := &chain.TxProposal{Tx: tx, WriteTrie: ws}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	log := testLogger()
	driver := passthroughDriver{}

	proposerSnap := snapshot.Genesis(4, 1000)
	incoming := make(chan *chain.TxProposal, 1)
	incoming <- tp
	close(incoming)

	cfg := ProposeConfig{MinTxs: 0, MaxTxs: 10, MaxBlockInterval: 0}
	proposal, err := ProposeBlock(context.Background(), proposerSnap, accessmap.Optimistic{}, cfg, driver, incoming, metrics, log)
	if err != nil {
		t.Fatalf("propose_block: %v", err)
	}
	if proposal.Block.Header.Height != 1 {
		t.Fatalf("expected height 1, got %d", proposal.Block.Header.Height)
	}
	if proposerSnap.Height() != 1 {
		t.Fatalf("expected proposer snapshot to advance to height 1, got %d", proposerSnap.Height())
	}

	verifierSnap := snapshot.Genesis(4, 1000)
	if err := VerifyBlock(verifierSnap, accessmap.Optimistic{}, driver, proposal, metrics, log); err != nil {
		t.Fatalf("verify_block: %v", err)
	}
	if verifierSnap.Height() != 1 {
		t.Fatalf("expected verifier snapshot to advance to height 1, got %d", verifierSnap.Height())
	}
	if verifierSnap.Root != proposerSnap.Root {
		t.Fatalf("verifier state root %s != proposer state root %s", verifierSnap.Root, proposerSnap.Root)
	}
}

func TestVerifyBlockRejectsBadSignature(t *testing.T) {
	view := state.NewMapStateView()
	caller := common.BytesToAddress([]byte{0x02})

	tx, err := txexec.Execute(view, common.ZeroH256, 0, caller, common.ZeroNonce, nil, func(ctx *txexec.Adapter) {})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	priv, _, _ := ed25519.GenerateKey(nil)
	txexec.Sign(tx, priv)
	tx.Signature[0] ^= 0xff // corrupt

	block := chain.Block{
		Header: chain.BlockHeader{Height: 1, PrevHash: snapshot.Genesis(4, 1000).LatestBlock().Digest(), TimestampMs: 2000},
		Txs:    chain.BlockTxList{Full: []*chain.Tx{tx}},
	}
	block.Header.TxRoot = block.Txs.Digest()
	proposal := &chain.BlockProposal{Block: block, Txs: []*chain.Tx{tx}}

	verifierSnap := snapshot.Genesis(4, 1000)
	metrics := NewMetrics(prometheus.NewRegistry())
	err = VerifyBlock(verifierSnap, accessmap.Optimistic{}, passthroughDriver{}, proposal, metrics, testLogger())
	if err == nil {
		t.Fatalf("expected verify_block to reject a tx with a bad signature")
	}
}
