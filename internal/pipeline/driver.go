package pipeline

import (
	"context"

	"slimchain/internal/chain"
)

// ConsensusDriver is the one seam propose_block/verify_block leave open
// for the consensus adapter (C10): minting a block header into a
// consensus-committed one, and checking that a received header/payload
// pair actually satisfies the consensus rule. PoW's driver spends real
// wall-clock time mining inside NewBlock and may revise the header's
// timestamp/nonce; Raft's driver is closer to a pass-through, since
// agreement comes from the replicated log rather than from the header
// itself.
type ConsensusDriver interface {
	// NewBlock mints consensus data for header given prev, the previously
	// committed block (PoW needs prev's difficulty and timestamp for its
	// retarget formula). Returns the (possibly revised — e.g. PoW bumping
	// the timestamp between mining attempts) header actually committed to.
	NewBlock(ctx context.Context, header chain.BlockHeader, prev chain.Block) (chain.BlockHeader, chain.ConsensusData, error)

	// VerifyConsensus checks that header+data satisfies the consensus
	// rule given prev, the previously committed block.
	VerifyConsensus(header chain.BlockHeader, data chain.ConsensusData, prev chain.Block) error
}
