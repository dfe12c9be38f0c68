// Package worker implements C9: the long-running goroutines that drive
// the propose/verify/commit pipeline — BlockImportWorker consuming
// incoming block proposals in height order, BlockProposalWorker draining
// incoming transaction proposals into new blocks — plus the shutdown
// contract both share.
package worker

import (
	"slimchain/internal/chain"
	"slimchain/internal/common"
)

// OrderedStream buffers block proposals that arrive out of height order
// (a real risk over a gossip network) and releases them only once every
// earlier height has already been released, matching spec.md §5's
// ordering guarantee that verify_block always sees heights in sequence.
type OrderedStream struct {
	next    common.BlockHeight
	pending map[common.BlockHeight]*chain.BlockProposal
}

// NewOrderedStream starts expecting height next first.
func NewOrderedStream(next common.BlockHeight) *OrderedStream {
	return &OrderedStream{next: next, pending: map[common.BlockHeight]*chain.BlockProposal{}}
}

// Push records p and returns every proposal (possibly more than one,
// possibly p itself) that is now ready to process in order. Proposals at
// or below the already-released height are dropped as stale duplicates.
func (s *OrderedStream) Push(p *chain.BlockProposal) []*chain.BlockProposal {
	h := p.Block.Header.Height
	if h < s.next {
		return nil
	}
	s.pending[h] = p

	var ready []*chain.BlockProposal
	for {
		next, ok := s.pending[s.next]
		if !ok {
			break
		}
		ready = append(ready, next)
		delete(s.pending, s.next)
		s.next++
	}
	return ready
}
