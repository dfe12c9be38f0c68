// Package pipeline implements C8: propose_block, verify_block and
// commit_block, the three phases every block goes through whether it
// originates locally (a miner proposing) or arrives from the network (a
// client or Raft follower verifying).
package pipeline

import (
	"fmt"

	"slimchain/internal/chain"
	"slimchain/internal/common"
	"slimchain/internal/partial"
	"slimchain/internal/state"
	"slimchain/internal/txtrie"
)

// addrFold accumulates one address's account fields across every tx in a
// block that touches it, in tx order.
type addrFold struct {
	nonce     common.Nonce
	codeHash  common.H256
	stateTrie partial.Child
}

// FoldAccountWrites replays txs' write evidence in order against the
// pre-write evidence carried in evidence (one AccountWriteEvidence per
// address, from the earliest tx in the block to touch it), producing the
// AccountWrite set apply_writes needs. Nonce and code-hash writes are
// absolute assignments; state values are folded through
// txtrie.ApplyStateWrites one tx at a time so later writes in the same
// block see earlier ones.
func FoldAccountWrites(txs []*chain.Tx, evidence map[common.Address]txtrie.AccountWriteEvidence) ([]txtrie.AccountWrite, error) {
	folds := map[common.Address]*addrFold{}
	var order []common.Address

	for _, tx := range txs {
		for addr, w := range tx.Writes {
			f, ok := folds[addr]
			if !ok {
				f = &addrFold{}
				if ev, found := evidence[addr]; found {
					f.nonce, f.codeHash, f.stateTrie = ev.Nonce, ev.CodeHash, ev.StateTrie
				}
				folds[addr] = f
				order = append(order, addr)
			}
			if w.ResetValues {
				f.stateTrie = partial.AbsentChild()
			}
			if len(w.Values) > 0 {
				svs := make([]txtrie.StateWrite, 0, len(w.Values))
				for k, v := range w.Values {
					svs = append(svs, txtrie.StateWrite{Addr: addr, Key: k, Value: v})
				}
				nc, err := txtrie.ApplyStateWrites(f.stateTrie, svs)
				if err != nil {
					return nil, fmt.Errorf("pipeline: folding state writes for %s: %w", addr, err)
				}
				f.stateTrie = nc
			}
			if w.Nonce != nil {
				f.nonce = *w.Nonce
			}
			if w.Code != nil {
				f.codeHash = *w.Code
			}
		}
	}

	out := make([]txtrie.AccountWrite, 0, len(order))
	for _, addr := range order {
		f := folds[addr]
		out = append(out, txtrie.AccountWrite{
			Addr:    addr,
			Account: state.AccountData{Nonce: f.nonce, CodeHash: f.codeHash, AccStateRoot: f.stateTrie.Hash()},
		})
	}
	return out, nil
}

// MergeEvidence unions the per-tx-proposal account write evidence into a
// single map, keeping the earliest (first encountered, in proposal
// order) evidence for any address touched by more than one transaction —
// that earliest evidence is the one genuinely taken against the block's
// starting state root.
func MergeEvidence(proposals []*chain.TxProposal) map[common.Address]txtrie.AccountWriteEvidence {
	out := map[common.Address]txtrie.AccountWriteEvidence{}
	for _, tp := range proposals {
		if tp.WriteTrie == nil {
			continue
		}
		for addr, ev := range tp.WriteTrie.Accounts {
			if _, ok := out[addr]; !ok {
				out[addr] = ev
			}
		}
	}
	return out
}
