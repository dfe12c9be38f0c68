// Package pow implements the proof-of-work ConsensusDriver: difficulty
// retargeting, the brute-force nonce search that mints a block, and the
// target check that verifies one. Mirrors the shape of Synnergy's
// SealMainBlockPOW/retargetDifficulty (core/consensus.go), generalized to
// SlimChain's per-block retarget (rather than a windowed one) and to
// blake2b as the sole hash primitive.
package pow

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
)

// retargetIntervalMs is the target spacing between blocks; the difficulty
// adjustment pulls toward this every block.
const retargetIntervalMs = 10_000

// maxAdjustment caps how hard a single retarget step can swing, so one
// wildly early or late block can't knock difficulty to zero or overflow it.
const maxAdjustment = -99

// ComputeDiff derives the next block's difficulty from the previous one,
// nudging it up when the previous block arrived faster than
// retargetIntervalMs and down when it arrived slower:
//
//	next = prev + (prev/2048) * clamp(1 - (ts-prevTs)/retargetIntervalMs, -99, +inf)
//
// matching spec.md §8: init_diff=1,000,000, a 5s gap retargets to
// 1,000,488, a 30s gap retargets to 999,024.
func ComputeDiff(tsMs, prevTsMs int64, prevDiff uint64) uint64 {
	deltaMs := tsMs - prevTsMs
	adjustment := int64(1) - deltaMs/retargetIntervalMs
	if adjustment < maxAdjustment {
		adjustment = maxAdjustment
	}
	step := int64(prevDiff / 2048)
	next := int64(prevDiff) + step*adjustment
	if next < 1 {
		next = 1
	}
	return uint64(next)
}

// target returns the largest block hash, read as a 256-bit unsigned
// integer, that satisfies diff: maxUint256/diff.
func target(diff uint64) *uint256.Int {
	if diff == 0 {
		diff = 1
	}
	max := new(uint256.Int).Not(uint256.NewInt(0))
	return new(uint256.Int).Div(max, uint256.NewInt(diff))
}

// NonceIsValid reports whether blockHash, interpreted as a big-endian
// 256-bit integer, falls at or below diff's target.
func NonceIsValid(blockHash common.H256, diff uint64) bool {
	h := new(uint256.Int).SetBytes(blockHash[:])
	return h.Cmp(target(diff)) <= 0
}

// sealHash is what the nonce search actually hashes: the header with its
// nonce field excluded (since the nonce is what's being searched for) plus
// the candidate nonce appended.
func sealHash(header chain.BlockHeader, nonce uint64) common.H256 {
	var nb [8]byte
	for i := 0; i < 8; i++ {
		nb[i] = byte(nonce >> (8 * (7 - i)))
	}
	withoutNonce := header.Hash()
	return common.Blake2bSum(withoutNonce[:], nb[:])
}

// Driver implements pipeline.ConsensusDriver for proof-of-work chains.
// InitDiff seeds the very first block after genesis, since genesis has no
// PoWData of its own to retarget from.
type Driver struct {
	InitDiff uint64
}

// NewDriver builds a PoW driver seeded with initDiff.
func NewDriver(initDiff uint64) *Driver {
	return &Driver{InitDiff: initDiff}
}

func prevPoWData(prev chain.Block) (chain.PoWData, bool) {
	d, ok := prev.Consensus.(chain.PoWData)
	return d, ok
}

// NewBlock retargets difficulty off of prev, then brute-forces nonce
// values until sealHash(header, nonce) meets the retargeted target,
// returning header unchanged (PoW doesn't need to revise height, prev
// hash, tx root or state root — only mints the nonce) alongside the
// PoWData consensus payload.
func (d *Driver) NewBlock(ctx context.Context, header chain.BlockHeader, prev chain.Block) (chain.BlockHeader, chain.ConsensusData, error) {
	diff := d.InitDiff
	if prevData, ok := prevPoWData(prev); ok {
		diff = ComputeDiff(header.TimestampMs, prev.Header.TimestampMs, prevData.Difficulty)
	}

	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return header, nil, ctx.Err()
		default:
		}
		h := sealHash(header, nonce)
		if NonceIsValid(h, diff) {
			return header, chain.PoWData{Difficulty: diff, Nonce: nonce}, nil
		}
		nonce++
	}
}

// VerifyConsensus recomputes the expected difficulty from prev and checks
// that data's nonce actually meets it.
func (d *Driver) VerifyConsensus(header chain.BlockHeader, data chain.ConsensusData, prev chain.Block) error {
	powData, ok := data.(chain.PoWData)
	if !ok {
		return fmt.Errorf("pow: verify_consensus: %w: consensus data is not PoWData", chainerr.ConsensusViolation)
	}

	expectedDiff := d.InitDiff
	if prevData, ok := prevPoWData(prev); ok {
		expectedDiff = ComputeDiff(header.TimestampMs, prev.Header.TimestampMs, prevData.Difficulty)
	}
	if powData.Difficulty != expectedDiff {
		return fmt.Errorf("pow: verify_consensus: %w: difficulty %d != expected %d", chainerr.ConsensusViolation, powData.Difficulty, expectedDiff)
	}

	h := sealHash(header, powData.Nonce)
	if !NonceIsValid(h, powData.Difficulty) {
		return fmt.Errorf("pow: verify_consensus: %w: nonce %d does not meet difficulty %d", chainerr.ConsensusViolation, powData.Nonce, powData.Difficulty)
	}
	return nil
}
