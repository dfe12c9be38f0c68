// Package common holds the primitive types shared by every layer of
// SlimChain's transaction pipeline: digests, addresses, state words, block
// heights and shard membership. Nothing in this package depends on any
// other SlimChain package, so it is safe for trie, state, accessmap and
// pipeline code alike to import it.
package common

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// H256 is a 32-byte digest: a trie-node hash, a block hash, or a state
// value/word.
type H256 [32]byte

// ZeroH256 is the hash of an empty trie position.
var ZeroH256 = H256{}

// IsZero reports whether h is the all-zero digest.
func (h H256) IsZero() bool { return h == ZeroH256 }

func (h H256) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a fresh copy of the digest's bytes.
func (h H256) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, h[:])
	return b
}

// BigInt interprets h as a big-endian unsigned integer, used by the PoW
// target check.
func (h H256) BigInt() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// MarshalText encodes h as a hex string, the form it takes in RPC
// payloads, the Raft log, and as a JSON object key (encoding/json only
// accepts encoding.TextMarshaler map keys, not json.Marshaler ones, and
// H256 is used as a map key in the partial-trie wire format).
func (h H256) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText decodes a hex string produced by MarshalText.
func (h *H256) UnmarshalText(data []byte) error {
	b, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("common: decoding H256: %w", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("common: H256 must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// BytesToH256 left-pads or truncates b to 32 bytes.
func BytesToH256(b []byte) H256 {
	var h H256
	if len(b) >= 32 {
		copy(h[:], b[len(b)-32:])
	} else {
		copy(h[32-len(b):], b)
	}
	return h
}

// Address is a 20-byte account identifier.
type Address [20]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

func (a Address) Bytes() []byte {
	b := make([]byte, 20)
	copy(b, a[:])
	return b
}

// MarshalText encodes a as a hex string — Address is used as a JSON
// object key (the access map's per-block read/write sets), which
// requires encoding.TextMarshaler rather than json.Marshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText decodes a hex string produced by MarshalText.
func (a *Address) UnmarshalText(data []byte) error {
	b, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("common: decoding Address: %w", err)
	}
	if len(b) != 20 {
		return fmt.Errorf("common: Address must be 20 bytes, got %d", len(b))
	}
	copy(a[:], b)
	return nil
}

// BytesToAddress left-pads or truncates b to 20 bytes.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) >= 20 {
		copy(a[:], b[len(b)-20:])
	} else {
		copy(a[20-len(b):], b)
	}
	return a
}

// StateKey and StateValue are 32-byte words stored in a per-account state
// trie.
type (
	StateKey   = H256
	StateValue = H256
)

// Nonce is a 256-bit account counter, represented as a big.Int so it never
// silently wraps.
type Nonce struct {
	v *big.Int
}

// NewNonce wraps n as a Nonce.
func NewNonce(n uint64) Nonce { return Nonce{v: new(big.Int).SetUint64(n)} }

// NonceFromBigInt wraps v as a Nonce, used by wire codecs that carry a
// nonce as a *big.Int (RLP's native big-integer type) rather than JSON's
// decimal string.
func NonceFromBigInt(v *big.Int) Nonce {
	if v == nil {
		return ZeroNonce
	}
	return Nonce{v: new(big.Int).Set(v)}
}

// ZeroNonce is the nonce of a never-touched account.
var ZeroNonce = Nonce{v: new(big.Int)}

func (n Nonce) Int() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return n.v
}

func (n Nonce) Equal(o Nonce) bool { return n.Int().Cmp(o.Int()) == 0 }

func (n Nonce) Next() Nonce { return Nonce{v: new(big.Int).Add(n.Int(), big.NewInt(1))} }

func (n Nonce) String() string { return n.Int().String() }

// Bytes returns n as a 32-byte big-endian word, the form it takes inside
// an account hash or a wire-encoded transaction.
func (n Nonce) Bytes() []byte {
	b := n.Int().Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// MarshalJSON encodes n as its decimal string — a Nonce's backing
// *big.Int has no exported fields, so the default struct encoding would
// silently lose it.
func (n Nonce) MarshalJSON() ([]byte, error) { return json.Marshal(n.Int().String()) }

// UnmarshalJSON decodes a decimal string produced by MarshalJSON.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("common: invalid nonce %q", s)
	}
	n.v = v
	return nil
}

// Code is an account's opaque bytecode.
type Code []byte

func (c Code) Hash() H256 {
	if len(c) == 0 {
		return ZeroH256
	}
	return Blake2bSum(c)
}

// BlockHeight is a monotonically increasing block number, genesis is 0.
type BlockHeight uint64

func (h BlockHeight) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(h))
	return b[:]
}

// ShardID identifies the subset of addresses a storage node owns: the
// addresses whose low-order bits satisfy `addr mod total == id`.
type ShardID struct {
	ID    uint64
	Total uint64
}

func (s ShardID) String() string { return fmt.Sprintf("%d/%d", s.ID, s.Total) }

// BelongsToShard reports whether addr is owned by shard s, following the
// membership predicate of spec §3: addr's low-order 8 bytes, taken as a
// big-endian uint64, mod Total must equal ID. Total==0 or Total==1 (the
// unsharded, single-shard case) always returns true.
func BelongsToShard(addr Address, s ShardID) bool {
	if s.Total == 0 || s.Total == 1 {
		return true
	}
	low := binary.BigEndian.Uint64(addr[12:20])
	return low%s.Total == s.ID
}
