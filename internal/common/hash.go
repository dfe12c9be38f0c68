package common

import "golang.org/x/crypto/blake2b"

// Blake2bSum is the single hashing primitive used throughout the trie,
// state and block layers. Every node hash, account hash and block digest
// in SlimChain is blake2b-256 over a canonical byte encoding.
func Blake2bSum(parts ...[]byte) H256 {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a bad key, and we never pass one.
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out H256
	copy(out[:], h.Sum(nil))
	return out
}
