// Package rpc implements C12's HTTP boundary: the client-facing
// tx/admin endpoints every node exposes, and the Raft-only node-to-node
// endpoints a Raft-backed deployment uses in place of hashicorp/raft's
// built-in TCP transport.
package rpc

import (
	"crypto/ed25519"
	"fmt"

	"slimchain/internal/common"
)

// TxRequest is the unsigned intent a client submits before any node has
// executed it — distinct from chain.Tx, which only exists once a storage
// node has run the request against its state and recorded read/write
// evidence. Mirrors the original design's Create/Call split: a Create
// request deploys fresh code, a Call request invokes code already
// deployed at an address.
type TxRequest interface {
	isTxRequest()
	RequestNonce() common.Nonce
	digestParts() [][]byte
}

// CreateTxRequest deploys code as a new contract account.
type CreateTxRequest struct {
	Nonce common.Nonce
	Code  common.Code
}

func (CreateTxRequest) isTxRequest()                  {}
func (r CreateTxRequest) RequestNonce() common.Nonce  { return r.Nonce }
func (r CreateTxRequest) digestParts() [][]byte {
	return [][]byte{[]byte("Create"), r.Nonce.Bytes(), r.Code}
}

// CallTxRequest invokes already-deployed code at Address with Data as
// input.
type CallTxRequest struct {
	Nonce   common.Nonce
	Address common.Address
	Data    []byte
}

func (CallTxRequest) isTxRequest()                 {}
func (r CallTxRequest) RequestNonce() common.Nonce { return r.Nonce }
func (r CallTxRequest) digestParts() [][]byte {
	return [][]byte{[]byte("Call"), r.Nonce.Bytes(), r.Address.Bytes(), r.Data}
}

// Digest is the request's content address, signed over directly (the
// caller's address is derived from the signing key, not carried
// alongside the request, so there is nothing else the signature needs to
// cover).
func Digest(req TxRequest) common.H256 {
	return common.Blake2bSum(req.digestParts()...)
}

// SignedTxRequest is what a client actually submits: a TxRequest plus an
// ed25519 signature over its digest and the public key that produced it.
type SignedTxRequest struct {
	Input     TxRequest
	PubKey    ed25519.PublicKey
	Signature []byte
}

// SignTxRequest signs req with priv.
func SignTxRequest(req TxRequest, priv ed25519.PrivateKey) SignedTxRequest {
	digest := Digest(req)
	return SignedTxRequest{
		Input:     req,
		PubKey:    priv.Public().(ed25519.PublicKey),
		Signature: ed25519.Sign(priv, digest[:]),
	}
}

// Verify checks s.Signature against s.PubKey over s.Input's digest.
func (s SignedTxRequest) Verify() bool {
	if len(s.PubKey) != ed25519.PublicKeySize {
		return false
	}
	digest := Digest(s.Input)
	return ed25519.Verify(s.PubKey, digest[:], s.Signature)
}

// CallerAddress derives the caller's address from the signing key: the
// first 20 bytes of blake2b(pubkey), the same derivation every other
// address in the system uses for content addressing.
func (s SignedTxRequest) CallerAddress() common.Address {
	h := common.Blake2bSum(s.PubKey)
	return common.BytesToAddress(h.Bytes()[:20])
}

// ID is this request's dedup key: blake2b(caller_address || input_digest).
func (s SignedTxRequest) ID() common.H256 {
	caller := s.CallerAddress()
	digest := Digest(s.Input)
	return common.Blake2bSum(caller.Bytes(), digest.Bytes())
}

// ErrUnknownTxRequestType is returned by the JSON codec for a TxRequest
// variant tag it does not recognize.
var ErrUnknownTxRequestType = fmt.Errorf("rpc: unknown tx request type")
