package rpc

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"slimchain/internal/common"
)

func TestSignVerifyTxRequest(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	req := CallTxRequest{Nonce: common.NewNonce(1), Address: common.BytesToAddress([]byte{0xf}), Data: []byte("data")}

	signed := SignTxRequest(req, priv)
	if !signed.Verify() {
		t.Fatalf("expected signature to verify")
	}
	if string(signed.PubKey) != string(pub) {
		t.Fatalf("pubkey mismatch")
	}

	tampered := signed
	tampered.Input = CallTxRequest{Nonce: common.NewNonce(2), Address: req.Address, Data: req.Data}
	if tampered.Verify() {
		t.Fatalf("expected tampered request to fail verification")
	}
}

func TestSignedTxRequestJSONRoundTrip(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	req := CreateTxRequest{Nonce: common.NewNonce(0), Code: []byte{0x60, 0x00}}
	signed := SignTxRequest(req, priv)

	data, err := json.Marshal(signed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded SignedTxRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Verify() {
		t.Fatalf("expected decoded request to verify")
	}
	create, ok := decoded.Input.(CreateTxRequest)
	if !ok {
		t.Fatalf("expected CreateTxRequest, got %T", decoded.Input)
	}
	if string(create.Code) != string(req.Code) {
		t.Fatalf("code mismatch after round trip")
	}
}

func TestCallerAddressDeterministic(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	req := CallTxRequest{Nonce: common.NewNonce(1), Address: common.Address{}, Data: nil}
	signed := SignTxRequest(req, priv)

	a1 := signed.CallerAddress()
	a2 := signed.CallerAddress()
	if a1 != a2 {
		t.Fatalf("expected deterministic caller address")
	}
}
