package rpc

import (
	"encoding/json"
	"fmt"

	"slimchain/internal/common"
)

type txRequestJSON struct {
	Type    string         `json:"type"`
	Nonce   common.Nonce   `json:"nonce"`
	Code    common.Code    `json:"code,omitempty"`
	Address common.Address `json:"address,omitempty"`
	Data    []byte         `json:"data,omitempty"`
}

func marshalTxRequest(req TxRequest) ([]byte, error) {
	switch r := req.(type) {
	case CreateTxRequest:
		return json.Marshal(txRequestJSON{Type: "create", Nonce: r.Nonce, Code: r.Code})
	case CallTxRequest:
		return json.Marshal(txRequestJSON{Type: "call", Nonce: r.Nonce, Address: r.Address, Data: r.Data})
	default:
		return nil, fmt.Errorf("rpc: marshaling tx request: %w: %T", ErrUnknownTxRequestType, req)
	}
}

func unmarshalTxRequest(data []byte) (TxRequest, error) {
	var w txRequestJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("rpc: decoding tx request: %w", err)
	}
	switch w.Type {
	case "create":
		return CreateTxRequest{Nonce: w.Nonce, Code: w.Code}, nil
	case "call":
		return CallTxRequest{Nonce: w.Nonce, Address: w.Address, Data: w.Data}, nil
	default:
		return nil, fmt.Errorf("rpc: decoding tx request: %w: %q", ErrUnknownTxRequestType, w.Type)
	}
}

// MarshalJSON implements json.Marshaler for SignedTxRequest, tagging its
// polymorphic Input field the same way chain.Block tags its Consensus
// field.
func (s SignedTxRequest) MarshalJSON() ([]byte, error) {
	input, err := marshalTxRequest(s.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Input     json.RawMessage `json:"input"`
		PubKey    []byte          `json:"pub_key"`
		Signature []byte          `json:"signature"`
	}{Input: input, PubKey: s.PubKey, Signature: s.Signature})
}

// UnmarshalJSON implements json.Unmarshaler for SignedTxRequest.
func (s *SignedTxRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		Input     json.RawMessage `json:"input"`
		PubKey    []byte          `json:"pub_key"`
		Signature []byte          `json:"signature"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("rpc: decoding signed tx request: %w", err)
	}
	input, err := unmarshalTxRequest(w.Input)
	if err != nil {
		return err
	}
	s.Input = input
	s.PubKey = w.PubKey
	s.Signature = w.Signature
	return nil
}
