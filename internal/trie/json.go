package trie

import (
	"encoding/json"
	"fmt"

	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// nodeJSON is the wire shape Node (de)serializes through when a node
// crosses a process boundary — durable storage, a Raft snapshot, an RPC
// payload. Unlike internal/partial's Child/Node, a full-trie Leaf's
// Value is itself an interface (AccountData at the account-trie level,
// RawValue at a per-account state-trie level), so decoding needs a
// caller-supplied ValueDecoder rather than a single fixed tag.
type nodeJSON struct {
	Type      string            `json:"type"`
	Path      *nibble.NibbleBuf `json:"path,omitempty"`
	Value     json.RawMessage   `json:"value,omitempty"`
	ChildHash common.H256       `json:"child_hash,omitempty"`
	Children  []common.H256     `json:"children,omitempty"`
}

// ValueDecoder rebuilds a Leaf's Value from its marshaled form. Which
// decoder applies depends on which trie is being read, not on anything
// recorded in the node itself — state.DecodeAccountData for the
// account trie, DecodeRawValue for a state trie.
type ValueDecoder func(data []byte) (Value, error)

// DecodeRawValue is the ValueDecoder for state-trie leaves: RawValue is
// already just a byte string, so this is plain JSON bytes decoding.
func DecodeRawValue(data []byte) (Value, error) {
	var b []byte
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("trie: decoding raw value: %w", err)
	}
	return RawValue(b), nil
}

// EncodeNode serializes n for durable storage. The Value held by a Leaf
// marshals through its own json.Marshaler/struct encoding (AccountData's
// fields, or RawValue's byte-slice-to-base64 default), so this side
// never needs to know which trie level n came from.
func EncodeNode(n Node) ([]byte, error) {
	switch v := n.(type) {
	case *Leaf:
		valData, err := json.Marshal(v.Value)
		if err != nil {
			return nil, fmt.Errorf("trie: encoding leaf value: %w", err)
		}
		path := v.Path.Own()
		return json.Marshal(nodeJSON{Type: "leaf", Path: &path, Value: valData})
	case *Extension:
		path := v.Path.Own()
		return json.Marshal(nodeJSON{Type: "extension", Path: &path, ChildHash: v.ChildHash})
	case *Branch:
		children := make([]common.H256, len(v.Children))
		copy(children, v.Children[:])
		return json.Marshal(nodeJSON{Type: "branch", Children: children})
	default:
		return nil, fmt.Errorf("trie: encoding: unknown node type %T", n)
	}
}

// DecodeNode is EncodeNode's inverse; decodeValue resolves a leaf's
// Value, since the node itself carries no record of which trie level it
// belongs to.
func DecodeNode(data []byte, decodeValue ValueDecoder) (Node, error) {
	var nj nodeJSON
	if err := json.Unmarshal(data, &nj); err != nil {
		return nil, fmt.Errorf("trie: decoding node: %w", err)
	}
	switch nj.Type {
	case "leaf":
		if nj.Path == nil {
			return nil, fmt.Errorf("trie: decoding leaf: missing path")
		}
		val, err := decodeValue(nj.Value)
		if err != nil {
			return nil, err
		}
		return &Leaf{Path: nj.Path.View(), Value: val}, nil
	case "extension":
		if nj.Path == nil {
			return nil, fmt.Errorf("trie: decoding extension: missing path")
		}
		return &Extension{Path: nj.Path.View(), ChildHash: nj.ChildHash}, nil
	case "branch":
		if len(nj.Children) != 16 {
			return nil, fmt.Errorf("trie: decoding branch: need 16 children, got %d", len(nj.Children))
		}
		var b Branch
		copy(b.Children[:], nj.Children)
		return &b, nil
	default:
		return nil, fmt.Errorf("trie: decoding: unknown node type %q", nj.Type)
	}
}
