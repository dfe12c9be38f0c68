package partial

import (
	"encoding/json"
	"fmt"

	"slimchain/internal/common"
	"slimchain/internal/nibble"
)

// childJSON/nodeJSON are the wire shapes Child/Node marshal through: the
// interface-typed Node field can't round-trip through default struct
// encoding, so Child and Diff carry their own (Un)MarshalJSON built on
// these tagged-union structs. This is what lets a TxWriteSetTrie/
// TxTrieDiff travel through the Raft log (and, later, an RPC payload)
// as plain JSON.
type childJSON struct {
	Kind Kind      `json:"kind"`
	Hash common.H256 `json:"hash,omitempty"`
	Node *nodeJSON `json:"node,omitempty"`
}

type nodeJSON struct {
	Type      string            `json:"type"`
	Path      *nibble.NibbleBuf `json:"path,omitempty"`
	ValueHash common.H256       `json:"value_hash,omitempty"`
	Child     *childJSON        `json:"child,omitempty"`
	Children  []*childJSON      `json:"children,omitempty"`
}

func toChildJSON(c Child) (*childJSON, error) {
	switch c.Kind {
	case Absent:
		return &childJSON{Kind: Absent}, nil
	case Hashed:
		return &childJSON{Kind: Hashed, Hash: c.hash}, nil
	case Concrete:
		nj, err := toNodeJSON(c.Node)
		if err != nil {
			return nil, err
		}
		return &childJSON{Kind: Concrete, Node: nj}, nil
	default:
		return nil, fmt.Errorf("partial: marshal: unknown child kind %d", c.Kind)
	}
}

func toNodeJSON(n Node) (*nodeJSON, error) {
	switch v := n.(type) {
	case *Leaf:
		path := v.Path.Own()
		return &nodeJSON{Type: "leaf", Path: &path, ValueHash: v.ValueHash}, nil
	case *Extension:
		path := v.Path.Own()
		childJ, err := toChildJSON(v.Child)
		if err != nil {
			return nil, err
		}
		return &nodeJSON{Type: "extension", Path: &path, Child: childJ}, nil
	case *Branch:
		children := make([]*childJSON, len(v.Children))
		for i, ch := range v.Children {
			cj, err := toChildJSON(ch)
			if err != nil {
				return nil, err
			}
			children[i] = cj
		}
		return &nodeJSON{Type: "branch", Children: children}, nil
	default:
		return nil, fmt.Errorf("partial: marshal: unknown node type %T", n)
	}
}

func fromChildJSON(cj *childJSON) (Child, error) {
	if cj == nil {
		return AbsentChild(), nil
	}
	switch cj.Kind {
	case Absent:
		return AbsentChild(), nil
	case Hashed:
		return HashChild(cj.Hash), nil
	case Concrete:
		n, err := fromNodeJSON(cj.Node)
		if err != nil {
			return Child{}, err
		}
		return ConcreteChild(n), nil
	default:
		return Child{}, fmt.Errorf("partial: unmarshal: unknown child kind %d", cj.Kind)
	}
}

func fromNodeJSON(nj *nodeJSON) (Node, error) {
	if nj == nil {
		return nil, fmt.Errorf("partial: unmarshal: missing node payload for concrete child")
	}
	switch nj.Type {
	case "leaf":
		if nj.Path == nil {
			return nil, fmt.Errorf("partial: unmarshal: leaf missing path")
		}
		return &Leaf{Path: nj.Path.View(), ValueHash: nj.ValueHash}, nil
	case "extension":
		if nj.Path == nil {
			return nil, fmt.Errorf("partial: unmarshal: extension missing path")
		}
		child, err := fromChildJSON(nj.Child)
		if err != nil {
			return nil, err
		}
		return &Extension{Path: nj.Path.View(), Child: child}, nil
	case "branch":
		if len(nj.Children) != 16 {
			return nil, fmt.Errorf("partial: unmarshal: branch needs 16 children, got %d", len(nj.Children))
		}
		var b Branch
		for i, cj := range nj.Children {
			c, err := fromChildJSON(cj)
			if err != nil {
				return nil, err
			}
			b.Children[i] = c
		}
		return &b, nil
	default:
		return nil, fmt.Errorf("partial: unmarshal: unknown node type %q", nj.Type)
	}
}

// MarshalJSON implements json.Marshaler.
func (c Child) MarshalJSON() ([]byte, error) {
	cj, err := toChildJSON(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cj)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Child) UnmarshalJSON(data []byte) error {
	var cj childJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	child, err := fromChildJSON(&cj)
	if err != nil {
		return err
	}
	*c = child
	return nil
}

// diffEntryJSON is one (prefix, subtree) pair of a Diff, wire form.
type diffEntryJSON struct {
	Prefix nibble.NibbleBuf `json:"prefix"`
	Sub    Child            `json:"sub"`
}

// MarshalJSON implements json.Marshaler.
func (d *Diff) MarshalJSON() ([]byte, error) {
	if d == nil {
		return json.Marshal([]diffEntryJSON{})
	}
	out := make([]diffEntryJSON, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, diffEntryJSON{Prefix: e.prefix.Own(), Sub: e.sub})
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var in []diffEntryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d.entries = make(map[string]diffEntry, len(in))
	for _, e := range in {
		prefix := e.Prefix.View()
		d.entries[prefix.Hex()] = diffEntry{prefix: prefix, sub: e.Sub}
	}
	return nil
}
