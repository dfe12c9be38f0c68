package accessmap

import (
	"encoding/json"

	"slimchain/internal/common"
)

// AccessMap's reverse index (readRev/writeRev) is fully derivable from
// blocks by replaying AllocNewBlock/AddRead/AddWrite in order, so the wire
// form only carries maxBlocks and blocks — smaller on the wire and
// immune to the two structures ever drifting apart after a restore.
type accessMapWire struct {
	MaxBlocks int              `json:"max_blocks"`
	Blocks    []blockEntryWire `json:"blocks"`
}

type blockEntryWire struct {
	Height common.BlockHeight                `json:"height"`
	Reads  map[common.Address]addrAccessWire `json:"reads"`
	Writes map[common.Address]addrAccessWire `json:"writes"`
}

type addrAccessWire struct {
	Nonce bool               `json:"nonce"`
	Code  bool               `json:"code"`
	Reset bool               `json:"reset"`
	Keys  []common.StateKey  `json:"keys,omitempty"`
}

func toAddrAccessWire(a *addrAccess) addrAccessWire {
	keys := make([]common.StateKey, 0, len(a.Keys))
	for k := range a.Keys {
		keys = append(keys, k)
	}
	return addrAccessWire{Nonce: a.Nonce, Code: a.Code, Reset: a.Reset, Keys: keys}
}

func (a addrAccessWire) toReadSet() ReadSet {
	keys := make(map[common.StateKey]bool, len(a.Keys))
	for _, k := range a.Keys {
		keys[k] = true
	}
	return ReadSet{Nonce: a.Nonce, Code: a.Code, Keys: keys}
}

func (a addrAccessWire) toWriteSet() WriteSet {
	keys := make(map[common.StateKey]bool, len(a.Keys))
	for _, k := range a.Keys {
		keys[k] = true
	}
	return WriteSet{Nonce: a.Nonce, Code: a.Code, ResetValues: a.Reset, Keys: keys}
}

// MarshalJSON implements json.Marshaler.
func (m *AccessMap) MarshalJSON() ([]byte, error) {
	w := accessMapWire{MaxBlocks: m.maxBlocks, Blocks: make([]blockEntryWire, 0, len(m.blocks))}
	for _, b := range m.blocks {
		be := blockEntryWire{
			Height: b.Height,
			Reads:  make(map[common.Address]addrAccessWire, len(b.Reads)),
			Writes: make(map[common.Address]addrAccessWire, len(b.Writes)),
		}
		for addr, acc := range b.Reads {
			be.Reads[addr] = toAddrAccessWire(acc)
		}
		for addr, acc := range b.Writes {
			be.Writes[addr] = toAddrAccessWire(acc)
		}
		w.Blocks = append(w.Blocks, be)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, replaying each block's
// recorded accesses through AllocNewBlock/AddRead/AddWrite to rebuild the
// reverse index exactly as it would have been built live.
func (m *AccessMap) UnmarshalJSON(data []byte) error {
	var w accessMapWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	rebuilt := New(w.MaxBlocks)
	for _, be := range w.Blocks {
		rebuilt.AllocNewBlock(be.Height)
		for addr, acc := range be.Reads {
			rebuilt.AddRead(addr, acc.toReadSet())
		}
		for addr, acc := range be.Writes {
			rebuilt.AddWrite(addr, acc.toWriteSet())
		}
	}
	*m = *rebuilt
	return nil
}
