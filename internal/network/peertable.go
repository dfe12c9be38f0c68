// Package network holds the thin peer-addressing layer a node keeps
// around its consensus and RPC stack: a bounded table of known peers,
// populated from static config.network.peers entries and (when
// network.mdns is set) local-network discovery. The actual gossip/P2P
// transport is an explicit external collaborator (spec.md's Non-goals
// exclude a P2P overlay implementation) — this package only tracks who
// the node currently believes its peers are.
package network

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"slimchain/internal/common"
)

// Peer is everything the node remembers about one other participant:
// its dialable HTTP address and, where applicable, Raft identity and
// shard membership.
type Peer struct {
	ID      string
	Address string
	Role    string
	Shard   common.ShardID
}

// PeerTable is a bounded LRU of known peers, keyed by Peer.ID. Bounding
// it keeps a long-lived node's address book from growing without limit
// as it hears about (and forgets) transient peers over an mDNS-discovered
// local network.
type PeerTable struct {
	cache *lru.Cache[string, Peer]
}

// NewPeerTable builds a table holding at most capacity peers.
func NewPeerTable(capacity int) (*PeerTable, error) {
	c, err := lru.New[string, Peer](capacity)
	if err != nil {
		return nil, err
	}
	return &PeerTable{cache: c}, nil
}

// Put records or refreshes a peer.
func (t *PeerTable) Put(p Peer) { t.cache.Add(p.ID, p) }

// Get looks up a peer by ID.
func (t *PeerTable) Get(id string) (Peer, bool) { return t.cache.Get(id) }

// Remove forgets a peer, used when a dial attempt repeatedly fails.
func (t *PeerTable) Remove(id string) { t.cache.Remove(id) }

// Len reports how many peers are currently tracked.
func (t *PeerTable) Len() int { return t.cache.Len() }

// All returns every currently tracked peer, in no particular order.
func (t *PeerTable) All() []Peer {
	keys := t.cache.Keys()
	out := make([]Peer, 0, len(keys))
	for _, k := range keys {
		if p, ok := t.cache.Peek(k); ok {
			out = append(out, p)
		}
	}
	return out
}

// ForShard returns the subset of tracked peers that own shard.
func (t *PeerTable) ForShard(shard common.ShardID) []Peer {
	var out []Peer
	for _, p := range t.All() {
		if p.Shard == shard {
			out = append(out, p)
		}
	}
	return out
}
