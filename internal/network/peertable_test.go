package network

import (
	"testing"

	"slimchain/internal/common"
)

func TestPeerTablePutGetRemove(t *testing.T) {
	table, err := NewPeerTable(8)
	if err != nil {
		t.Fatalf("NewPeerTable: %v", err)
	}

	p := Peer{ID: "node-1", Address: "127.0.0.1:9000", Role: "miner", Shard: common.ShardID{ID: 0, Total: 2}}
	table.Put(p)

	got, ok := table.Get("node-1")
	if !ok {
		t.Fatalf("expected peer to be found")
	}
	if got != p {
		t.Fatalf("expected %+v, got %+v", p, got)
	}
	if table.Len() != 1 {
		t.Fatalf("expected length 1, got %d", table.Len())
	}

	table.Remove("node-1")
	if _, ok := table.Get("node-1"); ok {
		t.Fatalf("expected peer to be forgotten after Remove")
	}
	if table.Len() != 0 {
		t.Fatalf("expected length 0 after Remove, got %d", table.Len())
	}
}

func TestPeerTableBounded(t *testing.T) {
	table, err := NewPeerTable(2)
	if err != nil {
		t.Fatalf("NewPeerTable: %v", err)
	}
	table.Put(Peer{ID: "a"})
	table.Put(Peer{ID: "b"})
	table.Put(Peer{ID: "c"})

	if table.Len() != 2 {
		t.Fatalf("expected bounded length 2, got %d", table.Len())
	}
	if _, ok := table.Get("a"); ok {
		t.Fatalf("expected least-recently-used peer %q to be evicted", "a")
	}
}

func TestPeerTableForShard(t *testing.T) {
	table, err := NewPeerTable(8)
	if err != nil {
		t.Fatalf("NewPeerTable: %v", err)
	}
	shard0 := common.ShardID{ID: 0, Total: 2}
	shard1 := common.ShardID{ID: 1, Total: 2}

	table.Put(Peer{ID: "storage-0a", Shard: shard0})
	table.Put(Peer{ID: "storage-0b", Shard: shard0})
	table.Put(Peer{ID: "storage-1a", Shard: shard1})

	got := table.ForShard(shard0)
	if len(got) != 2 {
		t.Fatalf("expected 2 peers in shard0, got %d", len(got))
	}
	for _, p := range got {
		if p.Shard != shard0 {
			t.Fatalf("ForShard returned peer outside requested shard: %+v", p)
		}
	}

	if all := table.All(); len(all) != 3 {
		t.Fatalf("expected All() to return 3 peers, got %d", len(all))
	}
}
