// Command slimchain-node boots one SlimChain participant — client,
// miner, or storage node — wiring the config, storage, pipeline,
// worker, consensus and RPC layers built across internal/ into a
// running process. It adapts the teacher's cobra-based cmd/synnergy
// root command to spec.md §6's flag surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	hraft "github.com/hashicorp/raft"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"slimchain/internal/accessmap"
	"slimchain/internal/chain"
	"slimchain/internal/chainerr"
	"slimchain/internal/common"
	"slimchain/internal/config"
	"slimchain/internal/consensus/pow"
	consensusraft "slimchain/internal/consensus/raft"
	"slimchain/internal/network"
	"slimchain/internal/pipeline"
	"slimchain/internal/rpc"
	"slimchain/internal/snapshot"
	"slimchain/internal/state"
	"slimchain/internal/storage"
	"slimchain/internal/trie"
	"slimchain/internal/worker"
)

func main() {
	var configPath, dataDir, enclavePath, metricsAddr, logLevel string

	root := &cobra.Command{
		Use:   "slimchain-node",
		Short: "run a SlimChain client, miner, or storage node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath, dataDir, enclavePath, metricsAddr, logLevel)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the node's YAML config file")
	root.Flags().StringVar(&dataDir, "data", "", "directory for durable state (empty: in-memory, no restart recovery)")
	root.Flags().StringVar(&enclavePath, "enclave", "", "path to the node's ed25519 signing keypair (generated on first run)")
	root.Flags().StringVar(&metricsAddr, "metrics", "", "address to expose Prometheus metrics on (empty: disabled)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(configPath, dataDir, enclavePath, metricsAddr, logLevel string) error {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if enclavePath == "" {
		enclavePath = filepath.Join(dataDir, "node.key")
		if dataDir == "" {
			enclavePath = "node.key"
		}
	}
	priv, err := loadOrCreateKeypair(enclavePath)
	if err != nil {
		return err
	}

	store, err := openStore(dataDir, log)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := loadOrCreateSnapshot(store, cfg, log)
	if err != nil {
		return err
	}

	checker := newConflictChecker(cfg.Chain.ConflictCheck)

	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)
	stopMetrics := serveMetrics(metricsAddr, reg, log)
	defer stopMetrics()

	peers, err := network.NewPeerTable(256)
	if err != nil {
		return err
	}
	for _, addr := range cfg.Network.Peers {
		peers.Put(network.Peer{ID: addr, Address: addr})
	}
	if cfg.Network.MDNS {
		log.Info("network.mdns enabled: local-network peer discovery is an external collaborator of PeerTable, not implemented by this process")
	}

	var height atomic.Uint64
	height.Store(uint64(snap.Height()))

	txCounter, err := store.LoadTxCounter()
	if err != nil {
		return err
	}

	server := rpc.NewServer(nil, txCounter, &height, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var importWorker *worker.BlockImportWorker
	var proposalWorker *worker.BlockProposalWorker
	var raftNode *hraft.Raft

	persist := store.NewPersistFn()
	persistAndTrack := func(s *snapshot.Snapshot) error {
		if err := persist(s); err != nil {
			return err
		}
		height.Store(uint64(s.Height()))
		return nil
	}

	// fullStore backs the node's own copy of full account/state, the way
	// a storage node holds every address it's responsible for in full
	// rather than a client's bounded partial trie. Both trie levels share
	// one content-addressed map, mirroring internal/storage.TrieView's
	// single state column. applyBlock replays a just-committed block's
	// writes into it (pipeline.ApplyBlockToFullState only stages new
	// nodes; the caller is the one that makes them visible to future
	// reads), advancing fullRoot so the next tx request's execution sees
	// every previously accepted write from this node.
	fullStore := trie.MapStore{}
	fullView := &state.MapStateView{AccountNodes: fullStore, StateNodes: fullStore}
	var fullMu sync.Mutex
	fullRoot := snap.Root
	applyBlock := func(b chain.Block) {
		fullMu.Lock()
		defer fullMu.Unlock()
		newRoot, staged, err := pipeline.ApplyBlockToFullState(fullView, fullStore, fullRoot, b)
		if err != nil {
			log.WithError(err).WithField("height", b.Header.Height).Error("replaying block into full state failed")
			return
		}
		for h, n := range staged {
			fullStore[h] = n
		}
		fullRoot = newRoot
	}
	fullRootFn := func() common.H256 {
		fullMu.Lock()
		defer fullMu.Unlock()
		return fullRoot
	}

	switch cfg.Chain.Consensus {
	case config.ConsensusRaft:
		raftNode, err = bootstrapRaft(cfg, dataDir, snap, checker, metrics, log, server, applyBlock)
		if err != nil {
			return err
		}
		if cfg.Role == config.RoleMiner {
			proposalWorker = worker.NewBlockProposalWorker(snap, checker, consensusraft.Driver{}, proposeConfig(cfg), metrics, log,
				func(p *chain.BlockProposal) error {
					return consensusraft.Submit(raftNode, p, 5*time.Second)
				}, make(chan *chain.TxProposal, 256))
		}
	case config.ConsensusPoW:
		driver := pow.NewDriver(cfg.PoW.InitDiff)
		blockIn := make(chan *chain.BlockProposal, 256)
		importWorker = worker.NewBlockImportWorker(snap, checker, driver, metrics, log, persistAndTrack, blockIn)
		go importWorker.Run(ctx)
		if cfg.Role == config.RoleMiner {
			proposalWorker = worker.NewBlockProposalWorker(snap, checker, driver, proposeConfig(cfg), metrics, log,
				func(p *chain.BlockProposal) error {
					applyBlock(p.Block)
					log.WithField("height", p.Block.Header.Height).Info("mined block; broadcasting to peers is handled by the external P2P overlay")
					return persistAndTrack(snap)
				}, make(chan *chain.TxProposal, 256))
		}
	default:
		return fmt.Errorf("config: unknown chain.consensus %q", cfg.Chain.Consensus)
	}

	if proposalWorker != nil {
		go proposalWorker.Run(ctx)
		router := newLocalRouter(fullView, fullRootFn, priv, shardFromConfig(cfg), proposalWorker, log)
		server.SetRouter(router)
	}

	// Raft commits land on snap straight from FSM.Apply, outside of
	// persistAndTrack's height bookkeeping; poll it so block_height stays
	// current for that path too.
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				height.Store(uint64(snap.Height()))
			}
		}
	}()

	addr := cfg.Network.HTTPListen
	if addr == "" {
		addr = cfg.Network.Listen
	}
	httpServer := &http.Server{Addr: addr, Handler: server}
	serveErrs := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("client_rpc listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("received shutdown signal, draining workers")
	case err := <-serveErrs:
		log.WithError(err).Error("client_rpc server failed")
		cancel()
		shutdownWorkers(proposalWorker, importWorker)
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	shutdownWorkers(proposalWorker, importWorker)

	if raftNode != nil {
		_ = raftNode.Shutdown().Error()
	}
	return nil
}

func shutdownWorkers(proposalWorker *worker.BlockProposalWorker, importWorker *worker.BlockImportWorker) {
	if proposalWorker != nil {
		_ = proposalWorker.Shutdown()
	}
	if importWorker != nil {
		_ = importWorker.Shutdown()
	}
}

func openStore(dataDir string, log *logrus.Logger) (*storage.Store, error) {
	if dataDir == "" {
		return storage.OpenMemory(log)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir %s: %v", chainerr.PersistenceError, dataDir, err)
	}
	return storage.Open(filepath.Join(dataDir, "chain.db"), log)
}

func loadOrCreateSnapshot(store *storage.Store, cfg *config.Config, log *logrus.Logger) (*snapshot.Snapshot, error) {
	snap, ok, err := store.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if ok {
		log.WithField("height", snap.Height()).Info("restored snapshot from durable storage")
		return snap, nil
	}
	stateLen := int(cfg.Chain.StateLen)
	if stateLen == 0 {
		stateLen = 8
	}
	log.Info("no durable snapshot found, starting from genesis")
	return snapshot.Genesis(stateLen, time.Now().UnixMilli()), nil
}

func newConflictChecker(mode config.ConflictCheck) accessmap.Checker {
	if mode == config.ConflictSSI {
		return accessmap.SSI{}
	}
	return accessmap.Optimistic{}
}

func proposeConfig(cfg *config.Config) pipeline.ProposeConfig {
	maxTxs := cfg.Miner.MaxTxs
	if maxTxs == 0 {
		maxTxs = 500
	}
	interval := time.Duration(cfg.Miner.MaxBlockIntervalMs) * time.Millisecond
	if interval == 0 {
		interval = 2 * time.Second
	}
	return pipeline.ProposeConfig{MinTxs: cfg.Miner.MinTxs, MaxTxs: maxTxs, MaxBlockInterval: interval}
}

func shardFromConfig(cfg *config.Config) common.ShardID {
	return common.ShardID{ID: cfg.Shard.ID, Total: cfg.Shard.Total}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithField("addr", addr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// bootstrapRaft wires a hashicorp/raft node around fsm, persisting its
// log and stable state via internal/storage.OpenRaftStores and its
// snapshots via raft's own file snapshot store, transported over the
// HTTP-tunneled adapter mounted onto server's node_rpc routes.
func bootstrapRaft(cfg *config.Config, dataDir string, snap *snapshot.Snapshot, checker accessmap.Checker, metrics *pipeline.Metrics, log *logrus.Logger, server *rpc.Server, onCommit func(chain.Block)) (*hraft.Raft, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("config: raft consensus requires --data (the replicated log needs a durable directory)")
	}
	raftStores, err := storage.OpenRaftStores(dataDir)
	if err != nil {
		return nil, err
	}
	snapStore, err := hraft.NewFileSnapshotStore(dataDir, 3, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("%w: opening raft snapshot store: %v", chainerr.PersistenceError, err)
	}

	localID := cfg.Network.PeerID
	if localID == "" {
		localID = cfg.Network.HTTPListen
	}
	transport := rpc.NewHTTPTransport(hraft.ServerAddress(cfg.Network.HTTPListen))

	raftCfg := hraft.DefaultConfig()
	raftCfg.LocalID = hraft.ServerID(localID)
	if cfg.Raft.HeartbeatIntervalMs > 0 {
		raftCfg.HeartbeatTimeout = time.Duration(cfg.Raft.HeartbeatIntervalMs) * time.Millisecond
	}
	if cfg.Raft.ElectionTimeoutMinMs > 0 {
		raftCfg.ElectionTimeout = time.Duration(cfg.Raft.ElectionTimeoutMinMs) * time.Millisecond
	}
	raftCfg.SnapshotThreshold = cfg.Raft.SnapshotLogsSinceLast
	if raftCfg.SnapshotThreshold == 0 {
		raftCfg.SnapshotThreshold = 8192
	}

	fsm := consensusraft.NewFSM(snap, checker, metrics, log)
	fsm.OnCommit = onCommit
	node, err := hraft.NewRaft(raftCfg, fsm, raftStores.Log, raftStores.Stable, snapStore, transport)
	if err != nil {
		return nil, fmt.Errorf("%w: starting raft: %v", chainerr.PersistenceError, err)
	}

	server.MountRaft(node, transport,
		func(data []byte) error {
			proposal, decodeErr := consensusraft.DecodeProposal(data)
			if decodeErr != nil {
				return decodeErr
			}
			return consensusraft.Submit(node, proposal, 5*time.Second)
		},
		func(height uint64) ([]byte, bool) {
			blk, ok := snap.GetBlock(common.BlockHeight(height))
			if !ok {
				return nil, false
			}
			data, encodeErr := consensusraft.EncodeProposal(&chain.BlockProposal{Block: blk, Txs: blk.Txs.Full})
			if encodeErr != nil {
				return nil, false
			}
			return data, true
		})

	servers := []hraft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}}
	for _, peer := range cfg.Network.Peers {
		if peer == cfg.Network.HTTPListen {
			continue
		}
		servers = append(servers, hraft.Server{ID: hraft.ServerID(peer), Address: hraft.ServerAddress(peer)})
	}
	node.BootstrapCluster(hraft.Configuration{Servers: servers})

	return node, nil
}
