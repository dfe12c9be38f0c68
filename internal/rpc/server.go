package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"slimchain/internal/chainerr"
	"slimchain/internal/common"
)

// ShardRouter hands a freshly-validated signed tx request to whichever
// storage node owns its shard. The actual peer-to-peer routing is an
// external collaborator (spec.md's Non-goals carve the P2P overlay out
// of this repository); this interface is the boundary this package
// depends on rather than a concrete implementation of it.
type ShardRouter interface {
	RouteTxRequest(req SignedTxRequest, shard common.ShardID) error
}

// TxCounter is the read side of internal/storage.TxCounter, narrowed to
// what the tx_count handler needs.
type TxCounter interface {
	Load() uint64
}

// Server implements the HTTP endpoints spec.md §4.12/§6 lists for a
// client node: tx submission, tx-count/height diagnostics, and admin
// record-events. It knows nothing about how those numbers are produced —
// just the handler shapes and status-code conventions around them.
type Server struct {
	router  ShardRouter
	counter TxCounter
	height  *atomic.Uint64
	log     *logrus.Entry

	mux *chi.Mux
}

// NewServer wires a Server's client_rpc routes. height is the node's
// own atomic LatestBlockHeader.Height cell (spec.md §5: read lock-free
// by HTTP handlers, written only by commit_block).
func NewServer(router ShardRouter, counter TxCounter, height *atomic.Uint64, log *logrus.Logger) *Server {
	s := &Server{router: router, counter: counter, height: height, log: log.WithField("component", "rpc")}
	s.mux = chi.NewRouter()
	s.mux.Post("/client_rpc/tx_req", s.handleTxReq)
	s.mux.Get("/client_rpc/tx_count", s.handleTxCount)
	s.mux.Get("/client_rpc/block_height", s.handleBlockHeight)
	s.mux.Post("/client_rpc/record_event", s.handleRecordEvent)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// SetRouter swaps in the ShardRouter after construction — a node's
// bootstrap sequence builds its consensus driver and worker (which the
// router needs to forward accepted tx requests to) only after the
// Server already exists and, for a Raft deployment, has had MountRaft
// called on it.
func (s *Server) SetRouter(router ShardRouter) { s.router = router }

// txReqItem is one entry of the tx_req POST body: a signed request plus
// the shard its caller believes owns the touched address.
type txReqItem struct {
	Req     SignedTxRequest `json:"req"`
	ShardID common.ShardID  `json:"shard_id"`
}

func (s *Server) handleTxReq(w http.ResponseWriter, r *http.Request) {
	var items []txReqItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, item := range items {
		if !item.Req.Verify() {
			writeError(w, http.StatusBadRequest, chainerr.BadSignature)
			return
		}
		if err := s.router.RouteTxRequest(item.Req, item.ShardID); err != nil {
			s.log.WithError(err).WithField("shard", item.ShardID).Warn("routing tx request failed")
			writeError(w, statusFor(err), err)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTxCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"tx_count": s.counter.Load()})
}

func (s *Server) handleBlockHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"height": s.height.Load()})
}

// recordEvent is the admin audit payload: a discard reason or any other
// free-form event a node's own pipeline wants to surface. JSON framing
// is used here (and only here, plus the node_rpc layer) per spec.md
// §4.12's split between binary block/tx gossip and JSON admin events.
type recordEvent struct {
	Kind    string            `json:"kind"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var ev recordEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := uuid.New()
	s.log.WithField("request_id", id).WithField("kind", ev.Kind).WithField("fields", ev.Fields).Info("record event")
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": id.String()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}

// statusFor maps a chainerr sentinel to the HTTP status spec.md §7 says
// the client API reports it with: a non-2xx status plus a text body.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chainerr.BadSignature), errors.Is(err, chainerr.NonceMismatch),
		errors.Is(err, chainerr.InvalidProof), errors.Is(err, chainerr.WriteConflict):
		return http.StatusBadRequest
	case errors.Is(err, chainerr.StaleOrFutureHeight):
		return http.StatusConflict
	case errors.Is(err, chainerr.RaftForwardToLeader):
		return http.StatusTemporaryRedirect
	case errors.Is(err, chainerr.AlreadyShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
