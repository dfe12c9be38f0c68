package rpc

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"slimchain/internal/common"
)

type fakeRouter struct {
	calls []common.ShardID
	err   error
}

func (f *fakeRouter) RouteTxRequest(req SignedTxRequest, shard common.ShardID) error {
	f.calls = append(f.calls, shard)
	return f.err
}

type fakeCounter struct{ n uint64 }

func (f *fakeCounter) Load() uint64 { return f.n }

func testServer() (*Server, *fakeRouter, *atomic.Uint64) {
	router := &fakeRouter{}
	counter := &fakeCounter{n: 7}
	var height atomic.Uint64
	height.Store(42)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(router, counter, &height, log), router, &height
}

func TestHandleTxReqAccepts(t *testing.T) {
	s, router, _ := testServer()
	_, priv, _ := ed25519.GenerateKey(nil)
	req := CallTxRequest{Nonce: common.NewNonce(1), Address: common.BytesToAddress([]byte{1}), Data: []byte("x")}
	signed := SignTxRequest(req, priv)

	body, err := json.Marshal([]txReqItem{{Req: signed, ShardID: common.ShardID{ID: 0, Total: 4}}})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	r := httptest.NewRequest("POST", "/client_rpc/tx_req", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(router.calls) != 1 || router.calls[0].Total != 4 {
		t.Fatalf("expected router to be called once with shard total 4, got %+v", router.calls)
	}
}

func TestHandleTxReqRejectsBadSignature(t *testing.T) {
	s, router, _ := testServer()
	_, priv, _ := ed25519.GenerateKey(nil)
	req := CallTxRequest{Nonce: common.NewNonce(1), Address: common.BytesToAddress([]byte{1}), Data: []byte("x")}
	signed := SignTxRequest(req, priv)
	signed.Signature[0] ^= 0xff

	body, _ := json.Marshal([]txReqItem{{Req: signed, ShardID: common.ShardID{}}})
	r := httptest.NewRequest("POST", "/client_rpc/tx_req", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(router.calls) != 0 {
		t.Fatalf("expected router not to be called for a bad signature")
	}
}

func TestHandleTxCountAndBlockHeight(t *testing.T) {
	s, _, height := testServer()

	r := httptest.NewRequest("GET", "/client_rpc/tx_count", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	var countResp map[string]uint64
	if err := json.Unmarshal(w.Body.Bytes(), &countResp); err != nil {
		t.Fatalf("decode tx_count response: %v", err)
	}
	if countResp["tx_count"] != 7 {
		t.Fatalf("expected tx_count 7, got %d", countResp["tx_count"])
	}

	height.Store(100)
	r = httptest.NewRequest("GET", "/client_rpc/block_height", nil)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	var heightResp map[string]uint64
	if err := json.Unmarshal(w.Body.Bytes(), &heightResp); err != nil {
		t.Fatalf("decode block_height response: %v", err)
	}
	if heightResp["height"] != 100 {
		t.Fatalf("expected height 100, got %d", heightResp["height"])
	}
}

func TestHandleRecordEvent(t *testing.T) {
	s, _, _ := testServer()
	body, _ := json.Marshal(recordEvent{Kind: "discard_tx", Fields: map[string]string{"reason": "nonce_mismatch"}})
	r := httptest.NewRequest("POST", "/client_rpc/record_event", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Code != 202 {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["request_id"] == "" {
		t.Fatalf("expected a request id")
	}
}
