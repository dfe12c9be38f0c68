package wire

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"slimchain/internal/chain"
	"slimchain/internal/common"
)

// rlpKV is one (key, value) pair out of a TxWriteData.Values map, RLP has
// no native map support so every map field in this package is flattened
// into an address- or key-sorted slice before encoding, mirroring the
// same flatten-and-replay idiom accessmap's JSON codec already uses.
type rlpKV struct {
	Key   common.H256
	Value common.H256
}

type rlpRead struct {
	Addr     common.Address
	HasNonce bool
	Nonce    *big.Int
	HasCode  bool
	Code     common.H256
	Keys     []common.H256
}

type rlpWrite struct {
	Addr        common.Address
	HasNonce    bool
	Nonce       *big.Int
	HasCode     bool
	Code        common.H256
	ResetValues bool
	Values      []rlpKV
}

type rlpTx struct {
	Caller    common.Address
	Input     []byte
	Height    uint64
	StateRoot common.H256
	Reads     []rlpRead
	Writes    []rlpWrite
	Signature []byte
	PubKey    []byte
}

func addrLess(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func keyLess(a, b common.H256) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func toRLPTx(tx *chain.Tx) *rlpTx {
	out := &rlpTx{
		Caller:    tx.Caller,
		Input:     tx.Input,
		Height:    uint64(tx.TxBlockHeight),
		StateRoot: tx.TxStateRoot,
		Signature: tx.Signature,
		PubKey:    []byte(tx.PubKey),
	}

	addrs := make([]common.Address, 0, len(tx.Reads))
	for a := range tx.Reads {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrLess(addrs[i], addrs[j]) })
	for _, a := range addrs {
		r := tx.Reads[a]
		rr := rlpRead{Addr: a, HasNonce: r.Nonce != nil, HasCode: r.Code != nil}
		if r.Nonce != nil {
			rr.Nonce = r.Nonce.Int()
		}
		if r.Code != nil {
			rr.Code = *r.Code
		}
		for k := range r.Keys {
			rr.Keys = append(rr.Keys, k)
		}
		sort.Slice(rr.Keys, func(i, j int) bool { return keyLess(rr.Keys[i], rr.Keys[j]) })
		out.Reads = append(out.Reads, rr)
	}

	addrs = addrs[:0]
	for a := range tx.Writes {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrLess(addrs[i], addrs[j]) })
	for _, a := range addrs {
		w := tx.Writes[a]
		ww := rlpWrite{Addr: a, HasNonce: w.Nonce != nil, HasCode: w.Code != nil, ResetValues: w.ResetValues}
		if w.Nonce != nil {
			ww.Nonce = w.Nonce.Int()
		}
		if w.Code != nil {
			ww.Code = *w.Code
		}
		keys := make([]common.H256, 0, len(w.Values))
		for k := range w.Values {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
		for _, k := range keys {
			ww.Values = append(ww.Values, rlpKV{Key: k, Value: w.Values[k]})
		}
		out.Writes = append(out.Writes, ww)
	}

	return out
}

func fromRLPTx(w *rlpTx) *chain.Tx {
	tx := &chain.Tx{
		Caller:        w.Caller,
		Input:         w.Input,
		TxBlockHeight: common.BlockHeight(w.Height),
		TxStateRoot:   w.StateRoot,
		Signature:     w.Signature,
		PubKey:        w.PubKey,
		Reads:         make(map[common.Address]chain.TxReadData, len(w.Reads)),
		Writes:        make(map[common.Address]chain.TxWriteData, len(w.Writes)),
	}
	for _, r := range w.Reads {
		rd := chain.TxReadData{}
		if r.HasNonce {
			nn := common.NonceFromBigInt(r.Nonce)
			rd.Nonce = &nn
		}
		if r.HasCode {
			code := r.Code
			rd.Code = &code
		}
		if len(r.Keys) > 0 {
			rd.Keys = make(map[common.StateKey]bool, len(r.Keys))
			for _, k := range r.Keys {
				rd.Keys[k] = true
			}
		}
		tx.Reads[r.Addr] = rd
	}
	for _, w2 := range w.Writes {
		wd := chain.TxWriteData{ResetValues: w2.ResetValues}
		if w2.HasNonce {
			nn := common.NonceFromBigInt(w2.Nonce)
			wd.Nonce = &nn
		}
		if w2.HasCode {
			code := w2.Code
			wd.Code = &code
		}
		if len(w2.Values) > 0 {
			wd.Values = make(map[common.StateKey]common.StateValue, len(w2.Values))
			for _, kv := range w2.Values {
				wd.Values[kv.Key] = kv.Value
			}
		}
		tx.Writes[w2.Addr] = wd
	}
	return tx
}

// EncodeTx serializes tx into its canonical binary (RLP) form.
func EncodeTx(tx *chain.Tx) ([]byte, error) {
	data, err := rlp.EncodeToBytes(toRLPTx(tx))
	if err != nil {
		return nil, fmt.Errorf("wire: encoding tx: %w", err)
	}
	return data, nil
}

// DecodeTx is EncodeTx's inverse.
func DecodeTx(data []byte) (*chain.Tx, error) {
	var w rlpTx
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("wire: decoding tx: %w", err)
	}
	return fromRLPTx(&w), nil
}
