package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"slimchain/internal/chainerr"
	"slimchain/internal/common"
)

// Store wraps a single *leveldb.DB across the five logical columns.
type Store struct {
	db  *leveldb.DB
	log *logrus.Entry
}

// Open opens (or creates) a LevelDB database at path.
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening leveldb at %s: %v", chainerr.PersistenceError, path, err)
	}
	return &Store{db: db, log: log.WithField("component", "storage")}, nil
}

// OpenMemory opens an in-memory database, used by tests and by any
// ephemeral role that never needs a restart to recover state from.
func OpenMemory(log *logrus.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening in-memory leveldb: %v", chainerr.PersistenceError, err)
	}
	return &Store{db: db, log: log.WithField("component", "storage")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing leveldb: %v", chainerr.PersistenceError, err)
	}
	return nil
}

// get returns (value, true, nil) for a present key, (nil, false, nil)
// for a missing one, and (nil, false, err) only on a real storage
// failure — mirroring db.rs's get_object returning Option<T>, never an
// error, for the not-found case.
func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading key: %v", chainerr.PersistenceError, err)
	}
	return v, true, nil
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	v, ok, err := s.get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(v, out); err != nil {
		return false, fmt.Errorf("%w: decoding value at key: %v", chainerr.PersistenceError, err)
	}
	return true, nil
}

// Batch accumulates writes across any mix of columns for a single
// atomic leveldb.Write call — the Go analogue of db.rs's Transaction.
type Batch struct {
	inner leveldb.Batch
}

// NewBatch returns an empty Batch.
func NewBatch() *Batch { return &Batch{} }

// PutMeta stages value (JSON-encoded) under a named meta key.
func (b *Batch) PutMeta(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encoding meta %q: %w", key, err)
	}
	b.inner.Put(metaKey(key), data)
	return nil
}

// PutBlock stages a block keyed by height.
func (b *Batch) PutBlock(height common.BlockHeight, data []byte) {
	b.inner.Put(blockKey(height), data)
}

// PutTx stages a transaction keyed by its content digest.
func (b *Batch) PutTx(digest common.H256, data []byte) {
	b.inner.Put(txKey(digest), data)
}

// PutStateNode stages a content-addressed trie node.
func (b *Batch) PutStateNode(hash common.H256, data []byte) {
	b.inner.Put(stateKey(hash), data)
}

// PutLog stages an append-only audit-log entry.
func (b *Batch) PutLog(idx uint64, data []byte) {
	b.inner.Put(logKey(idx), data)
}

// DeleteLog removes a previously-written audit-log entry, used once a
// log-backed worker has durably folded it into a later snapshot.
func (b *Batch) DeleteLog(idx uint64) {
	b.inner.Delete(logKey(idx))
}

// WriteSync applies b synchronously, fsyncing before returning — used
// for the meta column's head pointer, where surviving a crash matters
// more than write latency.
func (s *Store) WriteSync(b *Batch) error {
	if err := s.db.Write(&b.inner, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("%w: writing batch (sync): %v", chainerr.PersistenceError, err)
	}
	return nil
}

// WriteAsync applies b off the calling goroutine, the Go analogue of
// db.rs's write_async (tokio::spawn_blocking), so a caller that does
// not need sync durability never blocks on the write. The per-block
// PersistFn built by NewPersistFn does not use it; it writes through
// WriteSync.
func (s *Store) WriteAsync(ctx context.Context, b *Batch) <-chan error {
	out := make(chan error, 1)
	go func() {
		err := s.db.Write(&b.inner, nil)
		if err != nil {
			err = fmt.Errorf("%w: writing batch (async): %v", chainerr.PersistenceError, err)
		}
		select {
		case out <- err:
		case <-ctx.Done():
		}
	}()
	return out
}
