// Package memstore implements an in-process, mutex-guarded store.Store
// backed by two maps (inode records and data blobs). It is grounded on
// rclone's backend/local as the "plain" reference backend: no persistence,
// no external dependency, useful for tests and ephemeral mounts.
package memstore

import (
	"context"
	"sync"

	"github.com/zenfs/zenfs/fs/store"
)

// Store is an in-memory store.Store. The zero value is not usable; use New.
type Store struct {
	mu     sync.RWMutex
	inodes map[uint64][]byte
	blobs  map[uint64][]byte

	txns *store.Simple
}

// New returns an empty in-memory Store.
func New() *Store {
	s := &Store{
		inodes: make(map[uint64][]byte),
		blobs:  make(map[uint64][]byte),
	}
	s.txns = store.NewSimple(&simpleAdapter{s})
	return s
}

func (s *Store) table(kind store.Kind) map[uint64][]byte {
	if kind == store.KindBlob {
		return s.blobs
	}
	return s.inodes
}

func (s *Store) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.table(key.Kind)[key.Ino]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Put(ctx context.Context, key store.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	s.table(key.Kind)[key.Ino] = buf
	return nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(key.Kind), key.Ino)
	return nil
}

func (s *Store) Entries(ctx context.Context) ([]store.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]store.Key, 0, len(s.inodes)+len(s.blobs))
	for ino := range s.inodes {
		keys = append(keys, store.Key{Ino: ino, Kind: store.KindInode})
	}
	for ino := range s.blobs {
		keys = append(keys, store.Key{Ino: ino, Kind: store.KindBlob})
	}
	return keys, nil
}

// BeginTransaction buffers writes in memory (copy-on-write) and applies
// them to the two backing maps atomically, under s.mu, on Commit. All
// transactions share one underlying store.Simple so concurrent commits
// serialize against each other, not just against concurrent single-key
// Put/Delete calls.
func (s *Store) BeginTransaction(ctx context.Context) (store.Transaction, error) {
	return s.txns.BeginTransaction(ctx)
}

// simpleAdapter exposes Store through the narrower store.Backend interface
// so store.Simple can provide the buffering transaction semantics without
// memstore duplicating that logic.
type simpleAdapter struct{ s *Store }

func (a *simpleAdapter) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	return a.s.Get(ctx, key)
}
func (a *simpleAdapter) Put(ctx context.Context, key store.Key, value []byte) error {
	return a.s.Put(ctx, key, value)
}
func (a *simpleAdapter) Delete(ctx context.Context, key store.Key) error {
	return a.s.Delete(ctx, key)
}
func (a *simpleAdapter) Entries(ctx context.Context) ([]store.Key, error) {
	return a.s.Entries(ctx)
}
