package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zenfs/zenfs/fs"
)

// Backend is the narrow, non-transactional interface a raw key/value
// medium implements. Simple wraps a Backend to produce a full Store for
// media with no native transaction support.
type Backend interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Put(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error
	Entries(ctx context.Context) ([]Key, error)
}

// Simple adapts a Backend into a Store by buffering every write in memory
// until Commit, at which point it replays them against the Backend under
// a single lock, and discarding the buffer entirely on Abort. It does not
// give read-your-own-writes isolation from concurrent transactions beyond
// what the commit-time lock provides, matching the non-transactional
// nature of the underlying medium.
type Simple struct {
	backend Backend
	mu      sync.Mutex
}

// NewSimple wraps backend in a Simple Store.
func NewSimple(backend Backend) *Simple {
	return &Simple{backend: backend}
}

func (s *Simple) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	return s.backend.Get(ctx, key)
}

func (s *Simple) Put(ctx context.Context, key Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Put(ctx, key, value)
}

func (s *Simple) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(ctx, key)
}

func (s *Simple) Entries(ctx context.Context) ([]Key, error) {
	return s.backend.Entries(ctx)
}

func (s *Simple) BeginTransaction(ctx context.Context) (Transaction, error) {
	return &simpleTxn{store: s, id: uuid.New(), writes: map[Key][]byte{}, deletes: map[Key]bool{}}, nil
}

// simpleTxn buffers Puts and Deletes in memory and only touches the
// underlying Backend on Commit, under Simple's lock.
type simpleTxn struct {
	store   *Simple
	id      uuid.UUID
	writes  map[Key][]byte
	deletes map[Key]bool
	done    bool
}

func (t *simpleTxn) ID() uuid.UUID { return t.id }

func (t *simpleTxn) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if t.done {
		return nil, false, fs.ErrClosed
	}
	if t.deletes[key] {
		return nil, false, nil
	}
	if v, ok := t.writes[key]; ok {
		return v, true, nil
	}
	return t.store.Get(ctx, key)
}

func (t *simpleTxn) Put(ctx context.Context, key Key, value []byte) error {
	if t.done {
		return fs.ErrClosed
	}
	delete(t.deletes, key)
	t.writes[key] = value
	return nil
}

func (t *simpleTxn) Delete(ctx context.Context, key Key) error {
	if t.done {
		return fs.ErrClosed
	}
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}

func (t *simpleTxn) Commit(ctx context.Context) error {
	if t.done {
		return fs.ErrClosed
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for key := range t.deletes {
		if err := t.store.backend.Delete(ctx, key); err != nil {
			return fs.Errorf("store.Commit", "", fs.EIO, "txn %s: delete %v: %v", t.id, key, err)
		}
	}
	for key, value := range t.writes {
		if err := t.store.backend.Put(ctx, key, value); err != nil {
			return fs.Errorf("store.Commit", "", fs.EIO, "txn %s: put %v: %v", t.id, key, err)
		}
	}
	return nil
}

func (t *simpleTxn) Abort(ctx context.Context) error {
	t.done = true
	t.writes = nil
	t.deletes = nil
	return nil
}
