// Package boltstore implements a store.Store backed by a bbolt database,
// using two buckets ("inodes", "blobs") and bbolt's native read/write
// transactions directly as store.Transaction. The on-disk *bbolt.DB handle
// is reference-counted and shared across Stores opened on the same path,
// grounded on rclone's lib/kv facility registry: two mounts pointed at the
// same bolt file share one handle instead of double-opening it.
package boltstore

import (
	"context"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/google/uuid"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/fs/store"
	"github.com/zenfs/zenfs/internal/zlog"
)

var (
	inodeBucket = []byte("inodes")
	blobBucket  = []byte("blobs")
)

var registry = struct {
	mu      sync.Mutex
	handles map[string]*handle
}{handles: make(map[string]*handle)}

// handle is a reference-counted *bbolt.DB keyed by its file path (the
// "facility" in lib/kv's terminology).
type handle struct {
	db       *bbolt.DB
	path     string
	refCount int
}

func openHandle(path string) (*handle, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if h, ok := registry.handles[path]; ok {
		h.refCount++
		return h, nil
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fs.Errorf("boltstore.Open", path, fs.EIO, "open bolt db: %v", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(inodeBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fs.Errorf("boltstore.Open", path, fs.EIO, "create buckets: %v", err)
	}

	h := &handle{db: db, path: path, refCount: 1}
	registry.handles[path] = h
	return h, nil
}

func (h *handle) release() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	h.refCount--
	if h.refCount <= 0 {
		zlog.Debugf(zlog.Str("boltstore"), "closing %s: refcount reached zero", h.path)
		h.db.Close()
		delete(registry.handles, h.path)
	}
}

// Store is a bbolt-backed store.Store.
type Store struct {
	h        *handle
	closed   bool
	closeMu  sync.Mutex
}

// Open opens (or attaches to an already-open) bbolt database at path.
// Close must be called to release this Store's reference.
func Open(path string) (*Store, error) {
	h, err := openHandle(path)
	if err != nil {
		return nil, err
	}
	return &Store{h: h}, nil
}

// Close releases this Store's reference on the underlying *bbolt.DB,
// closing it once the last reference is released.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.h.release()
	return nil
}

func bucketFor(tx *bbolt.Tx, kind store.Kind) *bbolt.Bucket {
	if kind == store.KindBlob {
		return tx.Bucket(blobBucket)
	}
	return tx.Bucket(inodeBucket)
}

func boltKey(ino uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(ino >> (56 - 8*i))
	}
	return buf
}

func (s *Store) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	var out []byte
	var ok bool
	err := s.h.db.View(func(tx *bbolt.Tx) error {
		v := bucketFor(tx, key.Kind).Get(boltKey(key.Ino))
		if v == nil {
			return nil
		}
		ok = true
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, false, fs.Errorf("boltstore.Get", "", fs.EIO, "%v", err)
	}
	return out, ok, nil
}

func (s *Store) Put(ctx context.Context, key store.Key, value []byte) error {
	err := s.h.db.Update(func(tx *bbolt.Tx) error {
		return bucketFor(tx, key.Kind).Put(boltKey(key.Ino), value)
	})
	if err != nil {
		return fs.Errorf("boltstore.Put", "", fs.EIO, "%v", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	err := s.h.db.Update(func(tx *bbolt.Tx) error {
		return bucketFor(tx, key.Kind).Delete(boltKey(key.Ino))
	})
	if err != nil {
		return fs.Errorf("boltstore.Delete", "", fs.EIO, "%v", err)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context) ([]store.Key, error) {
	var keys []store.Key
	err := s.h.db.View(func(tx *bbolt.Tx) error {
		for kind, bucketName := range map[store.Kind][]byte{
			store.KindInode: inodeBucket,
			store.KindBlob:  blobBucket,
		} {
			b := tx.Bucket(bucketName)
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				var ino uint64
				for i := 0; i < 8 && i < len(k); i++ {
					ino = ino<<8 | uint64(k[i])
				}
				keys = append(keys, store.Key{Ino: ino, Kind: kind})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fs.Errorf("boltstore.Entries", "", fs.EIO, "%v", err)
	}
	return keys, nil
}

// BeginTransaction starts a native bbolt read/write transaction, wrapped
// to satisfy store.Transaction.
func (s *Store) BeginTransaction(ctx context.Context) (store.Transaction, error) {
	tx, err := s.h.db.Begin(true)
	if err != nil {
		return nil, fs.Errorf("boltstore.BeginTransaction", "", fs.EIO, "%v", err)
	}
	return &boltTxn{tx: tx, id: uuid.New()}, nil
}

type boltTxn struct {
	tx   *bbolt.Tx
	id   uuid.UUID
	done bool
}

func (t *boltTxn) ID() uuid.UUID { return t.id }

func (t *boltTxn) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	if t.done {
		return nil, false, fs.ErrClosed
	}
	v := bucketFor(t.tx, key.Kind).Get(boltKey(key.Ino))
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *boltTxn) Put(ctx context.Context, key store.Key, value []byte) error {
	if t.done {
		return fs.ErrClosed
	}
	if err := bucketFor(t.tx, key.Kind).Put(boltKey(key.Ino), value); err != nil {
		return fs.Errorf("boltstore.Put", "", fs.EIO, "txn %s: %v", t.id, err)
	}
	return nil
}

func (t *boltTxn) Delete(ctx context.Context, key store.Key) error {
	if t.done {
		return fs.ErrClosed
	}
	if err := bucketFor(t.tx, key.Kind).Delete(boltKey(key.Ino)); err != nil {
		return fs.Errorf("boltstore.Delete", "", fs.EIO, "txn %s: %v", t.id, err)
	}
	return nil
}

func (t *boltTxn) Commit(ctx context.Context) error {
	if t.done {
		return fs.ErrClosed
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fs.Errorf("boltstore.Commit", "", fs.EIO, "txn %s: %v", t.id, err)
	}
	return nil
}

func (t *boltTxn) Abort(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
