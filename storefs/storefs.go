// Package storefs implements the generic Store-backed fs.FileSystem: it
// materializes directories and files as inode records and data blobs over
// a store.Store, per the Store-backed filesystem contract (component F).
package storefs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/fs/inode"
	"github.com/zenfs/zenfs/fs/store"
	"github.com/zenfs/zenfs/internal/zlog"
)

const rootIno uint64 = 0

// FS is a generic fs.FileSystem materialized over a store.Store.
type FS struct {
	name  string
	store store.Store
	root  fs.Credential

	nextIno uint64 // monotonic allocator, seeded past any ino seen in the store

	readyOnce sync.Once
	readyErr  error
}

var _ fs.FileSystem = (*FS)(nil)

// New returns a FileSystem backed by s. root is the credential used to own
// the root directory if the store is empty and needs formatting on first
// use (mirrors the original core's "format on first use" behavior so a
// fresh boltstore file is immediately mountable).
func New(name string, s store.Store, root fs.Credential) *FS {
	return &FS{name: name, store: s, root: root, nextIno: 1}
}

// Ready formats the store on first use (writes an empty root directory at
// Ino(0) if absent) and otherwise seeds the inode allocator past the
// highest ino already present.
func (f *FS) Ready(ctx context.Context) error {
	f.readyOnce.Do(func() {
		f.readyErr = f.format(ctx)
	})
	return f.readyErr
}

func (f *FS) format(ctx context.Context) error {
	_, ok, err := f.store.Get(ctx, store.Key{Ino: rootIno, Kind: store.KindInode})
	if err != nil {
		return fs.Errorf("ready", "/", fs.EIO, "%v", err)
	}
	if ok {
		return f.seedAllocator(ctx)
	}

	zlog.Infof(zlog.Str(f.name), "formatting empty store, creating root directory")
	now := nowMs()
	rec := inode.Record{
		Ino: rootIno, Mode: fs.S_IFDIR | fs.S_IRWXU | fs.S_IRWXG | fs.S_IRWXO,
		Uid: f.root.Uid, Gid: f.root.Gid,
		AtimeMs: now, MtimeMs: now, CtimeMs: now, BirthtimeMs: now,
	}
	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf("ready", "/", fs.EIO, "%v", err)
	}
	if err := txn.Put(ctx, store.Key{Ino: rootIno, Kind: store.KindInode}, inode.Encode(rec)); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("ready", "/", fs.EIO, "%v", err)
	}
	if err := txn.Put(ctx, store.Key{Ino: rootIno, Kind: store.KindBlob}, inode.EncodeDir(map[string]uint64{})); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("ready", "/", fs.EIO, "%v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf("ready", "/", fs.EIO, "%v", err)
	}
	return nil
}

func (f *FS) seedAllocator(ctx context.Context) error {
	entries, err := f.store.Entries(ctx)
	if err != nil {
		return fs.Errorf("ready", "/", fs.EIO, "%v", err)
	}
	var max uint64
	for _, e := range entries {
		if e.Ino > max {
			max = e.Ino
		}
	}
	atomic.StoreUint64(&f.nextIno, max+1)
	return nil
}

func (f *FS) allocIno() uint64 {
	return atomic.AddUint64(&f.nextIno, 1) - 1
}

func nowMs() int64 { return time.Now().UnixMilli() }

// getRecord reads and decodes the inode record at ino.
func (f *FS) getRecord(ctx context.Context, r txnReader, ino uint64) (inode.Record, error) {
	buf, ok, err := r.Get(ctx, store.Key{Ino: ino, Kind: store.KindInode})
	if err != nil {
		return inode.Record{}, fs.Errorf("stat", "", fs.EIO, "%v", err)
	}
	if !ok {
		return inode.Record{}, fs.NewError("stat", "", fs.ENOENT)
	}
	return inode.Decode(buf)
}

func (f *FS) getDir(ctx context.Context, r txnReader, ino uint64) (map[string]uint64, error) {
	buf, ok, err := r.Get(ctx, store.Key{Ino: ino, Kind: store.KindBlob})
	if err != nil {
		return nil, fs.Errorf("readdir", "", fs.EIO, "%v", err)
	}
	if !ok {
		return map[string]uint64{}, nil
	}
	return inode.DecodeDir(buf)
}

// txnReader is satisfied by both store.Store and store.Transaction, letting
// traversal helpers run either outside or inside a transaction.
type txnReader interface {
	Get(ctx context.Context, key store.Key) ([]byte, bool, error)
}

// resolve walks path from the root, returning the ino of the final
// component, its immediate parent's ino, and the final component's name.
// For the root path "/" parentIno is rootIno and name is "".
func (f *FS) resolve(ctx context.Context, r txnReader, path string) (ino uint64, parentIno uint64, name string, err error) {
	comps := fs.Components(path)
	cur := rootIno
	parent := rootIno
	var last string
	for _, c := range comps {
		rec, err := f.getRecord(ctx, r, cur)
		if err != nil {
			return 0, 0, "", err
		}
		if !rec.Stats().IsDir() {
			return 0, 0, "", fs.NewError("resolve", path, fs.ENOTDIR)
		}
		dir, err := f.getDir(ctx, r, cur)
		if err != nil {
			return 0, 0, "", err
		}
		next, ok := dir[c]
		if !ok {
			return 0, 0, "", fs.NewError("resolve", path, fs.ENOENT)
		}
		parent = cur
		cur = next
		last = c
	}
	return cur, parent, last, nil
}

func (f *FS) Stat(ctx context.Context, path string, cred fs.Credential) (fs.Stats, error) {
	ino, _, _, err := f.resolve(ctx, f.store, path)
	if err != nil {
		return fs.Stats{}, err
	}
	rec, err := f.getRecord(ctx, f.store, ino)
	if err != nil {
		return fs.Stats{}, err
	}
	return rec.Stats(), nil
}

func (f *FS) Exists(ctx context.Context, path string, cred fs.Credential) (bool, error) {
	_, _, _, err := f.resolve(ctx, f.store, path)
	if err != nil {
		if errno, ok := fs.AsErrno(err); ok && errno == fs.ENOENT {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *FS) Readdir(ctx context.Context, path string, cred fs.Credential) ([]fs.DirEntry, error) {
	ino, _, _, err := f.resolve(ctx, f.store, path)
	if err != nil {
		return nil, err
	}
	rec, err := f.getRecord(ctx, f.store, ino)
	if err != nil {
		return nil, err
	}
	if !rec.Stats().IsDir() {
		return nil, fs.NewError("readdir", path, fs.ENOTDIR)
	}
	if !rec.Stats().HasAccess(fs.R_OK, cred) {
		return nil, fs.NewError("readdir", path, fs.EACCES)
	}
	dir, err := f.getDir(ctx, f.store, ino)
	if err != nil {
		return nil, err
	}
	out := make([]fs.DirEntry, 0, len(dir))
	for name, childIno := range dir {
		childRec, err := f.getRecord(ctx, f.store, childIno)
		if err != nil {
			continue
		}
		out = append(out, fs.DirEntry{Name: name, Ino: childIno, Mode: childRec.Mode})
	}
	return out, nil
}

func (f *FS) Metadata(ctx context.Context) fs.Metadata {
	return fs.Metadata{
		Name:      f.name,
		Readonly:  false,
		BlockSize: fs.BlockSize,
		Type:      fs.FSType,
	}
}
