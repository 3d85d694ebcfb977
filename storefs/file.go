package storefs

import (
	"context"
	"sync"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/fs/inode"
	"github.com/zenfs/zenfs/fs/store"
)

// handle is the in-memory buffered file handle returned by OpenFile and
// CreateFile. Writes accumulate in buf and are flushed to the store's data
// blob on Sync and Close, per the "buffers in memory between explicit
// syncs" contract.
type handle struct {
	fs    *FS
	ino   uint64
	flags fs.Flags
	cred  fs.Credential

	mu     sync.Mutex
	buf    []byte
	dirty  bool
	closed bool
}

var _ fs.File = (*handle)(nil)

func (h *handle) load(ctx context.Context) error {
	buf, ok, err := h.fs.store.Get(ctx, store.Key{Ino: h.ino, Kind: store.KindBlob})
	if err != nil {
		return fs.Errorf("open", "", fs.EIO, "%v", err)
	}
	if ok {
		h.buf = append([]byte(nil), buf...)
	}
	return nil
}

func (h *handle) Read(ctx context.Context, dst []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fs.ErrClosed
	}
	if !h.flags.Read {
		return 0, fs.NewError("read", "", fs.EACCES)
	}
	if offset < 0 || offset >= int64(len(h.buf)) {
		return 0, nil
	}
	n := copy(dst, h.buf[offset:])
	return n, nil
}

func (h *handle) Write(ctx context.Context, src []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fs.ErrClosed
	}
	if !h.flags.Write {
		return 0, fs.NewError("write", "", fs.EACCES)
	}
	end := offset + int64(len(src))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[offset:end], src)
	h.dirty = true
	return len(src), nil
}

func (h *handle) Stat(ctx context.Context) (fs.Stats, error) {
	rec, err := h.fs.getRecord(ctx, h.fs.store, h.ino)
	if err != nil {
		return fs.Stats{}, err
	}
	return rec.Stats(), nil
}

func (h *handle) Truncate(ctx context.Context, size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fs.ErrClosed
	}
	if size < 0 {
		return fs.NewError("truncate", "", fs.EINVAL)
	}
	if int64(len(h.buf)) == size {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, h.buf)
	h.buf = grown
	h.dirty = true
	return nil
}

func (h *handle) Chmod(ctx context.Context, mode uint32) error {
	return h.fs.updateRecord(ctx, h.ino, func(rec *inode.Record) {
		rec.Mode = (rec.Mode & fs.S_IFMT) | (mode &^ fs.S_IFMT)
	})
}

func (h *handle) Chown(ctx context.Context, uid, gid uint32) error {
	return h.fs.updateRecord(ctx, h.ino, func(rec *inode.Record) {
		rec.Uid, rec.Gid = uid, gid
	})
}

func (h *handle) Sync(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked(ctx)
}

func (h *handle) flushLocked(ctx context.Context) error {
	if h.closed {
		return fs.ErrClosed
	}
	if !h.dirty {
		return nil
	}
	txn, err := h.fs.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf("sync", "", fs.EIO, "%v", err)
	}
	if err := txn.Put(ctx, store.Key{Ino: h.ino, Kind: store.KindBlob}, h.buf); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("sync", "", fs.EIO, "%v", err)
	}
	rec, err := h.fs.getRecord(ctx, txn, h.ino)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	now := nowMs()
	rec.Size = int64(len(h.buf))
	rec.MtimeMs, rec.CtimeMs = now, now
	if err := txn.Put(ctx, store.Key{Ino: h.ino, Kind: store.KindInode}, inode.Encode(rec)); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("sync", "", fs.EIO, "%v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf("sync", "", fs.EIO, "%v", err)
	}
	h.dirty = false
	return nil
}

func (h *handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	err := h.flushLocked(ctx)
	h.closed = true
	return err
}

// updateRecord reads, mutates, and rewrites ino's inode record in a single
// transaction, used by handle.Chmod/Chown.
func (f *FS) updateRecord(ctx context.Context, ino uint64, mutate func(*inode.Record)) error {
	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf("update", "", fs.EIO, "%v", err)
	}
	rec, err := f.getRecord(ctx, txn, ino)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	mutate(&rec)
	rec.CtimeMs = nowMs()
	if err := txn.Put(ctx, store.Key{Ino: ino, Kind: store.KindInode}, inode.Encode(rec)); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("update", "", fs.EIO, "%v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf("update", "", fs.EIO, "%v", err)
	}
	return nil
}

func (f *FS) OpenFile(ctx context.Context, path string, flags fs.Flags, cred fs.Credential) (fs.File, error) {
	ino, _, _, err := f.resolve(ctx, f.store, path)
	if err != nil {
		return nil, err
	}
	rec, err := f.getRecord(ctx, f.store, ino)
	if err != nil {
		return nil, err
	}
	if rec.Stats().IsDir() {
		return nil, fs.NewError("open", path, fs.EISDIR)
	}
	mode := uint32(0)
	if flags.Read {
		mode |= fs.R_OK
	}
	if flags.Write {
		mode |= fs.W_OK
	}
	if !rec.Stats().HasAccess(mode, cred) {
		return nil, fs.NewError("open", path, fs.EACCES)
	}
	h := &handle{fs: f, ino: ino, flags: flags, cred: cred}
	if err := h.load(ctx); err != nil {
		return nil, err
	}
	if flags.Truncate {
		h.buf = nil
		h.dirty = true
	}
	return h, nil
}

func (f *FS) CreateFile(ctx context.Context, path string, flags fs.Flags, mode uint32, cred fs.Credential) (fs.File, error) {
	dirPath, name := fs.Split(path)
	if name == "" {
		return nil, fs.NewError("create", path, fs.EEXIST)
	}

	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return nil, fs.Errorf("create", path, fs.EIO, "%v", err)
	}
	parentIno, _, _, err := f.resolve(ctx, txn, dirPath)
	if err != nil {
		txn.Abort(ctx)
		return nil, err
	}
	parentRec, err := f.getRecord(ctx, txn, parentIno)
	if err != nil {
		txn.Abort(ctx)
		return nil, err
	}
	if !parentRec.Stats().HasAccess(fs.W_OK|fs.X_OK, cred) {
		txn.Abort(ctx)
		return nil, fs.NewError("create", path, fs.EACCES)
	}
	entries, err := f.getDir(ctx, txn, parentIno)
	if err != nil {
		txn.Abort(ctx)
		return nil, err
	}
	if _, exists := entries[name]; exists {
		txn.Abort(ctx)
		if flags.Exclusive {
			return nil, fs.NewError("create", path, fs.EEXIST)
		}
		return f.OpenFile(ctx, path, flags, cred)
	}

	newIno := f.allocIno()
	now := nowMs()
	rec := inode.Record{
		Ino: newIno, Mode: fs.S_IFREG | (mode &^ fs.S_IFMT),
		Uid: cred.Uid, Gid: cred.Gid,
		AtimeMs: now, MtimeMs: now, CtimeMs: now, BirthtimeMs: now,
	}
	if err := txn.Put(ctx, store.Key{Ino: newIno, Kind: store.KindInode}, inode.Encode(rec)); err != nil {
		txn.Abort(ctx)
		return nil, fs.Errorf("create", path, fs.EIO, "%v", err)
	}
	if err := txn.Put(ctx, store.Key{Ino: newIno, Kind: store.KindBlob}, nil); err != nil {
		txn.Abort(ctx)
		return nil, fs.Errorf("create", path, fs.EIO, "%v", err)
	}
	entries[name] = newIno
	if err := f.writeDir(ctx, txn, parentIno, entries); err != nil {
		txn.Abort(ctx)
		return nil, fs.Errorf("create", path, fs.EIO, "%v", err)
	}
	if err := f.touch(ctx, txn, parentIno); err != nil {
		txn.Abort(ctx)
		return nil, err
	}
	if err := txn.Commit(ctx); err != nil {
		return nil, fs.Errorf("create", path, fs.EIO, "%v", err)
	}

	return &handle{fs: f, ino: newIno, flags: flags, cred: cred}, nil
}
