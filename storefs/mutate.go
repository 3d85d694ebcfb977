package storefs

import (
	"context"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/fs/inode"
	"github.com/zenfs/zenfs/fs/store"
)

// writeDir rewrites ino's directory blob from entries within txn.
func (f *FS) writeDir(ctx context.Context, txn store.Transaction, ino uint64, entries map[string]uint64) error {
	return txn.Put(ctx, store.Key{Ino: ino, Kind: store.KindBlob}, inode.EncodeDir(entries))
}

// touch updates mtime/ctime on the record for ino within txn.
func (f *FS) touch(ctx context.Context, txn store.Transaction, ino uint64) error {
	rec, err := f.getRecord(ctx, txn, ino)
	if err != nil {
		return err
	}
	now := nowMs()
	rec.MtimeMs, rec.CtimeMs = now, now
	return txn.Put(ctx, store.Key{Ino: ino, Kind: store.KindInode}, inode.Encode(rec))
}

func (f *FS) Mkdir(ctx context.Context, path string, mode uint32, cred fs.Credential) error {
	dirPath, name := fs.Split(path)
	if name == "" {
		return fs.NewError("mkdir", path, fs.EEXIST)
	}

	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf("mkdir", path, fs.EIO, "%v", err)
	}

	parentIno, _, _, err := f.resolve(ctx, txn, dirPath)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	parentRec, err := f.getRecord(ctx, txn, parentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	if !parentRec.Stats().IsDir() {
		txn.Abort(ctx)
		return fs.NewError("mkdir", path, fs.ENOTDIR)
	}
	if !parentRec.Stats().HasAccess(fs.W_OK|fs.X_OK, cred) {
		txn.Abort(ctx)
		return fs.NewError("mkdir", path, fs.EACCES)
	}
	entries, err := f.getDir(ctx, txn, parentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	if _, exists := entries[name]; exists {
		txn.Abort(ctx)
		return fs.NewError("mkdir", path, fs.EEXIST)
	}

	newIno := f.allocIno()
	now := nowMs()
	rec := inode.Record{
		Ino: newIno, Mode: fs.S_IFDIR | (mode &^ fs.S_IFMT),
		Uid: cred.Uid, Gid: cred.Gid,
		AtimeMs: now, MtimeMs: now, CtimeMs: now, BirthtimeMs: now,
	}
	if err := txn.Put(ctx, store.Key{Ino: newIno, Kind: store.KindInode}, inode.Encode(rec)); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("mkdir", path, fs.EIO, "%v", err)
	}
	if err := f.writeDir(ctx, txn, newIno, map[string]uint64{}); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("mkdir", path, fs.EIO, "%v", err)
	}

	entries[name] = newIno
	if err := f.writeDir(ctx, txn, parentIno, entries); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("mkdir", path, fs.EIO, "%v", err)
	}
	if err := f.touch(ctx, txn, parentIno); err != nil {
		txn.Abort(ctx)
		return err
	}

	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf("mkdir", path, fs.EIO, "%v", err)
	}
	return nil
}

// removeEntry is the shared implementation of unlink and rmdir: it removes
// name from its parent's directory blob and deletes the target's inode
// record and data blob, after checking wantDir against the target's type.
func (f *FS) removeEntry(ctx context.Context, op, path string, cred fs.Credential, wantDir bool) error {
	dirPath, name := fs.Split(path)
	if name == "" {
		return fs.NewError(op, path, fs.EPERM)
	}

	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf(op, path, fs.EIO, "%v", err)
	}

	parentIno, _, _, err := f.resolve(ctx, txn, dirPath)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	parentRec, err := f.getRecord(ctx, txn, parentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	if !parentRec.Stats().HasAccess(fs.W_OK|fs.X_OK, cred) {
		txn.Abort(ctx)
		return fs.NewError(op, path, fs.EACCES)
	}
	entries, err := f.getDir(ctx, txn, parentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	targetIno, ok := entries[name]
	if !ok {
		txn.Abort(ctx)
		return fs.NewError(op, path, fs.ENOENT)
	}
	targetRec, err := f.getRecord(ctx, txn, targetIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	isDir := targetRec.Stats().IsDir()
	if wantDir && !isDir {
		txn.Abort(ctx)
		return fs.NewError(op, path, fs.ENOTDIR)
	}
	if !wantDir && isDir {
		txn.Abort(ctx)
		return fs.NewError(op, path, fs.EISDIR)
	}
	if isDir {
		childEntries, err := f.getDir(ctx, txn, targetIno)
		if err != nil {
			txn.Abort(ctx)
			return err
		}
		if len(childEntries) > 0 {
			txn.Abort(ctx)
			return fs.NewError(op, path, fs.ENOTEMPTY)
		}
	}

	delete(entries, name)
	if err := f.writeDir(ctx, txn, parentIno, entries); err != nil {
		txn.Abort(ctx)
		return fs.Errorf(op, path, fs.EIO, "%v", err)
	}
	if err := txn.Delete(ctx, store.Key{Ino: targetIno, Kind: store.KindInode}); err != nil {
		txn.Abort(ctx)
		return fs.Errorf(op, path, fs.EIO, "%v", err)
	}
	if err := txn.Delete(ctx, store.Key{Ino: targetIno, Kind: store.KindBlob}); err != nil {
		txn.Abort(ctx)
		return fs.Errorf(op, path, fs.EIO, "%v", err)
	}
	if err := f.touch(ctx, txn, parentIno); err != nil {
		txn.Abort(ctx)
		return err
	}

	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf(op, path, fs.EIO, "%v", err)
	}
	return nil
}

func (f *FS) Unlink(ctx context.Context, path string, cred fs.Credential) error {
	return f.removeEntry(ctx, "unlink", path, cred, false)
}

func (f *FS) Rmdir(ctx context.Context, path string, cred fs.Credential) error {
	return f.removeEntry(ctx, "rmdir", path, cred, true)
}

func (f *FS) Link(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	dirPath, name := fs.Split(newPath)
	if name == "" {
		return fs.NewError("link", newPath, fs.EEXIST)
	}

	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf("link", newPath, fs.EIO, "%v", err)
	}

	srcIno, _, _, err := f.resolve(ctx, txn, oldPath)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	dstParentIno, _, _, err := f.resolve(ctx, txn, dirPath)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	dstParentRec, err := f.getRecord(ctx, txn, dstParentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	if !dstParentRec.Stats().HasAccess(fs.W_OK|fs.X_OK, cred) {
		txn.Abort(ctx)
		return fs.NewError("link", newPath, fs.EACCES)
	}
	entries, err := f.getDir(ctx, txn, dstParentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	if _, exists := entries[name]; exists {
		txn.Abort(ctx)
		return fs.NewError("link", newPath, fs.EEXIST)
	}
	entries[name] = srcIno
	if err := f.writeDir(ctx, txn, dstParentIno, entries); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("link", newPath, fs.EIO, "%v", err)
	}
	if err := f.touch(ctx, txn, dstParentIno); err != nil {
		txn.Abort(ctx)
		return err
	}
	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf("link", newPath, fs.EIO, "%v", err)
	}
	return nil
}

func (f *FS) Rename(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	oldDir, oldName := fs.Split(oldPath)
	newDir, newName := fs.Split(newPath)
	if oldName == "" || newName == "" {
		return fs.NewError("rename", oldPath, fs.EINVAL)
	}

	txn, err := f.store.BeginTransaction(ctx)
	if err != nil {
		return fs.Errorf("rename", oldPath, fs.EIO, "%v", err)
	}

	oldParentIno, _, _, err := f.resolve(ctx, txn, oldDir)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	oldEntries, err := f.getDir(ctx, txn, oldParentIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	srcIno, ok := oldEntries[oldName]
	if !ok {
		txn.Abort(ctx)
		return fs.NewError("rename", oldPath, fs.ENOENT)
	}
	srcRec, err := f.getRecord(ctx, txn, srcIno)
	if err != nil {
		txn.Abort(ctx)
		return err
	}

	newParentIno, _, _, err := f.resolve(ctx, txn, newDir)
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	sameParent := newParentIno == oldParentIno
	var newEntries map[string]uint64
	if sameParent {
		newEntries = oldEntries
	} else {
		newEntries, err = f.getDir(ctx, txn, newParentIno)
		if err != nil {
			txn.Abort(ctx)
			return err
		}
	}

	if dstIno, exists := newEntries[newName]; exists {
		dstRec, err := f.getRecord(ctx, txn, dstIno)
		if err != nil {
			txn.Abort(ctx)
			return err
		}
		srcIsDir, dstIsDir := srcRec.Stats().IsDir(), dstRec.Stats().IsDir()
		if srcIsDir && !dstIsDir {
			txn.Abort(ctx)
			return fs.NewError("rename", newPath, fs.ENOTDIR)
		}
		if !srcIsDir && dstIsDir {
			txn.Abort(ctx)
			return fs.NewError("rename", newPath, fs.EISDIR)
		}
		if dstIsDir {
			dstEntries, err := f.getDir(ctx, txn, dstIno)
			if err != nil {
				txn.Abort(ctx)
				return err
			}
			if len(dstEntries) > 0 {
				txn.Abort(ctx)
				return fs.NewError("rename", newPath, fs.ENOTEMPTY)
			}
		}
		txn.Delete(ctx, store.Key{Ino: dstIno, Kind: store.KindInode})
		txn.Delete(ctx, store.Key{Ino: dstIno, Kind: store.KindBlob})
	}

	delete(oldEntries, oldName)
	newEntries[newName] = srcIno

	if err := f.writeDir(ctx, txn, oldParentIno, oldEntries); err != nil {
		txn.Abort(ctx)
		return fs.Errorf("rename", oldPath, fs.EIO, "%v", err)
	}
	if !sameParent {
		if err := f.writeDir(ctx, txn, newParentIno, newEntries); err != nil {
			txn.Abort(ctx)
			return fs.Errorf("rename", newPath, fs.EIO, "%v", err)
		}
	}
	if err := f.touch(ctx, txn, oldParentIno); err != nil {
		txn.Abort(ctx)
		return err
	}
	if !sameParent {
		if err := f.touch(ctx, txn, newParentIno); err != nil {
			txn.Abort(ctx)
			return err
		}
	}

	if err := txn.Commit(ctx); err != nil {
		return fs.Errorf("rename", oldPath, fs.EIO, "%v", err)
	}
	return nil
}
