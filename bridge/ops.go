package bridge

import (
	"context"

	"github.com/zenfs/zenfs/fs"
)

func (b *Bridge) Stat(ctx context.Context, path string, cred fs.Credential) (fs.Stats, error) {
	if err := b.latchedErr(); err != nil {
		return fs.Stats{}, err
	}
	return b.mirror.Stat(ctx, path, cred)
}

func (b *Bridge) Exists(ctx context.Context, path string, cred fs.Credential) (bool, error) {
	if err := b.latchedErr(); err != nil {
		return false, err
	}
	return b.mirror.Exists(ctx, path, cred)
}

func (b *Bridge) Readdir(ctx context.Context, path string, cred fs.Credential) ([]fs.DirEntry, error) {
	if err := b.latchedErr(); err != nil {
		return nil, err
	}
	return b.mirror.Readdir(ctx, path, cred)
}

func (b *Bridge) OpenFile(ctx context.Context, path string, flags fs.Flags, cred fs.Credential) (fs.File, error) {
	if err := b.latchedErr(); err != nil {
		return nil, err
	}
	h, err := b.mirror.OpenFile(ctx, path, flags, cred)
	if err != nil {
		return nil, err
	}
	if !flags.Write {
		return h, nil
	}
	return &bridgeFile{bridge: b, mirrorFile: h, path: path}, nil
}

func (b *Bridge) CreateFile(ctx context.Context, path string, flags fs.Flags, mode uint32, cred fs.Credential) (fs.File, error) {
	if err := b.latchedErr(); err != nil {
		return nil, err
	}
	h, err := b.mirror.CreateFile(ctx, path, flags, mode, cred)
	if err != nil {
		return nil, err
	}
	b.enqueue(ctx, func(ctx context.Context) error {
		bh, err := b.backend.CreateFile(ctx, path, flags, mode, cred)
		if err != nil {
			return err
		}
		return bh.Close(ctx)
	})
	return &bridgeFile{bridge: b, mirrorFile: h, path: path}, nil
}

func (b *Bridge) Mkdir(ctx context.Context, path string, mode uint32, cred fs.Credential) error {
	if err := b.latchedErr(); err != nil {
		return err
	}
	if err := b.mirror.Mkdir(ctx, path, mode, cred); err != nil {
		return err
	}
	b.enqueue(ctx, func(ctx context.Context) error {
		return b.backend.Mkdir(ctx, path, mode, cred)
	})
	return nil
}

func (b *Bridge) Rmdir(ctx context.Context, path string, cred fs.Credential) error {
	if err := b.latchedErr(); err != nil {
		return err
	}
	if err := b.mirror.Rmdir(ctx, path, cred); err != nil {
		return err
	}
	b.enqueue(ctx, func(ctx context.Context) error {
		return b.backend.Rmdir(ctx, path, cred)
	})
	return nil
}

func (b *Bridge) Unlink(ctx context.Context, path string, cred fs.Credential) error {
	if err := b.latchedErr(); err != nil {
		return err
	}
	if err := b.mirror.Unlink(ctx, path, cred); err != nil {
		return err
	}
	b.enqueue(ctx, func(ctx context.Context) error {
		return b.backend.Unlink(ctx, path, cred)
	})
	return nil
}

func (b *Bridge) Rename(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	if err := b.latchedErr(); err != nil {
		return err
	}
	if err := b.mirror.Rename(ctx, oldPath, newPath, cred); err != nil {
		return err
	}
	b.enqueue(ctx, func(ctx context.Context) error {
		return b.backend.Rename(ctx, oldPath, newPath, cred)
	})
	return nil
}

func (b *Bridge) Link(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	if err := b.latchedErr(); err != nil {
		return err
	}
	if err := b.mirror.Link(ctx, oldPath, newPath, cred); err != nil {
		return err
	}
	b.enqueue(ctx, func(ctx context.Context) error {
		return b.backend.Link(ctx, oldPath, newPath, cred)
	})
	return nil
}

func (b *Bridge) Metadata(ctx context.Context) fs.Metadata {
	m := b.mirror.Metadata(ctx)
	m.NoAsyncCache = b.disableAsyncCache
	return m
}

// bridgeFile wraps a mirror file handle opened for writing so Write/
// Truncate/Chmod/Chown also enqueue the equivalent mutation against the
// async backend, applying mirror-first per spec §4.4. Read, Stat, Sync and
// Close act on the mirror handle only.
type bridgeFile struct {
	bridge     *Bridge
	mirrorFile fs.File
	path       string
}

func (f *bridgeFile) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	return f.mirrorFile.Read(ctx, buf, offset)
}

func (f *bridgeFile) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	n, err := f.mirrorFile.Write(ctx, buf, offset)
	if err != nil {
		return n, err
	}
	data := append([]byte(nil), buf[:n]...)
	f.bridge.enqueue(ctx, func(ctx context.Context) error {
		bh, err := f.bridge.backend.OpenFile(ctx, f.path, fs.Flags{Write: true}, fs.Root)
		if err != nil {
			return err
		}
		defer bh.Close(ctx)
		_, err = bh.Write(ctx, data, offset)
		return err
	})
	return n, nil
}

func (f *bridgeFile) Stat(ctx context.Context) (fs.Stats, error) { return f.mirrorFile.Stat(ctx) }

func (f *bridgeFile) Truncate(ctx context.Context, size int64) error {
	if err := f.mirrorFile.Truncate(ctx, size); err != nil {
		return err
	}
	f.bridge.enqueue(ctx, func(ctx context.Context) error {
		bh, err := f.bridge.backend.OpenFile(ctx, f.path, fs.Flags{Write: true}, fs.Root)
		if err != nil {
			return err
		}
		defer bh.Close(ctx)
		return bh.Truncate(ctx, size)
	})
	return nil
}

func (f *bridgeFile) Chmod(ctx context.Context, mode uint32) error {
	if err := f.mirrorFile.Chmod(ctx, mode); err != nil {
		return err
	}
	f.bridge.enqueue(ctx, func(ctx context.Context) error {
		bh, err := f.bridge.backend.OpenFile(ctx, f.path, fs.Flags{Write: true}, fs.Root)
		if err != nil {
			return err
		}
		defer bh.Close(ctx)
		return bh.Chmod(ctx, mode)
	})
	return nil
}

func (f *bridgeFile) Chown(ctx context.Context, uid, gid uint32) error {
	if err := f.mirrorFile.Chown(ctx, uid, gid); err != nil {
		return err
	}
	f.bridge.enqueue(ctx, func(ctx context.Context) error {
		bh, err := f.bridge.backend.OpenFile(ctx, f.path, fs.Flags{Write: true}, fs.Root)
		if err != nil {
			return err
		}
		defer bh.Close(ctx)
		return bh.Chown(ctx, uid, gid)
	})
	return nil
}

func (f *bridgeFile) Sync(ctx context.Context) error { return f.mirrorFile.Sync(ctx) }

func (f *bridgeFile) Close(ctx context.Context) error { return f.mirrorFile.Close(ctx) }
