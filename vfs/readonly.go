package vfs

import (
	"context"

	"github.com/zenfs/zenfs/fs"
)

// Readonly wraps an fs.FileSystem, rejecting every mutating operation with
// EROFS and reporting Metadata().Readonly = true, per component I.
type Readonly struct {
	upstream fs.FileSystem
}

var _ fs.FileSystem = (*Readonly)(nil)

// NewReadonly wraps upstream in a Readonly composer.
func NewReadonly(upstream fs.FileSystem) *Readonly {
	return &Readonly{upstream: upstream}
}

// Unwrap exposes the wrapped FileSystem for introspection that needs to
// look through composers (rc's overlay/bridge lookups).
func (r *Readonly) Unwrap() fs.FileSystem { return r.upstream }

func (r *Readonly) Ready(ctx context.Context) error { return r.upstream.Ready(ctx) }

func (r *Readonly) Stat(ctx context.Context, path string, cred fs.Credential) (fs.Stats, error) {
	return r.upstream.Stat(ctx, path, cred)
}

func (r *Readonly) Exists(ctx context.Context, path string, cred fs.Credential) (bool, error) {
	return r.upstream.Exists(ctx, path, cred)
}

func (r *Readonly) Readdir(ctx context.Context, path string, cred fs.Credential) ([]fs.DirEntry, error) {
	return r.upstream.Readdir(ctx, path, cred)
}

func (r *Readonly) OpenFile(ctx context.Context, path string, flags fs.Flags, cred fs.Credential) (fs.File, error) {
	if flags.Write {
		return nil, fs.NewError("open", path, fs.EROFS)
	}
	h, err := r.upstream.OpenFile(ctx, path, flags, cred)
	if err != nil {
		return nil, err
	}
	return &readonlyFile{upstream: h}, nil
}

func (r *Readonly) CreateFile(ctx context.Context, path string, flags fs.Flags, mode uint32, cred fs.Credential) (fs.File, error) {
	return nil, fs.NewError("create", path, fs.EROFS)
}

func (r *Readonly) Mkdir(ctx context.Context, path string, mode uint32, cred fs.Credential) error {
	return fs.NewError("mkdir", path, fs.EROFS)
}

func (r *Readonly) Rmdir(ctx context.Context, path string, cred fs.Credential) error {
	return fs.NewError("rmdir", path, fs.EROFS)
}

func (r *Readonly) Unlink(ctx context.Context, path string, cred fs.Credential) error {
	return fs.NewError("unlink", path, fs.EROFS)
}

func (r *Readonly) Rename(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	return fs.NewError("rename", oldPath, fs.EROFS)
}

func (r *Readonly) Link(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	return fs.NewError("link", oldPath, fs.EROFS)
}

func (r *Readonly) Metadata(ctx context.Context) fs.Metadata {
	m := r.upstream.Metadata(ctx)
	m.Readonly = true
	return m
}

// readonlyFile rejects Write/Truncate/Chmod/Chown on a handle opened
// through Readonly, even if the caller somehow obtained write access on
// the upstream handle directly.
type readonlyFile struct {
	upstream fs.File
}

func (f *readonlyFile) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	return f.upstream.Read(ctx, buf, offset)
}

func (f *readonlyFile) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	return 0, fs.NewError("write", "", fs.EROFS)
}

func (f *readonlyFile) Stat(ctx context.Context) (fs.Stats, error) { return f.upstream.Stat(ctx) }

func (f *readonlyFile) Truncate(ctx context.Context, size int64) error {
	return fs.NewError("truncate", "", fs.EROFS)
}

func (f *readonlyFile) Chmod(ctx context.Context, mode uint32) error {
	return fs.NewError("chmod", "", fs.EROFS)
}

func (f *readonlyFile) Chown(ctx context.Context, uid, gid uint32) error {
	return fs.NewError("chown", "", fs.EROFS)
}

func (f *readonlyFile) Sync(ctx context.Context) error { return f.upstream.Sync(ctx) }

func (f *readonlyFile) Close(ctx context.Context) error { return f.upstream.Close(ctx) }
