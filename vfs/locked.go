// Package vfs implements the three behavioral composers that wrap an
// fs.FileSystem without changing its storage model: Locked (mutual
// exclusion), Readonly (write rejection), and Overlay (copy-on-write
// union of a writable and a read-only layer), per components H-J.
package vfs

import (
	"context"
	"sync"

	"github.com/zenfs/zenfs/fs"
)

// Locked wraps any fs.FileSystem with a single sync.Mutex around every
// public operation. Waiters are granted the lock in whatever order
// sync.Mutex chooses, which is not strictly their arrival order.
// Reentrancy is forbidden: a call that reaches back into
// the same Locked instance from within another call deadlocks, matching
// the single-threaded-cooperative scheduling model this composer exists to
// enforce (spec §5).
type Locked struct {
	upstream fs.FileSystem
	mu       sync.Mutex
}

var _ fs.FileSystem = (*Locked)(nil)

// NewLocked wraps upstream in a Locked composer.
func NewLocked(upstream fs.FileSystem) *Locked {
	return &Locked{upstream: upstream}
}

// Unwrap exposes the wrapped FileSystem for introspection that needs to
// look through composers (rc's overlay/bridge lookups).
func (l *Locked) Unwrap() fs.FileSystem { return l.upstream }

func (l *Locked) Ready(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Ready(ctx)
}

func (l *Locked) Stat(ctx context.Context, path string, cred fs.Credential) (fs.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Stat(ctx, path, cred)
}

func (l *Locked) Exists(ctx context.Context, path string, cred fs.Credential) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Exists(ctx, path, cred)
}

func (l *Locked) Readdir(ctx context.Context, path string, cred fs.Credential) ([]fs.DirEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Readdir(ctx, path, cred)
}

func (l *Locked) OpenFile(ctx context.Context, path string, flags fs.Flags, cred fs.Credential) (fs.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, err := l.upstream.OpenFile(ctx, path, flags, cred)
	if err != nil {
		return nil, err
	}
	return &lockedFile{upstream: h, mu: &l.mu}, nil
}

func (l *Locked) CreateFile(ctx context.Context, path string, flags fs.Flags, mode uint32, cred fs.Credential) (fs.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, err := l.upstream.CreateFile(ctx, path, flags, mode, cred)
	if err != nil {
		return nil, err
	}
	return &lockedFile{upstream: h, mu: &l.mu}, nil
}

func (l *Locked) Mkdir(ctx context.Context, path string, mode uint32, cred fs.Credential) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Mkdir(ctx, path, mode, cred)
}

func (l *Locked) Rmdir(ctx context.Context, path string, cred fs.Credential) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Rmdir(ctx, path, cred)
}

func (l *Locked) Unlink(ctx context.Context, path string, cred fs.Credential) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Unlink(ctx, path, cred)
}

func (l *Locked) Rename(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Rename(ctx, oldPath, newPath, cred)
}

func (l *Locked) Link(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Link(ctx, oldPath, newPath, cred)
}

func (l *Locked) Metadata(ctx context.Context) fs.Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream.Metadata(ctx)
}

// lockedFile wraps a file handle opened through Locked so its operations
// also serialize against the parent FileSystem's mutex, per spec §5's
// requirement that a handle's lifetime stays inside LockedFS's discipline.
type lockedFile struct {
	upstream fs.File
	mu       *sync.Mutex
}

func (f *lockedFile) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Read(ctx, buf, offset)
}

func (f *lockedFile) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Write(ctx, buf, offset)
}

func (f *lockedFile) Stat(ctx context.Context) (fs.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Stat(ctx)
}

func (f *lockedFile) Truncate(ctx context.Context, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Truncate(ctx, size)
}

func (f *lockedFile) Chmod(ctx context.Context, mode uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Chmod(ctx, mode)
}

func (f *lockedFile) Chown(ctx context.Context, uid, gid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Chown(ctx, uid, gid)
}

func (f *lockedFile) Sync(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Sync(ctx)
}

func (f *lockedFile) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstream.Close(ctx)
}
