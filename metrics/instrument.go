package metrics

import (
	"context"

	"github.com/zenfs/zenfs/fs"
)

// errnoNames gives each Errno the short symbolic label metrics use, instead
// of its longer human-readable Error() string.
var errnoNames = map[fs.Errno]string{
	fs.ENOENT:    "ENOENT",
	fs.EEXIST:    "EEXIST",
	fs.ENOTDIR:   "ENOTDIR",
	fs.EISDIR:    "EISDIR",
	fs.ENOTEMPTY: "ENOTEMPTY",
	fs.EINVAL:    "EINVAL",
	fs.EROFS:     "EROFS",
	fs.EPERM:     "EPERM",
	fs.EACCES:    "EACCES",
	fs.ENOTSUP:   "ENOTSUP",
	fs.EIO:       "EIO",
}

func errnoLabel(err error) string {
	if err == nil {
		return ""
	}
	if errno, ok := fs.AsErrno(err); ok {
		if name, ok := errnoNames[errno]; ok {
			return name
		}
	}
	return "EUNKNOWN"
}

// instrumented wraps an fs.FileSystem, recording OpsTotal/ErrorsTotal for
// every call against a fixed mount label, per SPEC_FULL.md §4.10.
type instrumented struct {
	upstream fs.FileSystem
	mount    string
}

var _ fs.FileSystem = (*instrumented)(nil)

// Instrument wraps fsys so every FileSystem operation is counted against
// mountPrefix in OpsTotal/ErrorsTotal.
func Instrument(mountPrefix string, fsys fs.FileSystem) fs.FileSystem {
	return &instrumented{upstream: fsys, mount: mountPrefix}
}

// Unwrap exposes the wrapped FileSystem for introspection that needs to
// look through composers (rc's overlay/bridge lookups).
func (i *instrumented) Unwrap() fs.FileSystem { return i.upstream }

func (i *instrumented) observe(op string, err error) {
	Observe(op, i.mount, errnoLabel(err))
}

func (i *instrumented) Ready(ctx context.Context) error {
	err := i.upstream.Ready(ctx)
	i.observe("ready", err)
	return err
}

func (i *instrumented) Stat(ctx context.Context, path string, cred fs.Credential) (fs.Stats, error) {
	st, err := i.upstream.Stat(ctx, path, cred)
	i.observe("stat", err)
	return st, err
}

func (i *instrumented) Exists(ctx context.Context, path string, cred fs.Credential) (bool, error) {
	ok, err := i.upstream.Exists(ctx, path, cred)
	i.observe("exists", err)
	return ok, err
}

func (i *instrumented) Readdir(ctx context.Context, path string, cred fs.Credential) ([]fs.DirEntry, error) {
	entries, err := i.upstream.Readdir(ctx, path, cred)
	i.observe("readdir", err)
	return entries, err
}

func (i *instrumented) OpenFile(ctx context.Context, path string, flags fs.Flags, cred fs.Credential) (fs.File, error) {
	h, err := i.upstream.OpenFile(ctx, path, flags, cred)
	i.observe("open", err)
	return h, err
}

func (i *instrumented) CreateFile(ctx context.Context, path string, flags fs.Flags, mode uint32, cred fs.Credential) (fs.File, error) {
	h, err := i.upstream.CreateFile(ctx, path, flags, mode, cred)
	i.observe("create", err)
	return h, err
}

func (i *instrumented) Mkdir(ctx context.Context, path string, mode uint32, cred fs.Credential) error {
	err := i.upstream.Mkdir(ctx, path, mode, cred)
	i.observe("mkdir", err)
	return err
}

func (i *instrumented) Rmdir(ctx context.Context, path string, cred fs.Credential) error {
	err := i.upstream.Rmdir(ctx, path, cred)
	i.observe("rmdir", err)
	return err
}

func (i *instrumented) Unlink(ctx context.Context, path string, cred fs.Credential) error {
	err := i.upstream.Unlink(ctx, path, cred)
	i.observe("unlink", err)
	return err
}

func (i *instrumented) Rename(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	err := i.upstream.Rename(ctx, oldPath, newPath, cred)
	i.observe("rename", err)
	return err
}

func (i *instrumented) Link(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	err := i.upstream.Link(ctx, oldPath, newPath, cred)
	i.observe("link", err)
	return err
}

func (i *instrumented) Metadata(ctx context.Context) fs.Metadata {
	return i.upstream.Metadata(ctx)
}
