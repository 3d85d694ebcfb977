// Package mount implements the process-wide mount table: a prefix->
// FileSystem map with longest-component-aligned resolution and a
// best-effort cross-mount rename, per the mount router contract
// (component G).
package mount

import (
	"context"
	"sort"
	"sync"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/internal/zlog"
)

// Table is a process-wide mount table. The zero value is ready to use.
type Table struct {
	mu     sync.RWMutex
	mounts map[string]fs.FileSystem
}

// New returns an empty Table.
func New() *Table {
	return &Table{mounts: make(map[string]fs.FileSystem)}
}

// Mount installs fsys at prefix. prefix must be absolute; EINVAL otherwise.
// EEXIST if a mount already exists at that exact prefix.
func (t *Table) Mount(prefix string, fsys fs.FileSystem) error {
	if !fs.IsAbs(prefix) {
		return fs.NewError("mount", prefix, fs.EINVAL)
	}
	prefix = fs.Clean(prefix)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.mounts[prefix]; exists {
		return fs.NewError("mount", prefix, fs.EEXIST)
	}
	t.mounts[prefix] = fsys
	zlog.Infof(zlog.Str("mount"), "mounted %q", prefix)
	return nil
}

// Unmount removes the mount at prefix. ENOENT if absent.
func (t *Table) Unmount(prefix string) error {
	prefix = fs.Clean(prefix)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.mounts[prefix]; !exists {
		return fs.NewError("umount", prefix, fs.ENOENT)
	}
	delete(t.mounts, prefix)
	zlog.Infof(zlog.Str("mount"), "unmounted %q", prefix)
	return nil
}

// Resolve returns the FileSystem mounted at the longest prefix of absPath
// (aligned to path components) along with the remainder path relative to
// that mount, beginning with "/". ENOENT if no prefix matches.
func (t *Table) Resolve(absPath string) (fs.FileSystem, string, error) {
	absPath = fs.Clean(absPath)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var bestPrefix string
	var best fs.FileSystem
	for prefix, fsys := range t.mounts {
		if !fs.HasPrefixComponents(absPath, prefix) {
			continue
		}
		if best == nil || len(prefix) > len(bestPrefix) {
			bestPrefix, best = prefix, fsys
		}
	}
	if best == nil {
		return nil, "", fs.NewError("resolve", absPath, fs.ENOENT)
	}

	rel := absPath
	if bestPrefix != "/" {
		rel = absPath[len(bestPrefix):]
	}
	if rel == "" {
		rel = "/"
	}
	return best, rel, nil
}

// List returns the mounted prefixes in sorted order, for introspection.
func (t *Table) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.mounts))
	for prefix := range t.mounts {
		out = append(out, prefix)
	}
	sort.Strings(out)
	return out
}

// Get returns the FileSystem mounted at exactly prefix, if any.
func (t *Table) Get(prefix string) (fs.FileSystem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fsys, ok := t.mounts[fs.Clean(prefix)]
	return fsys, ok
}

// Rename resolves both src and dst and performs a same-mount rename
// directly, or a best-effort cross-mount copy+unlink if they resolve to
// different FileSystems (spec §4.1): any mid-way failure leaves the
// partial destination in place and surfaces the underlying error.
func (t *Table) Rename(ctx context.Context, src, dst string, cred fs.Credential) error {
	srcFS, srcRel, err := t.Resolve(src)
	if err != nil {
		return err
	}
	dstFS, dstRel, err := t.Resolve(dst)
	if err != nil {
		return err
	}
	if srcFS == dstFS {
		return srcFS.Rename(ctx, srcRel, dstRel, cred)
	}
	return crossMountMove(ctx, srcFS, srcRel, dstFS, dstRel, cred)
}

// crossMountMove copies the tree rooted at srcRel on srcFS to dstRel on
// dstFS, then unlinks the source tree. Directories are recursed into;
// files are copied by full-buffer read/write. No atomicity is promised
// across the two FileSystems.
func crossMountMove(ctx context.Context, srcFS fs.FileSystem, srcRel string, dstFS fs.FileSystem, dstRel string, cred fs.Credential) error {
	if err := copyTree(ctx, srcFS, srcRel, dstFS, dstRel, cred); err != nil {
		return err
	}
	return removeTree(ctx, srcFS, srcRel, cred)
}

func copyTree(ctx context.Context, srcFS fs.FileSystem, srcPath string, dstFS fs.FileSystem, dstPath string, cred fs.Credential) error {
	st, err := srcFS.Stat(ctx, srcPath, cred)
	if err != nil {
		return err
	}
	if st.IsDir() {
		if err := dstFS.Mkdir(ctx, dstPath, st.Mode&^fs.S_IFMT, cred); err != nil {
			if errno, ok := fs.AsErrno(err); !ok || errno != fs.EEXIST {
				return err
			}
		}
		entries, err := srcFS.Readdir(ctx, srcPath, cred)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := copyTree(ctx, srcFS, fs.Join(srcPath, e.Name), dstFS, fs.Join(dstPath, e.Name), cred); err != nil {
				return err
			}
		}
		return nil
	}

	src, err := srcFS.OpenFile(ctx, srcPath, fs.Flags{Read: true}, cred)
	if err != nil {
		return err
	}
	defer src.Close(ctx)

	dstH, err := dstFS.CreateFile(ctx, dstPath, fs.Flags{Write: true, Create: true, Truncate: true}, st.Mode&^fs.S_IFMT, cred)
	if err != nil {
		return err
	}
	defer dstH.Close(ctx)

	buf := make([]byte, st.Size)
	n, err := src.Read(ctx, buf, 0)
	if err != nil {
		return err
	}
	if _, err := dstH.Write(ctx, buf[:n], 0); err != nil {
		return err
	}
	return dstH.Sync(ctx)
}

func removeTree(ctx context.Context, fsys fs.FileSystem, path string, cred fs.Credential) error {
	st, err := fsys.Stat(ctx, path, cred)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fsys.Unlink(ctx, path, cred)
	}
	entries, err := fsys.Readdir(ctx, path, cred)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := removeTree(ctx, fsys, fs.Join(path, e.Name), cred); err != nil {
			return err
		}
	}
	return fsys.Rmdir(ctx, path, cred)
}
