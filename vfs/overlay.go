package vfs

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/internal/zlog"
	"github.com/zenfs/zenfs/metrics"
)

const deletedLogPath = "/.deleted"

// Overlay composes a writable layer W over a read-only layer R, per
// component J. Deletions of names that still exist on R are recorded in a
// deletion log at /.deleted on W instead of being applied to R.
type Overlay struct {
	w fs.FileSystem
	r fs.FileSystem

	mu           sync.Mutex
	deletedNames map[string]bool

	flushSem *semaphore.Weighted
	dirtyMu  sync.Mutex
	dirty    bool

	errMu sync.Mutex
	err   error

	label string
}

var _ fs.FileSystem = (*Overlay)(nil)

// OverlayOption configures an Overlay at construction time.
type OverlayOption func(*Overlay)

// WithOverlayLabel tags this Overlay's deleted-count gauge with name, so
// zenfs_overlay_deleted_total{mount} can be attributed to the mount the
// Overlay backs. Overlays created without a label report under the writable
// layer's Metadata().Name.
func WithOverlayLabel(name string) OverlayOption {
	return func(o *Overlay) { o.label = name }
}

// NewOverlay composes w (writable) over r (read-only).
func NewOverlay(w, r fs.FileSystem, opts ...OverlayOption) *Overlay {
	o := &Overlay{
		w: w, r: r,
		deletedNames: make(map[string]bool),
		flushSem:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// metricLabel identifies this Overlay in per-mount gauges: an explicit
// WithOverlayLabel wins, otherwise the writable layer's own Metadata().Name.
func (o *Overlay) metricLabel(ctx context.Context) string {
	if o.label != "" {
		return o.label
	}
	return o.w.Metadata(ctx).Name
}

func (o *Overlay) reportDeletedCount(ctx context.Context) {
	o.mu.Lock()
	n := len(o.deletedNames)
	o.mu.Unlock()
	metrics.OverlayDeletedTotal.WithLabelValues(o.metricLabel(ctx)).Set(float64(n))
}

func (o *Overlay) Ready(ctx context.Context) error {
	if err := o.w.Ready(ctx); err != nil {
		return err
	}
	if err := o.r.Ready(ctx); err != nil {
		return err
	}
	exists, err := o.w.Exists(ctx, deletedLogPath, fs.Root)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	h, err := o.w.OpenFile(ctx, deletedLogPath, fs.Flags{Read: true}, fs.Root)
	if err != nil {
		return err
	}
	defer h.Close(ctx)
	st, err := h.Stat(ctx)
	if err != nil {
		return err
	}
	buf := make([]byte, st.Size)
	if _, err := h.Read(ctx, buf, 0); err != nil {
		return err
	}

	o.mu.Lock()
	for _, line := range strings.Split(string(buf), "\n") {
		if strings.HasPrefix(line, "d") {
			o.deletedNames[line[1:]] = true
		}
	}
	o.mu.Unlock()
	o.reportDeletedCount(ctx)
	return nil
}

// Err returns and clears the latched deletion-log flush error, per spec
// §4.3's "throws it once, then clears it" contract.
func (o *Overlay) Err() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	err := o.err
	o.err = nil
	return err
}

func (o *Overlay) setErr(err error) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	o.err = err
}

func (o *Overlay) isDeleted(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deletedNames[path]
}

// DeletedNames returns a snapshot of the paths currently recorded in the
// deletion log, for introspection (rc's /overlay/{prefix}/deleted and the
// deleted-count gauge).
func (o *Overlay) DeletedNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.deletedNames))
	for name := range o.deletedNames {
		names = append(names, name)
	}
	return names
}

func (o *Overlay) markDeleted(ctx context.Context, path string) {
	o.mu.Lock()
	o.deletedNames[path] = true
	o.mu.Unlock()
	o.reportDeletedCount(ctx)
}

func protectPath(op, path string) error {
	if path == deletedLogPath {
		return fs.NewError(op, path, fs.EPERM)
	}
	return nil
}

func (o *Overlay) Stat(ctx context.Context, path string, cred fs.Credential) (fs.Stats, error) {
	if err := protectPath("stat", path); err != nil {
		return fs.Stats{}, err
	}
	exists, err := o.w.Exists(ctx, path, cred)
	if err != nil {
		return fs.Stats{}, err
	}
	if exists {
		return o.w.Stat(ctx, path, cred)
	}
	if o.isDeleted(path) {
		return fs.Stats{}, fs.NewError("stat", path, fs.ENOENT)
	}
	st, err := o.r.Stat(ctx, path, cred)
	if err != nil {
		return fs.Stats{}, err
	}
	st.Mode |= 0o222
	return st, nil
}

func (o *Overlay) Exists(ctx context.Context, path string, cred fs.Credential) (bool, error) {
	_, err := o.Stat(ctx, path, cred)
	if err != nil {
		if errno, ok := fs.AsErrno(err); ok && errno == fs.ENOENT {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *Overlay) Readdir(ctx context.Context, path string, cred fs.Credential) ([]fs.DirEntry, error) {
	if err := protectPath("readdir", path); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []fs.DirEntry

	wEntries, wErr := o.w.Readdir(ctx, path, cred)
	if wErr == nil {
		for _, e := range wEntries {
			if e.Name == ".deleted" && path == "/" {
				continue
			}
			seen[e.Name] = true
			out = append(out, e)
		}
	} else if errno, ok := fs.AsErrno(wErr); !ok || errno != fs.ENOENT {
		return nil, wErr
	}

	rEntries, rErr := o.r.Readdir(ctx, path, cred)
	if rErr == nil {
		for _, e := range rEntries {
			if seen[e.Name] {
				continue
			}
			if o.isDeleted(fs.Join(path, e.Name)) {
				continue
			}
			out = append(out, e)
		}
	} else if errno, ok := fs.AsErrno(rErr); !ok || errno != fs.ENOENT {
		return nil, rErr
	}

	return out, nil
}

// ensureParentOnW copies parent directories from R to W as needed,
// preserving R's mode bits, so a write against a path that only exists on
// R can materialize its ancestors on W first.
func (o *Overlay) ensureParentOnW(ctx context.Context, dir string, cred fs.Credential) error {
	if dir == "/" {
		return nil
	}
	exists, err := o.w.Exists(ctx, dir, cred)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	parent := fs.Dir(dir)
	if err := o.ensureParentOnW(ctx, parent, cred); err != nil {
		return err
	}
	st, err := o.r.Stat(ctx, dir, cred)
	if err != nil {
		return err
	}
	if err := o.w.Mkdir(ctx, dir, st.Mode&^fs.S_IFMT, cred); err != nil {
		if errno, ok := fs.AsErrno(err); !ok || errno != fs.EEXIST {
			return err
		}
	}
	return nil
}

func (o *Overlay) OpenFile(ctx context.Context, path string, flags fs.Flags, cred fs.Credential) (fs.File, error) {
	if err := protectPath("open", path); err != nil {
		return nil, err
	}
	exists, err := o.w.Exists(ctx, path, cred)
	if err != nil {
		return nil, err
	}
	if exists {
		return o.w.OpenFile(ctx, path, flags, cred)
	}
	if o.isDeleted(path) {
		return nil, fs.NewError("open", path, fs.ENOENT)
	}
	if !flags.Write {
		return o.r.OpenFile(ctx, path, flags, cred)
	}

	// Copy-on-write: read fully from R, stage on W, then open the staged copy.
	rh, err := o.r.OpenFile(ctx, path, fs.Flags{Read: true}, cred)
	if err != nil {
		return nil, err
	}
	defer rh.Close(ctx)
	st, err := rh.Stat(ctx)
	if err != nil {
		return nil, err
	}
	data := make([]byte, st.Size)
	if _, err := rh.Read(ctx, data, 0); err != nil {
		return nil, err
	}
	if err := o.ensureParentOnW(ctx, fs.Dir(path), cred); err != nil {
		return nil, err
	}
	wh, err := o.w.CreateFile(ctx, path, fs.Flags{Write: true, Create: true, Truncate: true}, st.Mode&^fs.S_IFMT, cred)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if _, err := wh.Write(ctx, data, 0); err != nil {
			wh.Close(ctx)
			return nil, err
		}
	}
	if err := wh.Sync(ctx); err != nil {
		wh.Close(ctx)
		return nil, err
	}
	return wh, nil
}

func (o *Overlay) CreateFile(ctx context.Context, path string, flags fs.Flags, mode uint32, cred fs.Credential) (fs.File, error) {
	if err := protectPath("create", path); err != nil {
		return nil, err
	}
	exists, err := o.Exists(ctx, path, cred)
	if err != nil {
		return nil, err
	}
	if exists && flags.Exclusive {
		return nil, fs.NewError("create", path, fs.EEXIST)
	}
	if err := o.ensureParentOnW(ctx, fs.Dir(path), cred); err != nil {
		return nil, err
	}
	return o.w.CreateFile(ctx, path, flags, mode, cred)
}

func (o *Overlay) Mkdir(ctx context.Context, path string, mode uint32, cred fs.Credential) error {
	if err := protectPath("mkdir", path); err != nil {
		return err
	}
	exists, err := o.Exists(ctx, path, cred)
	if err != nil {
		return err
	}
	if exists {
		return fs.NewError("mkdir", path, fs.EEXIST)
	}
	if err := o.ensureParentOnW(ctx, fs.Dir(path), cred); err != nil {
		return err
	}
	return o.w.Mkdir(ctx, path, mode, cred)
}

func (o *Overlay) Unlink(ctx context.Context, path string, cred fs.Credential) error {
	return o.remove(ctx, "unlink", path, cred, false)
}

func (o *Overlay) Rmdir(ctx context.Context, path string, cred fs.Credential) error {
	return o.remove(ctx, "rmdir", path, cred, true)
}

func (o *Overlay) remove(ctx context.Context, op, path string, cred fs.Credential, wantDir bool) error {
	if err := protectPath(op, path); err != nil {
		return err
	}
	if wantDir {
		entries, err := o.Readdir(ctx, path, cred)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return fs.NewError(op, path, fs.ENOTEMPTY)
		}
	}

	onW, err := o.w.Exists(ctx, path, cred)
	if err != nil {
		return err
	}
	if onW {
		if wantDir {
			if err := o.w.Rmdir(ctx, path, cred); err != nil {
				return err
			}
		} else {
			if err := o.w.Unlink(ctx, path, cred); err != nil {
				return err
			}
		}
	}

	onR, err := o.r.Exists(ctx, path, cred)
	if err != nil {
		return err
	}
	if onR && !o.isDeleted(path) {
		o.markDeleted(ctx, path)
		o.scheduleFlush(ctx)
	}
	return nil
}

func (o *Overlay) Rename(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	if err := protectPath("rename", oldPath); err != nil {
		return err
	}
	if err := protectPath("rename", newPath); err != nil {
		return err
	}
	if err := o.ensureParentOnW(ctx, fs.Dir(oldPath), cred); err != nil {
		return err
	}
	if err := o.ensureParentOnW(ctx, fs.Dir(newPath), cred); err != nil {
		return err
	}
	// Ensure the source is materialized on W (copy-on-write) before renaming.
	st, err := o.Stat(ctx, oldPath, cred)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		h, err := o.OpenFile(ctx, oldPath, fs.Flags{Write: true}, cred)
		if err != nil {
			return err
		}
		h.Close(ctx)
	}
	if err := o.w.Rename(ctx, oldPath, newPath, cred); err != nil {
		return err
	}
	if onR, _ := o.r.Exists(ctx, oldPath, cred); onR {
		o.markDeleted(ctx, oldPath)
		o.scheduleFlush(ctx)
	}
	return nil
}

func (o *Overlay) Link(ctx context.Context, oldPath, newPath string, cred fs.Credential) error {
	if err := protectPath("link", oldPath); err != nil {
		return err
	}
	if err := protectPath("link", newPath); err != nil {
		return err
	}
	if err := o.ensureParentOnW(ctx, fs.Dir(newPath), cred); err != nil {
		return err
	}
	onW, err := o.w.Exists(ctx, oldPath, cred)
	if err != nil {
		return err
	}
	if !onW {
		h, err := o.OpenFile(ctx, oldPath, fs.Flags{Write: true}, cred)
		if err != nil {
			return err
		}
		h.Close(ctx)
	}
	return o.w.Link(ctx, oldPath, newPath, cred)
}

func (o *Overlay) Metadata(ctx context.Context) fs.Metadata {
	return o.w.Metadata(ctx)
}

// scheduleFlush runs the deletion-log flush in the background, guaranteeing
// at most one flush in flight via flushSem. A flush request that arrives
// while one is running just sets the dirty flag; the in-flight flush
// re-runs once it observes dirty on completion, per spec §4.3.
func (o *Overlay) scheduleFlush(ctx context.Context) {
	o.dirtyMu.Lock()
	o.dirty = true
	o.dirtyMu.Unlock()

	if !o.flushSem.TryAcquire(1) {
		return // a flush is already in flight; it will notice dirty and re-run.
	}
	go o.flushLoop(ctx)
}

func (o *Overlay) flushLoop(ctx context.Context) {
	for {
		o.drainDirty(ctx)
		o.flushSem.Release(1)
		// A request that set dirty after drainDirty's last check but before
		// Release found the semaphore held; pick it up here.
		o.dirtyMu.Lock()
		dirty := o.dirty
		o.dirtyMu.Unlock()
		if !dirty || !o.flushSem.TryAcquire(1) {
			return
		}
	}
}

func (o *Overlay) drainDirty(ctx context.Context) {
	for {
		o.dirtyMu.Lock()
		if !o.dirty {
			o.dirtyMu.Unlock()
			return
		}
		o.dirty = false
		o.dirtyMu.Unlock()

		if err := o.flushOnce(ctx); err != nil {
			zlog.Errorf(zlog.Str("overlay"), "deletion log flush failed: %v", err)
			o.setErr(err)
		}
	}
}

// WaitFlush blocks until any in-flight deletion-log flush completes and, if
// the log is dirty, performs one more synchronous flush. Used by tests and
// by callers that need durability before proceeding (mirrors the bridge's
// QueueDone contract for the same purpose on the async side).
func (o *Overlay) WaitFlush(ctx context.Context) error {
	if err := o.flushSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.flushSem.Release(1)
	o.drainDirty(ctx)
	return o.Err()
}

func (o *Overlay) flushOnce(ctx context.Context) error {
	o.mu.Lock()
	names := make([]string, 0, len(o.deletedNames))
	for name := range o.deletedNames {
		names = append(names, name)
	}
	o.mu.Unlock()

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString("d")
		buf.WriteString(name)
		buf.WriteString("\n")
	}

	h, err := o.w.CreateFile(ctx, deletedLogPath, fs.Flags{Write: true, Create: true, Truncate: true}, 0o600, fs.Root)
	if err != nil {
		return err
	}
	defer h.Close(ctx)
	if buf.Len() > 0 {
		if _, err := h.Write(ctx, buf.Bytes(), 0); err != nil {
			return err
		}
	}
	return h.Sync(ctx)
}
