// Package bridge implements the Async->Sync bridge: it lets an inherently
// asynchronous (e.g. remote) fs.FileSystem be driven from synchronous call
// sites by mirroring its tree into an in-memory sync FileSystem and
// write-behind queuing mutations against the real backend, per the
// Async->Sync bridge contract (component K).
package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/internal/zlog"
	"github.com/zenfs/zenfs/metrics"
)

// queueOp is one pending write-back operation against the async backend.
type queueOp struct {
	id uuid.UUID
	fn func(ctx context.Context) error
}

// Bridge composes an async backend and a sync mirror into one
// fs.FileSystem: reads and mutations are served from mirror; mutations are
// additionally queued for asynchronous replay against backend.
type Bridge struct {
	backend fs.FileSystem
	mirror  fs.FileSystem

	disableAsyncCache bool
	limiter           *rate.Limiter
	label             string

	queue  chan queueOp
	wg     sync.WaitGroup
	stopCh chan struct{}

	errMu sync.Mutex
	err   error

	readyOnce sync.Once
	readyErr  error
}

var _ fs.FileSystem = (*Bridge)(nil)

// Option configures a Bridge at construction time.
type Option func(*Bridge)

// WithRateLimit paces the write-back queue at r ops/sec with burst b. The
// default is unlimited.
func WithRateLimit(r rate.Limit, b int) Option {
	return func(br *Bridge) { br.limiter = rate.NewLimiter(r, b) }
}

// WithAsyncCacheDisabled makes every operation return ENOTSUP, per spec
// §4.4's disableAsyncCache configuration.
func WithAsyncCacheDisabled() Option {
	return func(br *Bridge) { br.disableAsyncCache = true }
}

// WithLabel tags this Bridge's queue-depth gauge with name, so
// zenfs_bridge_queue_depth{mount} can be attributed to the mount the Bridge
// backs. Bridges created without a label report under the async backend's
// Metadata().Name.
func WithLabel(name string) Option {
	return func(br *Bridge) { br.label = name }
}

// New constructs a Bridge over backend (the async FileSystem) and mirror
// (an in-memory sync FileSystem, typically storefs over memstore). Queue
// depth bounds how many pending write-back operations may accumulate
// before a mutating call blocks while enqueuing.
func New(backend, mirror fs.FileSystem, queueDepth int, opts ...Option) *Bridge {
	b := &Bridge{
		backend: backend,
		mirror:  mirror,
		queue:   make(chan queueOp, queueDepth),
		stopCh:  make(chan struct{}),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(1)
	go b.drain()
	return b
}

// Ready walks backend from / and mirrors every inode into mirror
// (crossCopy), per spec §4.4.
func (b *Bridge) Ready(ctx context.Context) error {
	b.readyOnce.Do(func() {
		if err := b.backend.Ready(ctx); err != nil {
			b.readyErr = err
			return
		}
		if err := b.mirror.Ready(ctx); err != nil {
			b.readyErr = err
			return
		}
		b.readyErr = b.crossCopy(ctx, "/")
	})
	if err := b.latchedErr(); err != nil {
		return err
	}
	return b.readyErr
}

// crossCopy recursively mirrors backend's tree at path into mirror.
func (b *Bridge) crossCopy(ctx context.Context, path string) error {
	st, err := b.backend.Stat(ctx, path, fs.Root)
	if err != nil {
		return err
	}
	if st.IsDir() {
		if path != "/" {
			if err := b.mirror.Mkdir(ctx, path, st.Mode&^fs.S_IFMT, fs.Root); err != nil {
				if errno, ok := fs.AsErrno(err); !ok || errno != fs.EEXIST {
					return err
				}
			}
		}
		entries, err := b.backend.Readdir(ctx, path, fs.Root)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.crossCopy(ctx, fs.Join(path, e.Name)); err != nil {
				return err
			}
		}
		return nil
	}

	rh, err := b.backend.OpenFile(ctx, path, fs.Flags{Read: true}, fs.Root)
	if err != nil {
		return err
	}
	defer rh.Close(ctx)
	buf := make([]byte, st.Size)
	if _, err := rh.Read(ctx, buf, 0); err != nil {
		return err
	}
	wh, err := b.mirror.CreateFile(ctx, path, fs.Flags{Write: true, Create: true, Truncate: true}, st.Mode&^fs.S_IFMT, fs.Root)
	if err != nil {
		return err
	}
	defer wh.Close(ctx)
	if len(buf) > 0 {
		if _, err := wh.Write(ctx, buf, 0); err != nil {
			return err
		}
	}
	return wh.Sync(ctx)
}

func (b *Bridge) latchedErr() error {
	if b.disableAsyncCache {
		return fs.NewError("bridge", "", fs.ENOTSUP)
	}
	return b.Err()
}

// Err returns and clears the latched write-back error, per spec §4.4's
// "stores the error and reports it from the next ready()/sync call".
func (b *Bridge) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	err := b.err
	b.err = nil
	return err
}

func (b *Bridge) setErr(err error) {
	b.errMu.Lock()
	b.err = err
	b.errMu.Unlock()
}

// enqueue appends fn to the write-back queue, tagging it with a
// correlation id for log lines.
func (b *Bridge) enqueue(ctx context.Context, fn func(ctx context.Context) error) {
	op := queueOp{id: uuid.New(), fn: fn}
	select {
	case b.queue <- op:
		b.reportQueueDepth(ctx)
	case <-ctx.Done():
	}
}

// metricLabel identifies this Bridge in per-mount gauges: an explicit
// WithLabel wins, otherwise the async backend's own Metadata().Name.
func (b *Bridge) metricLabel(ctx context.Context) string {
	if b.label != "" {
		return b.label
	}
	return b.backend.Metadata(ctx).Name
}

func (b *Bridge) reportQueueDepth(ctx context.Context) {
	metrics.BridgeQueueDepth.WithLabelValues(b.metricLabel(ctx)).Set(float64(len(b.queue)))
}

// drain runs on a single background goroutine, processing the FIFO queue
// one operation at a time, awaiting each before starting the next.
func (b *Bridge) drain() {
	defer b.wg.Done()
	ctx := context.Background()
	for {
		select {
		case op, ok := <-b.queue:
			if !ok {
				return
			}
			b.reportQueueDepth(ctx)
			if err := b.limiter.Wait(ctx); err != nil {
				b.setErr(err)
				continue
			}
			if err := op.fn(ctx); err != nil {
				zlog.Errorf(zlog.Str("bridge"), "write-back op %s failed: %v", op.id, err)
				b.setErr(err)
			}
		case <-b.stopCh:
			return
		}
	}
}

// QueueDone blocks until every write-back operation enqueued before this
// call has been applied to backend, per spec §4.4's queueDone() contract.
// It does not guarantee operations enqueued concurrently with this call
// are included.
func (b *Bridge) QueueDone(ctx context.Context) error {
	done := make(chan struct{})
	b.enqueue(ctx, func(ctx context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.Err()
}

// QueueLen reports how many write-back operations are currently queued,
// for introspection (rc's /bridge/{prefix}/queue and the queue-depth gauge).
func (b *Bridge) QueueLen() int {
	return len(b.queue)
}

// Close stops the background drain goroutine without waiting for the
// queue to empty; callers needing durability should call QueueDone first.
func (b *Bridge) Close() {
	close(b.stopCh)
	b.wg.Wait()
}
