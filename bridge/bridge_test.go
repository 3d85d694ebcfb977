package bridge

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/backend/memstore"
	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/metrics"
	"github.com/zenfs/zenfs/storefs"
)

func newBackend(t *testing.T) *storefs.FS {
	t.Helper()
	f := storefs.New("backend", memstore.New(), fs.Root)
	require.NoError(t, f.Ready(context.Background()))
	return f
}

func newMirror(t *testing.T) *storefs.FS {
	t.Helper()
	f := storefs.New("mirror", memstore.New(), fs.Root)
	require.NoError(t, f.Ready(context.Background()))
	return f
}

func TestReadyCrossCopiesExistingTree(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	require.NoError(t, backend.Mkdir(ctx, "/a", 0o755, fs.Root))
	h, err := backend.CreateFile(ctx, "/a/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	_, err = h.Write(ctx, []byte("payload"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	br := New(backend, newMirror(t), 16)
	defer br.Close()
	require.NoError(t, br.Ready(ctx))

	st, err := br.Stat(ctx, "/a/f.txt", fs.Root)
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Size)
}

func TestMutationsApplyToMirrorImmediatelyAndBackendEventually(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	br := New(backend, newMirror(t), 16)
	defer br.Close()
	require.NoError(t, br.Ready(ctx))

	require.NoError(t, br.Mkdir(ctx, "/dir", 0o755, fs.Root))

	// Mirror reflects the mutation immediately.
	st, err := br.Stat(ctx, "/dir", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	require.NoError(t, br.QueueDone(ctx))

	// Backend now reflects it too, since the queue has drained.
	st, err = backend.Stat(ctx, "/dir", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestQueueDoneDrainsWrites(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	br := New(backend, newMirror(t), 16)
	defer br.Close()
	require.NoError(t, br.Ready(ctx))

	h, err := br.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	_, err = h.Write(ctx, []byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	require.NoError(t, br.QueueDone(ctx))

	bh, err := backend.OpenFile(ctx, "/f.txt", fs.Flags{Read: true}, fs.Root)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := bh.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, bh.Close(ctx))
}

func TestQueueDepthGaugeTracksPendingAndDrainedOps(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	br := New(backend, newMirror(t), 16, WithLabel("queue-depth-probe"))
	defer br.Close()
	require.NoError(t, br.Ready(ctx))

	require.NoError(t, br.Mkdir(ctx, "/dir", 0o755, fs.Root))
	require.NoError(t, br.QueueDone(ctx))

	// QueueDone enqueues and waits on its own sentinel op, so by the time it
	// returns, drain has reported the queue empty at least once.
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.BridgeQueueDepth.WithLabelValues("queue-depth-probe")))
}

func TestDisableAsyncCacheReturnsNotSupported(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	br := New(backend, newMirror(t), 16, WithAsyncCacheDisabled())
	defer br.Close()

	err := br.Ready(ctx)
	assert.ErrorIs(t, err, fs.ENOTSUP)

	_, err = br.Stat(ctx, "/", fs.Root)
	assert.ErrorIs(t, err, fs.ENOTSUP)
}
