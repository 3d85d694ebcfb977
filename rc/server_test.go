package rc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/backend/memstore"
	"github.com/zenfs/zenfs/bridge"
	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/metrics"
	"github.com/zenfs/zenfs/mount"
	"github.com/zenfs/zenfs/storefs"
	"github.com/zenfs/zenfs/vfs"
)

func newFS(t *testing.T, name string) *storefs.FS {
	t.Helper()
	f := storefs.New(name, memstore.New(), fs.Root)
	require.NoError(t, f.Ready(context.Background()))
	return f
}

func TestListMounts(t *testing.T) {
	table := mount.New()
	require.NoError(t, table.Mount("/", newFS(t, "root")))
	require.NoError(t, table.Mount("/data", newFS(t, "data")))

	srv := New(table)
	req := httptest.NewRequest(http.MethodGet, "/mounts", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct{ Mounts []string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"/", "/data"}, body.Mounts)
}

func TestMountMetadataNotFound(t *testing.T) {
	table := mount.New()
	srv := New(table)
	req := httptest.NewRequest(http.MethodGet, "/mounts/_root/metadata", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMountMetadataFound(t *testing.T) {
	table := mount.New()
	require.NoError(t, table.Mount("/", newFS(t, "root")))
	srv := New(table)
	req := httptest.NewRequest(http.MethodGet, "/mounts/_root/metadata", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var meta fs.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "root", meta.Name)
}

func TestOverlayDeletedEndpoint(t *testing.T) {
	ctx := context.Background()
	w := newFS(t, "w")
	r := newFS(t, "r")
	require.NoError(t, r.Mkdir(ctx, "/gone", 0o755, fs.Root))
	ov := vfs.NewOverlay(w, r)
	require.NoError(t, ov.Ready(ctx))
	require.NoError(t, ov.Rmdir(ctx, "/gone", fs.Root))
	require.NoError(t, ov.WaitFlush(ctx))

	table := mount.New()
	require.NoError(t, table.Mount("/", ov))
	srv := New(table)

	req := httptest.NewRequest(http.MethodGet, "/overlay/_root/deleted", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct{ Deleted []string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Deleted, "/gone")
}

func TestOverlayDeletedEndpointWrongKind(t *testing.T) {
	table := mount.New()
	require.NoError(t, table.Mount("/", newFS(t, "root")))
	srv := New(table)
	req := httptest.NewRequest(http.MethodGet, "/overlay/_root/deleted", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBridgeQueueEndpointThroughLocked(t *testing.T) {
	ctx := context.Background()
	backend := newFS(t, "backend")
	mirror := newFS(t, "mirror")
	br := bridge.New(backend, mirror, 16)
	defer br.Close()
	require.NoError(t, br.Ready(ctx))

	locked := vfs.NewLocked(br)

	table := mount.New()
	require.NoError(t, table.Mount("/", locked))
	srv := New(table)

	req := httptest.NewRequest(http.MethodGet, "/bridge/_root/queue", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Depth     int    `json:"depth"`
		LastError string `json:"lastError"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "", body.LastError)
}

func TestMetricsEndpointReportsOpsCounter(t *testing.T) {
	ctx := context.Background()
	name := "metrics-ops-probe"
	fsys := metrics.Instrument("/"+name, newFS(t, name))
	_, err := fsys.Stat(ctx, "/", fs.Root)
	require.NoError(t, err)

	table := mount.New()
	require.NoError(t, table.Mount("/"+name, fsys))
	srv := New(table)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `zenfs_fs_ops_total{mount="/`+name+`",op="stat"} 1`)
}

func TestMetricsEndpointReportsOverlayDeletedGauge(t *testing.T) {
	ctx := context.Background()
	w := newFS(t, "metrics-overlay-w")
	r := newFS(t, "metrics-overlay-w") // same Metadata().Name as w, since the gauge is keyed on w's label
	require.NoError(t, r.Mkdir(ctx, "/gone", 0o755, fs.Root))
	ov := vfs.NewOverlay(w, r)
	require.NoError(t, ov.Ready(ctx))
	require.NoError(t, ov.Rmdir(ctx, "/gone", fs.Root))
	require.NoError(t, ov.WaitFlush(ctx))

	table := mount.New()
	require.NoError(t, table.Mount("/", ov))
	srv := New(table)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Body.String(), `zenfs_overlay_deleted_total{mount="metrics-overlay-w"} 1`)
}
