package storefs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/backend/memstore"
	"github.com/zenfs/zenfs/fs"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	f := New("test", memstore.New(), fs.Root)
	require.NoError(t, f.Ready(context.Background()))
	return f
}

func TestReadyFormatsEmptyStore(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()

	st, err := f.Stat(ctx, "/", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.Equal(t, uint64(0), st.Ino)
}

func TestMkdirAndStat(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, f.Mkdir(ctx, "/a", 0o755, fs.Root))
	st, err := f.Stat(ctx, "/a", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	err = f.Mkdir(ctx, "/a", 0o755, fs.Root)
	assert.ErrorIs(t, err, fs.EEXIST)
}

func TestMkdirMissingParent(t *testing.T) {
	f := newTestFS(t)
	err := f.Mkdir(context.Background(), "/missing/a", 0o755, fs.Root)
	assert.ErrorIs(t, err, fs.ENOENT)
}

func TestCreateWriteReadFile(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()

	h, err := f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	n, err := h.Write(ctx, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, h.Close(ctx))

	h2, err := f.OpenFile(ctx, "/f.txt", fs.Flags{Read: true}, fs.Root)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = h2.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, h2.Close(ctx))

	st, err := f.Stat(ctx, "/f.txt", fs.Root)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
}

func TestOpenMissingFile(t *testing.T) {
	f := newTestFS(t)
	_, err := f.OpenFile(context.Background(), "/nope.txt", fs.Flags{Read: true}, fs.Root)
	assert.ErrorIs(t, err, fs.ENOENT)
}

func TestOpenDirAsFileFails(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/d", 0o755, fs.Root))
	_, err := f.OpenFile(ctx, "/d", fs.Flags{Read: true}, fs.Root)
	assert.ErrorIs(t, err, fs.EISDIR)
}

func TestUnlinkRemovesFile(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	h, err := f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	require.NoError(t, f.Unlink(ctx, "/f.txt", fs.Root))
	_, err = f.Stat(ctx, "/f.txt", fs.Root)
	assert.ErrorIs(t, err, fs.ENOENT)
}

func TestUnlinkOnDirFails(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/d", 0o755, fs.Root))
	err := f.Unlink(ctx, "/d", fs.Root)
	assert.ErrorIs(t, err, fs.EISDIR)
}

func TestRmdirRequiresEmpty(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/d", 0o755, fs.Root))
	require.NoError(t, f.Mkdir(ctx, "/d/child", 0o755, fs.Root))

	err := f.Rmdir(ctx, "/d", fs.Root)
	assert.ErrorIs(t, err, fs.ENOTEMPTY)

	require.NoError(t, f.Rmdir(ctx, "/d/child", fs.Root))
	require.NoError(t, f.Rmdir(ctx, "/d", fs.Root))
}

func TestRmdirOnFileFails(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	h, err := f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	err = f.Rmdir(ctx, "/f.txt", fs.Root)
	assert.ErrorIs(t, err, fs.ENOTDIR)
}

func TestRenameSameParent(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	h, err := f.CreateFile(ctx, "/a.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	require.NoError(t, f.Rename(ctx, "/a.txt", "/b.txt", fs.Root))
	_, err = f.Stat(ctx, "/a.txt", fs.Root)
	assert.ErrorIs(t, err, fs.ENOENT)
	st, err := f.Stat(ctx, "/b.txt", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsRegular())
}

func TestRenameAcrossDirs(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/d1", 0o755, fs.Root))
	require.NoError(t, f.Mkdir(ctx, "/d2", 0o755, fs.Root))
	h, err := f.CreateFile(ctx, "/d1/a.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	require.NoError(t, f.Rename(ctx, "/d1/a.txt", "/d2/a.txt", fs.Root))
	_, err = f.Stat(ctx, "/d1/a.txt", fs.Root)
	assert.ErrorIs(t, err, fs.ENOENT)
	_, err = f.Stat(ctx, "/d2/a.txt", fs.Root)
	require.NoError(t, err)
}

func TestRenameOverwriteNonEmptyDirFails(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/src", 0o755, fs.Root))
	require.NoError(t, f.Mkdir(ctx, "/dst", 0o755, fs.Root))
	require.NoError(t, f.Mkdir(ctx, "/dst/child", 0o755, fs.Root))

	err := f.Rename(ctx, "/src", "/dst", fs.Root)
	assert.ErrorIs(t, err, fs.ENOTEMPTY)
}

func TestRenameCrossTypeFails(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/d", 0o755, fs.Root))
	h, err := f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	err = f.Rename(ctx, "/f.txt", "/d", fs.Root)
	assert.ErrorIs(t, err, fs.EISDIR)

	err = f.Rename(ctx, "/d", "/f.txt", fs.Root)
	assert.ErrorIs(t, err, fs.ENOTDIR)
}

func TestLinkCreatesSecondName(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	h, err := f.CreateFile(ctx, "/a.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	_, err = h.Write(ctx, []byte("x"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	require.NoError(t, f.Link(ctx, "/a.txt", "/b.txt", fs.Root))

	sa, err := f.Stat(ctx, "/a.txt", fs.Root)
	require.NoError(t, err)
	sb, err := f.Stat(ctx, "/b.txt", fs.Root)
	require.NoError(t, err)
	assert.Equal(t, sa.Ino, sb.Ino)
}

func TestReaddirListsChildren(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/a", 0o755, fs.Root))
	require.NoError(t, f.Mkdir(ctx, "/b", 0o755, fs.Root))

	entries, err := f.Readdir(ctx, "/", fs.Root)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
}

func TestExists(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	ok, err := f.Exists(ctx, "/nope", fs.Root)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Mkdir(ctx, "/a", 0o755, fs.Root))
	ok, err = f.Exists(ctx, "/a", fs.Root)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTruncate(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	h, err := f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	_, err = h.Write(ctx, []byte("hello world"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Truncate(ctx, 5))
	require.NoError(t, h.Close(ctx))

	st, err := f.Stat(ctx, "/f.txt", fs.Root)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
}

func TestCreateExclusiveFailsIfExists(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()
	h, err := f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true}, 0o644, fs.Root)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	_, err = f.CreateFile(ctx, "/f.txt", fs.Flags{Write: true, Create: true, Exclusive: true}, 0o644, fs.Root)
	assert.ErrorIs(t, err, fs.EEXIST)
}
