package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/fs/store"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.bolt")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	key := store.Key{Ino: 1, Kind: store.KindInode}
	require.NoError(t, s.Put(ctx, key, []byte("record")))

	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("record"), v)

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionCommitAndAbort(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.bolt")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	key := store.Key{Ino: 2, Kind: store.KindBlob}

	txn, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, key, []byte("v1")))
	require.NoError(t, txn.Commit(ctx))

	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	txn2, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, txn2.Put(ctx, key, []byte("v2")))
	require.NoError(t, txn2.Abort(ctx))

	v, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v, "aborted transaction must not be visible")
}

func TestSharedHandleRefCounting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.bolt")
	s1, err := Open(path)
	require.NoError(t, err)
	s2, err := Open(path)
	require.NoError(t, err)

	assert.Same(t, s1.h, s2.h, "two Opens of the same path share one handle")

	require.NoError(t, s1.Close())
	// s2 still holds a reference; the underlying db should remain usable.
	ctx := context.Background()
	key := store.Key{Ino: 9, Kind: store.KindInode}
	require.NoError(t, s2.Put(ctx, key, []byte("x")))

	require.NoError(t, s2.Close())
}

func TestEntriesAcrossBuckets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "entries.bolt")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, store.Key{Ino: 1, Kind: store.KindInode}, []byte("a")))
	require.NoError(t, s.Put(ctx, store.Key{Ino: 2, Kind: store.KindBlob}, []byte("b")))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
