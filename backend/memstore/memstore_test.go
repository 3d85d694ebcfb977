package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/fs/store"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	key := store.Key{Ino: 1, Kind: store.KindInode}
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

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

func TestInodeAndBlobKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := New()

	inoKey := store.Key{Ino: 1, Kind: store.KindInode}
	blobKey := store.Key{Ino: 1, Kind: store.KindBlob}

	require.NoError(t, s.Put(ctx, inoKey, []byte("inode")))
	require.NoError(t, s.Put(ctx, blobKey, []byte("blob")))

	v, ok, err := s.Get(ctx, inoKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("inode"), v)

	v, ok, err = s.Get(ctx, blobKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), v)
}

func TestEntriesEnumeratesBoth(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, store.Key{Ino: 1, Kind: store.KindInode}, []byte("a")))
	require.NoError(t, s.Put(ctx, store.Key{Ino: 2, Kind: store.KindBlob}, []byte("b")))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := New()

	txn, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	key := store.Key{Ino: 5, Kind: store.KindInode}
	require.NoError(t, txn.Put(ctx, key, []byte("v")))
	require.NoError(t, txn.Commit(ctx))

	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestTransactionAbortLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := store.Key{Ino: 6, Kind: store.KindInode}

	txn, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, key, []byte("v")))
	require.NoError(t, txn.Abort(ctx))

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := store.Key{Ino: 1, Kind: store.KindInode}
	original := []byte("abc")
	require.NoError(t, s.Put(ctx, key, original))

	v, _, err := s.Get(ctx, key)
	require.NoError(t, err)
	v[0] = 'z'

	v2, _, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v2)
}
