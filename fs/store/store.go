// Package store defines the byte-oriented key/value contract that storefs
// builds a POSIX-like filesystem on top of (component E), plus store.Simple,
// a buffering adapter that lets a non-transactional backend satisfy the
// transactional contract.
package store

import (
	"context"

	"github.com/google/uuid"
)

// Kind distinguishes the two logical keys kept per inode. Backends are free
// to fuse them into one physical record as long as both can be written
// atomically within one transaction.
type Kind int

const (
	// KindInode addresses an inode's fixed-width record.
	KindInode Kind = iota
	// KindBlob addresses an inode's data blob (directory entries or file
	// contents).
	KindBlob
)

// Key addresses one logical record: an inode's record or its data blob.
type Key struct {
	Ino  uint64
	Kind Kind
}

// Store is the minimal byte key/value interface a backend implements.
// Reads and single-key writes outside a transaction are permitted for
// convenience (e.g. read-only callers that don't need atomicity); any
// mutation that must be atomic with another goes through BeginTransaction.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Put(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error
	// Entries returns every key currently stored, for introspection and
	// for backends (like memstore) that need to enumerate inodes.
	Entries(ctx context.Context) ([]Key, error)

	// BeginTransaction starts a transaction tagged with a fresh
	// correlation ID, surfaced via Transaction.ID for log correlation.
	BeginTransaction(ctx context.Context) (Transaction, error)
}

// Transaction groups a sequence of Gets/Puts/Deletes that either all take
// effect on Commit or are discarded on Abort. A Transaction must not be
// used after Commit or Abort.
type Transaction interface {
	ID() uuid.UUID

	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Put(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error

	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}
