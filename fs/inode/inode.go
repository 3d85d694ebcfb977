// Package inode implements the fixed-width on-disk encoding for inode
// records and the directory-blob encoding used by storefs, per the
// inode/directory codec contract (component D). The only cross-backend
// guarantee is round-trip determinism: Decode(Encode(r)) == r.
package inode

import (
	"encoding/binary"

	"github.com/zenfs/zenfs/fs"
)

// Size is the fixed on-the-wire length of an encoded Record, in bytes:
// one uint64 (ino) + one uint32 (mode) + two uint32 (uid, gid) + one int64
// (size) + four int64 (atime, mtime, ctime, birthtime, all milliseconds).
const Size = 8 + 4 + 4 + 4 + 8 + 8*4

// Record is the fixed-width inode record stored under the inode key for a
// given ino. It carries the inode number itself so a record is
// self-describing once read back out of a Store.
type Record struct {
	Ino         uint64
	Mode        uint32
	Uid         uint32
	Gid         uint32
	Size        int64
	AtimeMs     int64
	MtimeMs     int64
	CtimeMs     int64
	BirthtimeMs int64
}

// Encode serializes r into a fresh Size-byte buffer using a fixed
// big-endian layout.
func Encode(r Record) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf[0:8], r.Ino)
	binary.BigEndian.PutUint32(buf[8:12], r.Mode)
	binary.BigEndian.PutUint32(buf[12:16], r.Uid)
	binary.BigEndian.PutUint32(buf[16:20], r.Gid)
	binary.BigEndian.PutUint64(buf[20:28], uint64(r.Size))
	binary.BigEndian.PutUint64(buf[28:36], uint64(r.AtimeMs))
	binary.BigEndian.PutUint64(buf[36:44], uint64(r.MtimeMs))
	binary.BigEndian.PutUint64(buf[44:52], uint64(r.CtimeMs))
	binary.BigEndian.PutUint64(buf[52:60], uint64(r.BirthtimeMs))
	return buf
}

// Decode parses a Size-byte buffer previously produced by Encode. It
// returns fs.EIO if buf is not exactly Size bytes long.
func Decode(buf []byte) (Record, error) {
	if len(buf) != Size {
		return Record{}, fs.Errorf("inode.Decode", "", fs.EIO, "corrupt inode record: got %d bytes, want %d", len(buf), Size)
	}
	return Record{
		Ino:         binary.BigEndian.Uint64(buf[0:8]),
		Mode:        binary.BigEndian.Uint32(buf[8:12]),
		Uid:         binary.BigEndian.Uint32(buf[12:16]),
		Gid:         binary.BigEndian.Uint32(buf[16:20]),
		Size:        int64(binary.BigEndian.Uint64(buf[20:28])),
		AtimeMs:     int64(binary.BigEndian.Uint64(buf[28:36])),
		MtimeMs:     int64(binary.BigEndian.Uint64(buf[36:44])),
		CtimeMs:     int64(binary.BigEndian.Uint64(buf[44:52])),
		BirthtimeMs: int64(binary.BigEndian.Uint64(buf[52:60])),
	}, nil
}

// Stats converts a Record into the public fs.Stats shape, normalizing the
// mode (see fs.Stats.Normalize) and filling in the derived fields.
func (r Record) Stats() fs.Stats {
	s := fs.Stats{
		Size:        r.Size,
		Mode:        r.Mode,
		AtimeMs:     r.AtimeMs,
		MtimeMs:     r.MtimeMs,
		CtimeMs:     r.CtimeMs,
		BirthtimeMs: r.BirthtimeMs,
		Uid:         r.Uid,
		Gid:         r.Gid,
		Ino:         r.Ino,
	}
	s.Normalize()
	return s
}

// FromStats builds a Record from an fs.Stats plus the ino it belongs under
// (Stats itself does not round-trip Ino reliably across callers that zero
// it, so callers pass it explicitly).
func FromStats(ino uint64, s fs.Stats) Record {
	return Record{
		Ino:         ino,
		Mode:        s.Mode,
		Uid:         s.Uid,
		Gid:         s.Gid,
		Size:        s.Size,
		AtimeMs:     s.AtimeMs,
		MtimeMs:     s.MtimeMs,
		CtimeMs:     s.CtimeMs,
		BirthtimeMs: s.BirthtimeMs,
	}
}
