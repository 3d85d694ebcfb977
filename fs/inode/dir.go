package inode

import (
	"encoding/binary"

	"github.com/zenfs/zenfs/fs"
)

// EncodeDir serializes a directory's name->ino mapping into its data blob:
// a sequence of (nameLen uint16, name []byte, ino uint64) records. Map
// iteration order is unspecified by Go, so two encodings of the same
// logical directory are not necessarily byte-identical, but DecodeDir(EncodeDir(m))
// always reproduces m exactly.
func EncodeDir(entries map[string]uint64) []byte {
	size := 0
	for name := range entries {
		size += 2 + len(name) + 8
	}
	buf := make([]byte, 0, size)
	for name, ino := range entries {
		var hdr [2]byte
		binary.BigEndian.PutUint16(hdr[:], uint16(len(name)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, name...)
		var inoBuf [8]byte
		binary.BigEndian.PutUint64(inoBuf[:], ino)
		buf = append(buf, inoBuf[:]...)
	}
	return buf
}

// DecodeDir parses a directory data blob produced by EncodeDir back into a
// name->ino map. An empty or nil buf decodes to an empty, non-nil map. A
// truncated record is reported as fs.EIO.
func DecodeDir(buf []byte) (map[string]uint64, error) {
	entries := make(map[string]uint64)
	off := 0
	for off < len(buf) {
		if off+2 > len(buf) {
			return nil, fs.Errorf("inode.DecodeDir", "", fs.EIO, "truncated directory blob: missing name length at offset %d", off)
		}
		nameLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		if off+nameLen+8 > len(buf) {
			return nil, fs.Errorf("inode.DecodeDir", "", fs.EIO, "truncated directory blob: record at offset %d exceeds buffer", off)
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		ino := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		entries[name] = ino
	}
	return entries, nil
}
