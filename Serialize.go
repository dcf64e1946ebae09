// Primitive little-endian encode/decode helpers for the fixed-width fields
// used throughout the node/edge/data-record/header layouts, in the style of
// the teacher's serializeUint64/deserializeUint64 helpers but widened to the
// 5- and 6-byte offsets §3.1 specifies.
package mabain

import "encoding/binary"

func putUint48(b []byte, v uint64) {
	_ = b[5]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
}

func getUint48(b []byte) uint64 {
	_ = b[5]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40
}

func putUint40(b []byte, v uint64) {
	_ = b[4]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
}

func getUint40(b []byte) uint64 {
	_ = b[4]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32
}

func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }
