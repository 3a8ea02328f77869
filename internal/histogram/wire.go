package histogram

import (
	"bytes"
	"encoding/binary"
	"math"
)

func encodeBool(b bool) byte {
	if b {
		return 1
	}

	return 0
}

func writeU32(buf *bytes.Buffer, v uint32) {
	buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func writeU64(buf *bytes.Buffer, v uint64) {
	buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

func floatFromBits(b uint64) float64 {
	return math.Float64frombits(b)
}

// byteReader consumes little-endian fields and remembers whether any
// read ran past the end, so decode loops can defer the error check.
type byteReader struct {
	data   []byte
	off    int
	failed bool
}

func (r *byteReader) u8() byte {
	if r.off+1 > len(r.data) {
		r.failed = true
		return 0
	}

	v := r.data[r.off]
	r.off++

	return v
}

func (r *byteReader) u32() uint32 {
	if r.off+4 > len(r.data) {
		r.failed = true
		return 0
	}

	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4

	return v
}

func (r *byteReader) u64() uint64 {
	if r.off+8 > len(r.data) {
		r.failed = true
		return 0
	}

	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8

	return v
}

func (r *byteReader) rest() int {
	if r.failed {
		return 0
	}

	return len(r.data) - r.off
}
