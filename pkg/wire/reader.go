package wire

import (
	"encoding/binary"
	"math"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
)

type Reader struct {
	buf       []byte
	off       int
	err       error
	truncated bool
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// NewReaderAt starts reading at offset, e.g. past an authentication prefix.
func NewReaderAt(buf []byte, offset int) *Reader {
	r := &Reader{buf: buf}
	r.Skip(offset)
	return r
}

func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) Err() error {
	return r.err
}

// Truncated reports whether any String call copied fewer bytes than encoded.
func (r *Reader) Truncated() bool {
	return r.truncated
}

func (r *Reader) take(op string, size int) []byte {
	if r.err != nil {
		return nil
	}
	if size < 0 || r.off+size > len(r.buf) {
		r.err = &errors.Overrun{
			Operation: op,
			Offset:    r.off,
			Size:      size,
			Capacity:  len(r.buf),
		}
		return nil
	}
	out := r.buf[r.off : r.off+size]
	r.off += size
	return out
}

func (r *Reader) Skip(n int) {
	r.take("Skip", n)
}

func (r *Reader) U8() uint8 {
	b := r.take("U8", 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take("U16", 2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take("U32", 4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take("U64", 8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *Reader) F32() float32 {
	b := r.take("F32", 4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (r *Reader) F64() float64 {
	b := r.take("F64", 8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *Reader) Vec2() vec.Vec2 {
	b := r.take("Vec2", 8)
	if b == nil {
		return vec.Vec2{}
	}
	return vec.Vec2{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
	}
}

// Bytes copies len(dst) bytes into dst.
func (r *Reader) Bytes(dst []byte) {
	b := r.take("Bytes", len(dst))
	if b == nil {
		return
	}
	copy(dst, b)
}

// String reads a length-prefixed string keeping at most maxLen bytes. The
// cursor always advances past the full encoded length; copied is the number of
// bytes kept.
func (r *Reader) String(maxLen int) (s string, copied int) {
	n := int(r.U8())
	b := r.take("String", n)
	if b == nil {
		return "", 0
	}
	if maxLen < 0 {
		maxLen = 0
	}
	if n > maxLen {
		r.truncated = true
		b = b[:maxLen]
	}
	return string(b), len(b)
}
