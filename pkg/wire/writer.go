// Package wire packs primitive values into, and unpacks them out of, flat
// fixed-capacity byte buffers.
//
// Integers are big-endian. Floats and vectors are laid out the way the game
// binary holds them in memory, which is little-endian on every platform the
// game ships for. Every operation checks capacity first and fails closed: an
// operation that would overrun writes nothing, records a sticky *errors.Overrun
// and turns every later operation into a no-op.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
)

const DefaultCapacity = 1024

type Writer struct {
	buf []byte
	n   int
	err error
}

// NewWriter packs into buf[0:len(buf)]. The writer never grows buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Len() int {
	return w.n
}

func (w *Writer) Cap() int {
	return len(w.buf)
}

func (w *Writer) Remaining() int {
	return len(w.buf) - w.n
}

func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the packed prefix of the underlying buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.n]
}

func (w *Writer) reserve(op string, size int) []byte {
	if w.err != nil {
		return nil
	}
	if size < 0 || w.n+size > len(w.buf) {
		w.err = &errors.Overrun{
			Operation: op,
			Offset:    w.n,
			Size:      size,
			Capacity:  len(w.buf),
		}
		return nil
	}
	out := w.buf[w.n : w.n+size]
	w.n += size
	return out
}

func (w *Writer) PutU8(v uint8) {
	if b := w.reserve("PutU8", 1); b != nil {
		b[0] = v
	}
}

func (w *Writer) PutU16(v uint16) {
	if b := w.reserve("PutU16", 2); b != nil {
		binary.BigEndian.PutUint16(b, v)
	}
}

func (w *Writer) PutU32(v uint32) {
	if b := w.reserve("PutU32", 4); b != nil {
		binary.BigEndian.PutUint32(b, v)
	}
}

func (w *Writer) PutU64(v uint64) {
	if b := w.reserve("PutU64", 8); b != nil {
		binary.BigEndian.PutUint64(b, v)
	}
}

func (w *Writer) PutF32(v float32) {
	if b := w.reserve("PutF32", 4); b != nil {
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	}
}

func (w *Writer) PutF64(v float64) {
	if b := w.reserve("PutF64", 8); b != nil {
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

func (w *Writer) PutVec2(v vec.Vec2) {
	if b := w.reserve("PutVec2", 8); b != nil {
		binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(v.X))
		binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(v.Y))
	}
}

func (w *Writer) PutBytes(v []byte) {
	if b := w.reserve("PutBytes", len(v)); b != nil {
		copy(b, v)
	}
}

// PutString writes a one-byte length followed by at most maxLen bytes of s.
// Longer strings are truncated without error.
func (w *Writer) PutString(s string, maxLen int) {
	if maxLen > math.MaxUint8 {
		maxLen = math.MaxUint8
	}
	if maxLen < 0 {
		maxLen = 0
	}
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	b := w.reserve("PutString", 1+len(s))
	if b == nil {
		return
	}
	b[0] = uint8(len(s))
	copy(b[1:], s)
}

// Pad zero-fills the buffer up to n bytes total.
func (w *Writer) Pad(n int) {
	if n <= w.n {
		return
	}
	if b := w.reserve("Pad", n-w.n); b != nil {
		clear(b)
	}
}

// SetU8At overwrites an already-packed byte, used for counts that are only
// known after the entries have been packed.
func (w *Writer) SetU8At(offset int, v uint8) {
	if w.err != nil {
		return
	}
	if offset < 0 || offset >= w.n {
		w.err = &errors.Overrun{
			Operation: "SetU8At",
			Offset:    offset,
			Size:      1,
			Capacity:  w.n,
		}
		return
	}
	w.buf[offset] = v
}
