// wsframe.go

// A WebSocket frame header is between two and fourteen bytes. The first
// byte holds the FIN bit, three reserved bits and the opcode. The second
// byte holds the MASK bit and a seven bit length. Length 126 means the
// real length follows as a 16-bit big endian value, 127 means it follows
// as a 64-bit value. If MASK is set, four bytes of masking key follow.

package webcpp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	frameFinBit  = 0x80
	frameRsvBits = 0x70
	frameOpBits  = 0x0f
	frameMaskBit = 0x80
	frameLenBits = 0x7f

	frameLen16 = 126
	frameLen64 = 127

	// FrameMaxHeaderSize is the largest possible frame header.
	FrameMaxHeaderSize = 2 + 8 + 4
)

// FrameHeader is a view of the header bytes at the start of a frame.
// Methods other than Complete require Complete to return true.
type FrameHeader []byte

func (fh FrameHeader) String() string {
	if !fh.Complete() {
		return fmt.Sprintf("[FrameHeader incomplete (%d)]", len(fh))
	}
	fin := "."
	if fh.Fin() {
		fin = "F"
	}
	mask := "."
	if fh.Masked() {
		mask = "M"
	}
	return fmt.Sprintf("[FrameHeader %s%s %s %d (%d)]", fin, mask, fh.Opcode(), fh.PayloadSize(), fh.Size())
}

// Complete returns true if fh holds the whole header.
func (fh FrameHeader) Complete() bool {
	return len(fh) >= 2 && len(fh) >= fh.Size()
}

// Size returns the number of header bytes, including extended length
// and masking key. It needs only the first two bytes.
func (fh FrameHeader) Size() int {
	n := 2
	switch fh[1] & frameLenBits {
	case frameLen16:
		n += 2
	case frameLen64:
		n += 8
	}
	if fh.Masked() {
		n += 4
	}
	return n
}

// Fin returns true if the frame is the last of a message.
func (fh FrameHeader) Fin() bool {
	return fh[0]&frameFinBit != 0
}

// Rsv returns the three reserved bits.
func (fh FrameHeader) Rsv() byte {
	return (fh[0] & frameRsvBits) >> 4
}

// Opcode returns the frame opcode.
func (fh FrameHeader) Opcode() Opcode {
	return Opcode(fh[0] & frameOpBits)
}

// Masked returns true if the payload is masked.
func (fh FrameHeader) Masked() bool {
	return fh[1]&frameMaskBit != 0
}

// PayloadSize returns the payload length.
func (fh FrameHeader) PayloadSize() uint64 {
	switch n := fh[1] & frameLenBits; n {
	case frameLen16:
		return uint64(binary.BigEndian.Uint16(fh[2:4]))
	case frameLen64:
		return binary.BigEndian.Uint64(fh[2:10])
	default:
		return uint64(n)
	}
}

// MaskKey returns the masking key, or zeroes if the frame is unmasked.
func (fh FrameHeader) MaskKey() (key [4]byte) {
	if fh.Masked() {
		n := fh.Size()
		copy(key[:], fh[n-4:n])
	}
	return
}

// Frame is one parsed WebSocket frame. Payload is always unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("[Frame fin=%v %s masked=%v %d]", f.Fin, f.Opcode, f.Masked, len(f.Payload))
}

// ParseFrame parses the frame at the start of buf. If buf does not yet
// hold the whole frame it returns zero bytes consumed and a nil error.
// Unmasked frames are accepted regardless of direction.
func ParseFrame(buf []byte) (f Frame, n int, err error) {
	fh := FrameHeader(buf)
	if !fh.Complete() {
		return
	}
	hs := fh.Size()
	size := fh.PayloadSize()
	if size > (1<<63)-1 {
		return f, 0, errors.Wrapf(ErrBadFrameLength, "%d", size)
	}
	if size > uint64(len(buf)-hs) {
		return
	}
	op := fh.Opcode()
	if fh.Rsv() != 0 {
		return f, 0, errors.Wrapf(ErrBadOpcode, "reserved bits 0x%x", fh.Rsv())
	}
	if !op.Valid() {
		return f, 0, errors.Wrapf(ErrBadOpcode, "%s", op)
	}
	if op.IsControl() && (!fh.Fin() || size > MaxWSControlPayload) {
		return f, 0, errors.Wrapf(ErrBadControl, "%v", fh)
	}
	end := hs + int(size)
	f = Frame{
		Fin:     fh.Fin(),
		Opcode:  op,
		Masked:  fh.Masked(),
		Payload: append([]byte(nil), buf[hs:end]...),
	}
	if f.Masked {
		MaskBytes(fh.MaskKey(), f.Payload, 0)
	}
	return f, end, nil
}

// AppendFrame appends a frame holding payload to dst. If mask is not
// nil the payload is masked with it; clients must mask, servers must not.
func AppendFrame(dst []byte, fin bool, op Opcode, payload []byte, mask *[4]byte) []byte {
	b0 := byte(op) & frameOpBits
	if fin {
		b0 |= frameFinBit
	}
	var b1 byte
	if mask != nil {
		b1 = frameMaskBit
	}
	n := len(payload)
	switch {
	case n < frameLen16:
		dst = append(dst, b0, b1|byte(n))
	case n <= 0xffff:
		dst = append(dst, b0, b1|frameLen16, byte(n>>8), byte(n))
	default:
		dst = append(dst, b0, b1|frameLen64)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	if mask == nil {
		return append(dst, payload...)
	}
	dst = append(dst, mask[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	MaskBytes(*mask, dst[start:], 0)
	return dst
}

// MaskBytes XORs b with key in place, starting at key offset pos, and
// returns the key offset following the last byte.
func MaskBytes(key [4]byte, b []byte, pos int) int {
	for i := range b {
		b[i] ^= key[pos&3]
		pos++
	}
	return pos & 3
}

// NewMaskKey returns a random masking key.
func NewMaskKey() (key [4]byte) {
	if _, err := rand.Read(key[:]); err != nil {
		panic(err)
	}
	return
}
