package webcpp

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Frame_RFCExamples(t *testing.T) {
	f, n, err := ParseFrame([]byte{0x81, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, Frame{Fin: true, Opcode: OpText, Payload: []byte("Hello")}, f)

	f, n, err = ParseFrame([]byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58})
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.True(t, f.Masked)
	assert.Equal(t, "Hello", string(f.Payload))

	f, _, err = ParseFrame([]byte{0x01, 0x03, 0x48, 0x65, 0x6c})
	require.NoError(t, err)
	assert.False(t, f.Fin)
	assert.Equal(t, OpText, f.Opcode)
	f, _, err = ParseFrame([]byte{0x80, 0x02, 0x6c, 0x6f})
	require.NoError(t, err)
	assert.True(t, f.Fin)
	assert.Equal(t, OpContinuation, f.Opcode)

	f, _, err = ParseFrame([]byte{0x89, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f})
	require.NoError(t, err)
	assert.Equal(t, OpPing, f.Opcode)
	assert.Equal(t, "Hello", string(f.Payload))
}

func Test_Frame_Lengths(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 127, 65535, 65536, 70000} {
		payload := bytes.Repeat([]byte{'x', 'y', 'z'}, size/3+1)[:size]
		hdrSize := 2
		if size > 65535 {
			hdrSize = 10
		} else if size > 125 {
			hdrSize = 4
		}
		for _, masked := range []bool{false, true} {
			var mask *[4]byte
			want := hdrSize
			if masked {
				key := NewMaskKey()
				mask = &key
				want += 4
			}
			b := AppendFrame(nil, true, OpBinary, payload, mask)
			fh := FrameHeader(b)
			require.True(t, fh.Complete())
			assert.Equal(t, want, fh.Size(), "size %d masked %v", size, masked)
			assert.Equal(t, uint64(size), fh.PayloadSize())
			assert.Equal(t, masked, fh.Masked())
			if masked {
				assert.Equal(t, *mask, fh.MaskKey())
			}

			f, n, err := ParseFrame(b)
			require.NoError(t, err)
			assert.Equal(t, len(b), n)
			assert.Equal(t, payload, append([]byte{}, f.Payload...))
			assert.Equal(t, masked, f.Masked)
		}
	}
}

func Test_Frame_Incomplete(t *testing.T) {
	key := NewMaskKey()
	b := AppendFrame(nil, true, OpText, bytes.Repeat([]byte("a"), 300), &key)
	for i := 0; i < len(b); i++ {
		_, n, err := ParseFrame(b[:i])
		require.NoError(t, err)
		require.Equal(t, 0, n, "at %d", i)
	}
	b = append(b, 0x81)
	_, n, err := ParseFrame(b)
	assert.NoError(t, err)
	assert.Equal(t, len(b)-1, n)
}

func Test_Frame_ProtocolErrors(t *testing.T) {
	_, _, err := ParseFrame([]byte{0xc1, 0x00})
	assert.Equal(t, ErrBadOpcode, errors.Cause(err))
	_, _, err = ParseFrame([]byte{0x83, 0x00})
	assert.Equal(t, ErrBadOpcode, errors.Cause(err))
	_, _, err = ParseFrame([]byte{0x09, 0x00})
	assert.Equal(t, ErrBadControl, errors.Cause(err))
	_, _, err = ParseFrame(AppendFrame(nil, true, OpPing, make([]byte, 126), nil))
	assert.Equal(t, ErrBadControl, errors.Cause(err))
	assert.True(t, IsProtocolViolation(err))
}

func Test_FrameHeader_String(t *testing.T) {
	assert.Equal(t, "[FrameHeader incomplete (1)]", FrameHeader{0x81}.String())
	assert.Equal(t, "[FrameHeader F. text 2 (2)]", FrameHeader(AppendFrame(nil, true, OpText, []byte("hi"), nil)).String())
	key := [4]byte{1, 2, 3, 4}
	assert.Equal(t, "[FrameHeader .M cont 3 (6)]", FrameHeader(AppendFrame(nil, false, OpContinuation, []byte("abc"), &key)).String())
}

func Test_Frame_MaskBytes(t *testing.T) {
	key := [4]byte{0xde, 0xad, 0xbe, 0xef}
	orig := []byte("the quick brown fox")
	b := append([]byte{}, orig...)
	pos := MaskBytes(key, b[:5], 0)
	assert.Equal(t, 1, pos)
	MaskBytes(key, b[5:], pos)
	assert.NotEqual(t, orig, b)
	MaskBytes(key, b, 0)
	assert.Equal(t, orig, b)
}

func Test_Opcode(t *testing.T) {
	assert.Equal(t, "text", OpText.String())
	assert.Equal(t, "0x3", Opcode(3).String())
	assert.True(t, OpPong.Valid())
	assert.False(t, Opcode(0xb).Valid())
	assert.True(t, OpClose.IsControl())
	assert.False(t, OpBinary.IsControl())
}

func Test_CloseMessage(t *testing.T) {
	b := FormatCloseMessage(CloseGoingAway, "bye")
	assert.Equal(t, []byte{0x03, 0xe9, 'b', 'y', 'e'}, b)
	code, text := ParseCloseMessage(b)
	assert.Equal(t, CloseGoingAway, code)
	assert.Equal(t, "bye", text)
	assert.Nil(t, FormatCloseMessage(CloseNoStatus, ""))
	code, _ = ParseCloseMessage(nil)
	assert.Equal(t, CloseNoStatus, code)
}
