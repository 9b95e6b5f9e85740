package webcpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ByteRange_Basics(t *testing.T) {
	buf := []byte("  hello\t ")
	br := ByteRange{0, len(buf)}
	assert.Equal(t, 9, br.Len())
	assert.False(t, br.Empty())
	assert.Equal(t, "[0,9)", br.String())
	trimmed := br.TrimSpace(buf)
	assert.Equal(t, ByteRange{2, 7}, trimmed)
	assert.Equal(t, "hello", trimmed.Text(buf))
	assert.True(t, ByteRange{3, 3}.Empty())
	assert.Equal(t, 0, ByteRange{5, 2}.Len())
	assert.Equal(t, "lo\t ", ByteRange{5, 100}.Text(buf))
}

func Test_ByteRange_SearchPosition(t *testing.T) {
	buf := []byte("abcabcabc")
	assert.Equal(t, 0, SearchPosition(buf, []byte("abc"), 0, len(buf)))
	assert.Equal(t, 3, SearchPosition(buf, []byte("abc"), 1, len(buf)))
	assert.Equal(t, NotFound, SearchPosition(buf, []byte("abc"), 7, len(buf)))
	assert.Equal(t, NotFound, SearchPosition(buf, []byte("x"), 0, len(buf)))
	assert.Equal(t, NotFound, SearchPosition(buf, nil, 0, len(buf)))
	assert.Equal(t, NotFound, SearchPosition(buf, []byte("abc"), 0, 2))
	assert.Equal(t, 6, SearchPositionReverse(buf, []byte("abc"), 0, len(buf)))
	assert.Equal(t, 3, SearchPositionReverse(buf, []byte("abc"), 0, 8))
	assert.Equal(t, NotFound, SearchPositionReverse(buf, []byte("cab"), 3, 5))
}

func Test_ByteRange_Split(t *testing.T) {
	buf := []byte("a,b,,c")
	ranges := Split(buf, []byte(","), 0, len(buf))
	if assert.Len(t, ranges, 4) {
		assert.Equal(t, "a", ranges[0].Text(buf))
		assert.Equal(t, "b", ranges[1].Text(buf))
		assert.True(t, ranges[2].Empty())
		assert.Equal(t, "c", ranges[3].Text(buf))
	}
	ranges = Split(buf, []byte(";"), 0, len(buf))
	assert.Equal(t, []ByteRange{{0, 6}}, ranges)

	rev := SplitReverse(buf, []byte(","), 0, len(buf))
	if assert.Len(t, rev, 4) {
		assert.Equal(t, "c", rev[0].Text(buf))
		assert.True(t, rev[1].Empty())
		assert.Equal(t, "b", rev[2].Text(buf))
		assert.Equal(t, "a", rev[3].Text(buf))
	}
}
