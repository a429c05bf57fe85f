package encode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/operand"
)

// rel8 patches a one-byte displacement relative to the end of the field
func rel8(code []byte, at, target int) error {
	d := target - (at + 1)
	if d < -128 || d > 127 {
		return diag.Encoding("rel8 out of range: %d", d)
	}
	code[at] = byte(int8(d))
	return nil
}

func TestBufferLabels(t *testing.T) {
	b := NewBuffer("test")
	b.Begin()
	b.Byte(0xEB, 0x00) // forward jump
	b.Use(operand.Label(1), 1, rel8)
	b.Begin()
	b.Byte(0x90, 0x90, 0x90)
	require.NoError(t, b.Bind(operand.Label(1)))
	b.Begin()
	b.Byte(0xEB, 0x00) // backward jump
	b.Use(operand.Label(1), 6, rel8)

	code, err := b.Finish()
	require.NoError(t, err)
	require.Equal(t, []byte{0xEB, 0x03, 0x90, 0x90, 0x90, 0xEB, 0xFE}, code)
	require.Equal(t, []int{0, 2, 5}, b.Starts())
	require.True(t, b.IsCommitted())

	_, err = b.Write([]byte{0})
	require.True(t, errors.Is(err, diag.ErrInternal))
}

func TestBufferUnboundLabel(t *testing.T) {
	b := NewBuffer("test")
	b.Byte(0xEB, 0x00)
	b.Use(operand.Label(7), 1, rel8)
	_, err := b.Finish()
	require.True(t, errors.Is(err, diag.ErrConfig))
	require.Contains(t, err.Error(), "L7")
	require.False(t, b.IsCommitted())
}

func TestBufferBindTwice(t *testing.T) {
	b := NewBuffer("test")
	require.NoError(t, b.Bind(operand.Label(0)))
	require.True(t, errors.Is(b.Bind(operand.Label(0)), diag.ErrConfig))
}

func TestWords(t *testing.T) {
	b := NewBuffer("words")
	b.Word(0xD503201F)
	b.Word(0x4E208420)
	require.Equal(t, []uint32{0xD503201F, 0x4E208420}, Words(b.Bytes()))
	code := b.Bytes()
	PutWord(code, 4, 0x12345678)
	require.Equal(t, uint32(0x12345678), WordAt(code, 4))
}

var testLayout = &Layout{Name: "test", Fixed: 0x80000000, Mask: 0x80000000, Fields: []Field{
	F("a", 0, 5), F("imm", 5, 9),
}}

func TestLayoutPack(t *testing.T) {
	w, err := testLayout.Pack(0, U("a", 31), S("imm", -1))
	require.NoError(t, err)
	require.Equal(t, uint32(0x80000000|0x1FF<<5|31), w)
	require.True(t, testLayout.Matches(w))
	f := testLayout.Unpack(w)
	require.Equal(t, uint32(31), f["a"])
	require.Equal(t, int64(-1), SignExtend(f["imm"], 9))

	_, err = testLayout.Pack(0, U("a", 32))
	require.True(t, errors.Is(err, diag.ErrEncoding))
	_, err = testLayout.Pack(0, S("imm", 256))
	require.True(t, errors.Is(err, diag.ErrEncoding))
	_, err = testLayout.Pack(0, U("nope", 0))
	require.True(t, errors.Is(err, diag.ErrInternal))
}
