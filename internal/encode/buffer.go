// Package encode turns lowered instructions into machine code. The
// architecture packages below it implement Encoder; this package holds the
// output buffer they all write to and the bit-field layouts of the fixed
// 32-bit word architectures.
package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
)

// Encoder appends the machine code of one instruction to a buffer
type Encoder interface {
	Encode(b *Buffer, in isa.Instr) error
}

// PatchFunc rewrites the branch at offset at so that it reaches target
type PatchFunc func(code []byte, at, target int) error

type fixup struct {
	label operand.Label
	at    int
	patch PatchFunc
}

// Buffer is an append-only code buffer with instruction boundaries and
// label fixups. Once Finish has been called it is committed and takes no
// more writes.
type Buffer struct {
	buf       bytes.Buffer
	name      string
	starts    []int
	labels    map[operand.Label]int
	fixups    []fixup
	committed bool
}

// NewBuffer creates a new Buffer with a name for debugging
func NewBuffer(name string) *Buffer {
	return &Buffer{name: name, labels: make(map[operand.Label]int)}
}

// Write appends bytes to the buffer. Writing to a committed buffer fails.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.committed {
		return 0, diag.Internal("buffer %s: write after commit", b.name)
	}
	return b.buf.Write(p)
}

// Byte appends raw bytes
func (b *Buffer) Byte(bs ...byte) {
	b.Write(bs)
}

// Uint32 appends v little-endian
func (b *Buffer) Uint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

// Uint64 appends v little-endian
func (b *Buffer) Uint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

// Word appends one fixed-width instruction word
func (b *Buffer) Word(w uint32) {
	b.Uint32(w)
}

// Begin marks the start of an instruction and returns its offset
func (b *Buffer) Begin() int {
	at := b.buf.Len()
	b.starts = append(b.starts, at)
	return at
}

// Trace logs the bytes written since start at debug level
func (b *Buffer) Trace(start int, text string) {
	l := diag.Logger()
	if ce := l.Check(zap.DebugLevel, "encoded"); ce != nil {
		ce.Write(
			zap.String("buffer", b.name),
			zap.Int("offset", start),
			zap.String("instr", text),
			zap.String("bytes", fmt.Sprintf("% x", b.buf.Bytes()[start:])),
		)
	}
}

// Bind places l at the current offset. A label can be bound once.
func (b *Buffer) Bind(l operand.Label) error {
	if at, ok := b.labels[l]; ok {
		return diag.New(diag.CategoryConfig).Detail("label %s already bound at offset %d", l, at).Build()
	}
	b.labels[l] = b.buf.Len()
	return nil
}

// Use records that the branch at offset at refers to l. The patch runs in
// Finish, when every label is known.
func (b *Buffer) Use(l operand.Label, at int, patch PatchFunc) {
	b.fixups = append(b.fixups, fixup{label: l, at: at, patch: patch})
}

// Finish resolves every label use and commits the buffer. An unbound label
// is a configuration error.
func (b *Buffer) Finish() ([]byte, error) {
	if b.committed {
		return b.buf.Bytes(), nil
	}
	code := b.buf.Bytes()
	var unbound []string
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			unbound = append(unbound, f.label.String())
			continue
		}
		if err := f.patch(code, f.at, target); err != nil {
			return nil, diag.WithContext(err, "", "branch to "+f.label.String())
		}
	}
	if len(unbound) > 0 {
		sort.Strings(unbound)
		return nil, diag.New(diag.CategoryConfig).Detail("unbound labels: %v", unbound).Build()
	}
	b.committed = true
	diag.Logger().Debug("buffer committed", zap.String("buffer", b.name), zap.Int("bytes", len(code)))
	return code, nil
}

// Bytes returns the buffer contents. Label uses are unpatched until Finish.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the buffer length
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Starts returns the offset of every instruction begun so far
func (b *Buffer) Starts() []int {
	return b.starts
}

// IsCommitted returns true once Finish succeeded
func (b *Buffer) IsCommitted() bool {
	return b.committed
}

// WordAt reads the little-endian word at offset at
func WordAt(code []byte, at int) uint32 {
	return binary.LittleEndian.Uint32(code[at:])
}

// PutWord stores w little-endian at offset at
func PutWord(code []byte, at int, w uint32) {
	binary.LittleEndian.PutUint32(code[at:], w)
}

// Words splits fixed-width code into instruction words
func Words(code []byte) []uint32 {
	words := make([]uint32, 0, len(code)/4)
	for i := 0; i+4 <= len(code); i += 4 {
		words = append(words, WordAt(code, i))
	}
	return words
}
