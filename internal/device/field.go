package device

import (
	"fmt"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

// FieldBuffer is the record buffer of a random or serial file. FIELD binds
// string variables to slices of it; PUT and GET transfer it as a whole.
type FieldBuffer struct {
	buf  []byte
	vars map[string]fieldVar
}

type fieldVar struct {
	offset, width int
}

// NewFieldBuffer returns a zero-filled buffer of n bytes.
func NewFieldBuffer(n int) *FieldBuffer {
	return &FieldBuffer{
		buf:  make([]byte, n),
		vars: make(map[string]fieldVar),
	}
}

// Len returns the buffer size.
func (f *FieldBuffer) Len() int { return len(f.buf) }

// Bytes returns the buffer itself; writes through it are visible to bound
// variables.
func (f *FieldBuffer) Bytes() []byte { return f.buf }

func fieldKey(name string, index []int) string {
	if len(index) == 0 {
		return name
	}
	return fmt.Sprintf("%s%v", name, index)
}

// Attach binds variable name (with array index, if any) to width bytes at
// offset. A binding past the end of the buffer is a FIELD overflow.
func (f *FieldBuffer) Attach(name string, index []int, offset, width int) error {
	if offset < 0 || width < 0 {
		return ioerr.New(ioerr.IllegalFunctionCall)
	}
	if offset+width > len(f.buf) {
		return ioerr.New(ioerr.FieldOverflow)
	}
	f.vars[fieldKey(name, index)] = fieldVar{offset: offset, width: width}
	return nil
}

// Value returns the bytes bound to a variable.
func (f *FieldBuffer) Value(name string, index ...int) ([]byte, bool) {
	v, ok := f.vars[fieldKey(name, index)]
	if !ok {
		return nil, false
	}
	return f.buf[v.offset : v.offset+v.width], true
}

// LSet stores s left-justified in a bound variable, padded with spaces or
// truncated to its width.
func (f *FieldBuffer) LSet(name string, s []byte, index ...int) error {
	return f.set(name, index, s, false)
}

// RSet stores s right-justified in a bound variable.
func (f *FieldBuffer) RSet(name string, s []byte, index ...int) error {
	return f.set(name, index, s, true)
}

func (f *FieldBuffer) set(name string, index []int, s []byte, right bool) error {
	v, ok := f.vars[fieldKey(name, index)]
	if !ok {
		return ioerr.New(ioerr.IllegalFunctionCall)
	}
	dst := f.buf[v.offset : v.offset+v.width]
	if len(s) > len(dst) {
		s = s[:len(dst)]
	}
	for i := range dst {
		dst[i] = ' '
	}
	if right {
		copy(dst[len(dst)-len(s):], s)
	} else {
		copy(dst, s)
	}
	return nil
}
