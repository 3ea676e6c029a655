package device

import (
	"bufio"
	"errors"
	"io"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

// CtrlZ is the DOS end-of-file marker.
const CtrlZ = 0x1a

// TextOptions configures a TextFile.
type TextOptions struct {
	// CtrlZ makes ^Z end input, and appends ^Z when an output file closes.
	CtrlZ bool
	// Closer is closed when the handle closes.
	Closer io.Closer
	// Size reports LOF; nil means 0.
	Size func() (int64, error)
	// FlushOnWrite flushes after every write, for interactive sinks.
	FlushOnWrite bool
}

// TextFile is a sequential handle over a byte stream.
type TextFile struct {
	Base
	r    *bufio.Reader
	w    *bufio.Writer
	opts TextOptions
	col  int
	pos  int64
}

// NewTextFile returns a sequential handle reading from r and writing to w;
// either may be nil.
func NewTextFile(number int, m Mode, r io.Reader, w io.Writer, opts TextOptions) *TextFile {
	f := &TextFile{Base: NewBase(number, m), opts: opts, col: 1}
	if r != nil {
		f.r = bufio.NewReader(r)
	}
	if w != nil {
		f.w = bufio.NewWriter(w)
	}
	return f
}

// Col returns the 1-based output column.
func (f *TextFile) Col() int { return f.col }

// Input reads exactly n bytes.
func (f *TextFile) Input(n int) ([]byte, error) {
	if f.r == nil {
		return nil, ioerr.New(ioerr.BadFileMode)
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		c, err := f.r.ReadByte()
		if errors.Is(err, io.EOF) || (err == nil && f.opts.CtrlZ && c == CtrlZ) {
			if err == nil {
				_ = f.r.UnreadByte()
			}
			return out, ioerr.New(ioerr.InputPastEnd)
		}
		if err != nil {
			return out, ioerr.Wrap("INPUT$", ioerr.DeviceIOError, err)
		}
		out = append(out, c)
		f.pos++
	}
	return out, nil
}

// EOF reports whether no further input is available.
func (f *TextFile) EOF() (bool, error) {
	if f.r == nil {
		return false, nil
	}
	c, err := f.r.Peek(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, ioerr.Wrap("EOF", ioerr.DeviceIOError, err)
	}
	return f.opts.CtrlZ && c[0] == CtrlZ, nil
}

// Loc returns the number of 128-byte blocks transferred so far.
func (f *TextFile) Loc() (int64, error) {
	return f.pos / 128, nil
}

// LOF returns the backing size, if known.
func (f *TextFile) LOF() (int64, error) {
	if f.opts.Size == nil {
		return 0, nil
	}
	return f.opts.Size()
}

// WriteText writes s and tracks the output column.
func (f *TextFile) WriteText(s string) error {
	if f.w == nil {
		return ioerr.New(ioerr.BadFileMode)
	}
	if _, err := f.w.WriteString(s); err != nil {
		return ioerr.Wrap("PRINT", ioerr.DeviceIOError, err)
	}
	f.pos += int64(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r', '\n':
			f.col = 1
		case '\b':
			if f.col > 1 {
				f.col--
			}
		default:
			f.col++
		}
	}
	if f.opts.FlushOnWrite {
		return f.Flush()
	}
	return nil
}

// WriteLine writes s followed by CR LF.
func (f *TextFile) WriteLine(s string) error {
	return f.WriteText(s + "\r\n")
}

// Flush writes buffered output to the sink.
func (f *TextFile) Flush() error {
	if f.w == nil {
		return nil
	}
	if err := f.w.Flush(); err != nil {
		return ioerr.Wrap("FLUSH", ioerr.DeviceIOError, err)
	}
	return nil
}

// Close flushes output, appends ^Z where configured and closes the sink.
func (f *TextFile) Close() error {
	var err error
	if f.w != nil {
		if f.opts.CtrlZ && f.Mode() != Input {
			_ = f.w.WriteByte(CtrlZ)
		}
		err = f.Flush()
	}
	if f.opts.Closer != nil {
		if cerr := f.opts.Closer.Close(); cerr != nil && err == nil {
			err = ioerr.Wrap("CLOSE", ioerr.DeviceIOError, cerr)
		}
	}
	return err
}

var _ Handle = (*TextFile)(nil)
