// Package serial implements the COM1: and COM2: devices over host byte
// streams.
//
// A port is attached by a backend spec from the settings:
//
//	SOCKET:host:port   TCP connection
//	PTY:               new pseudo-terminal; its peer path is logged
//	PORT:/dev/ttyS0    host serial device node
//	STDIO:             the process's standard input and output
//
// COM files are stream devices: the PUT/GET argument is a byte count, not
// a record number.
package serial

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/creack/pty"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/logging"
	"github.com/acolita/basic-fileio/internal/ports"
)

// Options configures a COM device.
type Options struct {
	// Backend is the backend spec; empty leaves the port unavailable.
	Backend string
	// BufferSize is the receive buffer size reported through LOF.
	BufferSize int
	Dialer     ports.NetworkDialer
	Stdin      io.Reader
	Stdout     io.Writer
}

// Device is a serial port.
type Device struct {
	name string
	opts Options
	file *File
}

// New returns the serial device name (e.g. "COM1:").
func New(name string, opts Options) *Device {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	return &Device{name: name, opts: opts}
}

func (d *Device) Name() string { return d.name }

// Available reports whether a backend is configured.
func (d *Device) Available() bool { return d.opts.Backend != "" }

// connect opens the backend stream. A socket waits up to the carrier
// detect timeout of the line settings.
func (d *Device) connect(ls LineSettings) (io.ReadWriteCloser, error) {
	kind, arg, _ := strings.Cut(d.opts.Backend, ":")
	switch strings.ToUpper(kind) {
	case "SOCKET":
		if d.opts.Dialer == nil {
			return nil, errors.New("no network dialer")
		}
		return d.opts.Dialer.DialTimeout("tcp", arg, ls.CarrierTimeout())
	case "PTY":
		ptmx, tty, err := pty.Open()
		if err != nil {
			return nil, err
		}
		slog.Info("serial port attached to pty",
			slog.String("device", d.name),
			slog.String("peer", tty.Name()),
		)
		return &ptyStream{File: ptmx, tty: tty}, nil
	case "PORT":
		return os.OpenFile(arg, os.O_RDWR, 0)
	case "STDIO":
		return stdioStream{r: d.opts.Stdin, w: d.opts.Stdout}, nil
	}
	return nil, errors.New("unknown serial backend " + kind)
}

// Open opens the port. Only one handle may have a port open at a time.
func (d *Device) Open(req device.OpenRequest) (device.Handle, error) {
	if !d.Available() {
		return nil, ioerr.Op("OPEN", ioerr.DeviceUnavailable)
	}
	settings, err := ParseLineSettings(req.Param)
	if err != nil {
		return nil, err
	}
	if d.file != nil {
		return nil, ioerr.Op("OPEN", ioerr.FileAlreadyOpen)
	}
	rw, err := d.connect(settings)
	if err != nil {
		slog.Warn("serial backend unavailable",
			slog.String("device", d.name),
			logging.Err(err),
		)
		return nil, ioerr.Wrap("OPEN", ioerr.DeviceTimeout, err)
	}
	reclen := req.RecLen
	if reclen <= 0 {
		reclen = 128
	}
	d.file = &File{
		Base:     device.NewBase(req.Number, req.Mode),
		dev:      d,
		rw:       rw,
		r:        bufio.NewReaderSize(rw, d.opts.BufferSize),
		field:    device.NewFieldBuffer(reclen),
		settings: settings,
	}
	return d.file, nil
}

// Close closes any open handle at session end.
func (d *Device) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// File is an open serial port.
type File struct {
	device.Base
	dev      *Device
	rw       io.ReadWriteCloser
	r        *bufio.Reader
	field    *device.FieldBuffer
	settings LineSettings
	ended    bool
}

// Settings returns the line settings given at open.
func (f *File) Settings() LineSettings { return f.settings }

func (f *File) Stream() (device.StreamIO, bool) { return f, true }
func (f *File) Field() *device.FieldBuffer      { return f.field }
func (f *File) RecordLength() int               { return f.field.Len() }

// Put sends the first n bytes of the field buffer.
func (f *File) Put(n int) error {
	buf := f.field.Bytes()
	if n > len(buf) {
		n = len(buf)
	}
	if _, err := f.rw.Write(buf[:n]); err != nil {
		return ioerr.Wrap("PUT", ioerr.DeviceIOError, err)
	}
	return nil
}

// Get receives up to n bytes into the field buffer, zero-filling the rest
// of the n.
func (f *File) Get(n int) error {
	buf := f.field.Bytes()
	if n > len(buf) {
		n = len(buf)
	}
	got, err := f.r.Read(buf[:n])
	clear(buf[got:n])
	if errors.Is(err, io.EOF) {
		f.ended = true
		return nil
	}
	if err != nil {
		return ioerr.Wrap("GET", ioerr.DeviceIOError, err)
	}
	return nil
}

// Input reads exactly n bytes.
func (f *File) Input(n int) ([]byte, error) {
	out := make([]byte, n)
	got, err := io.ReadFull(f.r, out)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		f.ended = true
		return out[:got], ioerr.Op("INPUT$", ioerr.InputPastEnd)
	}
	if err != nil {
		return out[:got], ioerr.Wrap("INPUT$", ioerr.DeviceIOError, err)
	}
	return out, nil
}

func (f *File) WriteText(s string) error {
	if _, err := io.WriteString(f.rw, s); err != nil {
		return ioerr.Wrap("PRINT", ioerr.DeviceIOError, err)
	}
	return nil
}

func (f *File) WriteLine(s string) error {
	return f.WriteText(s + "\r\n")
}

// Loc returns the number of received bytes waiting.
func (f *File) Loc() (int64, error) { return int64(f.r.Buffered()), nil }

// LOF returns the free space in the receive buffer.
func (f *File) LOF() (int64, error) {
	return int64(f.dev.opts.BufferSize - f.r.Buffered()), nil
}

// EOF reports whether the peer has closed the stream and nothing is waiting.
func (f *File) EOF() (bool, error) {
	return f.ended && f.r.Buffered() == 0, nil
}

func (f *File) Close() error {
	if f.dev.file != f {
		return nil
	}
	f.dev.file = nil
	if err := f.rw.Close(); err != nil {
		return ioerr.Wrap("CLOSE", ioerr.DeviceIOError, err)
	}
	return nil
}

// ptyStream is the master side of a pty; the peer side stays open while the
// port is open so that the peer path remains valid.
type ptyStream struct {
	*os.File
	tty *os.File
}

func (p *ptyStream) Close() error {
	err := p.File.Close()
	if terr := p.tty.Close(); err == nil {
		err = terr
	}
	return err
}

// stdioStream joins standard input and output; closing it leaves both
// open.
type stdioStream struct {
	r io.Reader
	w io.Writer
}

func (s stdioStream) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, io.EOF
	}
	return s.r.Read(p)
}

func (s stdioStream) Write(p []byte) (int, error) {
	if s.w == nil {
		return len(p), nil
	}
	return s.w.Write(p)
}

func (s stdioStream) Close() error { return nil }

var (
	_ device.Handle   = (*File)(nil)
	_ device.StreamIO = (*File)(nil)
)
