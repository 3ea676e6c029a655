// Package printer implements the LPT1: to LPT3: devices.
//
// A port is attached by a backend spec from the settings:
//
//	FILE:path        append to a host file
//	STDIO:           standard output
//	PRINTER:[name]   spool to a temp file and hand it to the host printer
//	                 each time a handle closes
//
// An empty spec leaves LPT1: as a null sink and LPT2:/LPT3: unavailable.
package printer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/acolita/basic-fileio/internal/codepage"
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/ports"
)

// SpoolFunc submits a finished spool file to a host printer. An empty
// printer name means the host default.
type SpoolFunc func(printer, path string) error

// LPR submits path with the host's lpr command.
func LPR(printer, path string) error {
	args := []string{path}
	if printer != "" {
		args = []string{"-P", printer, path}
	}
	out, err := exec.Command("lpr", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("lpr: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Options configures a printer port.
type Options struct {
	Backend string
	// NullDefault makes an empty Backend a null sink instead of
	// unavailable.
	NullDefault bool
	FS          ports.FileSystem
	Stdout      io.Writer
	// Codepage, if set, converts output to UTF-8 on the host.
	Codepage *codepage.Codepage
	// TempDir holds spool files; empty means the host default.
	TempDir string
	Spool   SpoolFunc
}

// Device is a printer port.
type Device struct {
	name string
	opts Options
	out  *sink
}

// New returns the printer device name (e.g. "LPT1:").
func New(name string, opts Options) (*Device, error) {
	if opts.Spool == nil {
		opts.Spool = LPR
	}
	d := &Device{name: name, opts: opts}
	out, err := d.attach()
	if err != nil {
		return nil, err
	}
	d.out = out
	return d, nil
}

func (d *Device) Name() string { return d.name }

// Available reports whether the port has a sink.
func (d *Device) Available() bool { return d.out != nil }

// attach builds the sink for the backend spec.
func (d *Device) attach() (*sink, error) {
	kind, arg, _ := strings.Cut(d.opts.Backend, ":")
	var w io.Writer
	var closer io.Closer
	var sp *spooler
	switch strings.ToUpper(kind) {
	case "":
		if !d.opts.NullDefault {
			return nil, nil
		}
		w = io.Discard
	case "FILE":
		if d.opts.FS == nil {
			return nil, errors.New("printer file backend needs a filesystem")
		}
		f, err := d.opts.FS.OpenFile(arg, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open printer file %s: %w", arg, err)
		}
		w, closer = f, f
	case "STDIO":
		w = d.opts.Stdout
		if w == nil {
			w = os.Stdout
		}
	case "PRINTER":
		sp = &spooler{printer: arg, dir: d.opts.TempDir, submit: d.opts.Spool}
		w = sp
	default:
		return nil, fmt.Errorf("unknown printer backend %q", kind)
	}
	if d.opts.Codepage != nil {
		w = d.opts.Codepage.Writer(w)
	}
	return &sink{w: bufio.NewWriter(w), closer: closer, spool: sp, col: 1}, nil
}

// Col returns the print head column, for LPOS. An unattached port reports 1.
func (d *Device) Col() int {
	if d.out == nil {
		return 1
	}
	return d.out.col
}

// Write prints bytes directly, as LPRINT does.
func (d *Device) Write(p []byte) (int, error) {
	if d.out == nil {
		return 0, ioerr.Op("LPRINT", ioerr.DeviceUnavailable)
	}
	if err := d.out.write(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Open opens the port for output. Every handle shares the port's print
// head.
func (d *Device) Open(req device.OpenRequest) (device.Handle, error) {
	if d.out == nil {
		return nil, ioerr.Op("OPEN", ioerr.DeviceUnavailable)
	}
	if req.Mode == device.Input {
		return nil, ioerr.Op("OPEN", ioerr.BadFileMode)
	}
	f := &File{Base: device.NewBase(req.Number, req.Mode), out: d.out}
	if req.Mode == device.Random {
		reclen := req.RecLen
		if reclen <= 0 {
			reclen = 128
		}
		f.field = device.NewFieldBuffer(reclen)
	}
	return f, nil
}

// Close flushes pending output and releases the sink.
func (d *Device) Close() error {
	if d.out == nil {
		return nil
	}
	return d.out.close()
}

// sink is the print head of a port.
type sink struct {
	w      *bufio.Writer
	closer io.Closer
	spool  *spooler
	col    int
}

func (s *sink) write(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return ioerr.Wrap("PRINT", ioerr.DeviceIOError, err)
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r', '\n', '\f':
			s.col = 1
		case '\b':
			if s.col > 1 {
				s.col--
			}
		default:
			s.col++
		}
	}
	return nil
}

// flush writes buffered output and submits a pending spool job.
func (s *sink) flush() error {
	if err := s.w.Flush(); err != nil {
		return ioerr.Wrap("CLOSE", ioerr.DeviceIOError, err)
	}
	if s.spool != nil {
		if err := s.spool.submitJob(); err != nil {
			return ioerr.Wrap("CLOSE", ioerr.DeviceIOError, err)
		}
	}
	return nil
}

func (s *sink) close() error {
	err := s.flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = ioerr.Wrap("CLOSE", ioerr.DeviceIOError, cerr)
		}
	}
	return err
}

// spooler collects a print job in a temp file.
type spooler struct {
	printer string
	dir     string
	submit  SpoolFunc
	job     *os.File
}

func (s *spooler) Write(p []byte) (int, error) {
	if s.job == nil {
		f, err := os.CreateTemp(s.dir, "lpt-*.prn")
		if err != nil {
			return 0, err
		}
		s.job = f
	}
	return s.job.Write(p)
}

func (s *spooler) submitJob() error {
	if s.job == nil {
		return nil
	}
	path := s.job.Name()
	err := s.job.Close()
	s.job = nil
	if err == nil {
		err = s.submit(s.printer, path)
	}
	slog.Info("print job submitted",
		slog.String("printer", s.printer),
		slog.String("spool", path),
		slog.Bool("ok", err == nil),
	)
	if rerr := os.Remove(path); rerr != nil && err == nil {
		slog.Warn("spool file not removed", slog.String("spool", path), slog.String("error", rerr.Error()))
	}
	return err
}

// File is an open printer handle.
type File struct {
	device.Base
	out   *sink
	field *device.FieldBuffer
}

func (f *File) WriteText(s string) error { return f.out.write(s) }

func (f *File) WriteLine(s string) error { return f.out.write(s + "\r\n") }

// Col returns the shared print head column.
func (f *File) Col() int { return f.out.col }

func (f *File) Field() *device.FieldBuffer { return f.field }

// Stream lets a RANDOM printer file PUT its field buffer.
func (f *File) Stream() (device.StreamIO, bool) {
	if f.field == nil {
		return nil, false
	}
	return f, true
}

func (f *File) RecordLength() int { return f.field.Len() }

// Put prints the first n bytes of the field buffer.
func (f *File) Put(n int) error {
	buf := f.field.Bytes()
	if n > len(buf) {
		n = len(buf)
	}
	return f.out.write(string(buf[:n]))
}

// Get is not possible on a printer.
func (f *File) Get(n int) error {
	return ioerr.Op("GET", ioerr.BadFileMode)
}

// Close flushes the port, which prints a spooled job.
func (f *File) Close() error { return f.out.flush() }

var (
	_ device.Device   = (*Device)(nil)
	_ device.Handle   = (*File)(nil)
	_ device.StreamIO = (*File)(nil)
)
