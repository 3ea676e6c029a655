package disk

import (
	"io"
	"log/slog"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/locks"
	"github.com/acolita/basic-fileio/internal/ports"
	"github.com/acolita/basic-fileio/internal/record"
)

// shared is the part of every disk handle that ties it to its resource.
type shared struct {
	dev   *Device
	file  ports.File
	res   string
	owner locks.Owner
}

// release closes the host file and drops the handle's opens and locks.
func (s *shared) release() error {
	err := s.file.Close()
	s.dev.locks.Release(s.res, s.owner)
	slog.Debug("disk file closed", slog.String("resource", s.res))
	if err != nil {
		return ioerr.Wrap("CLOSE", ioerr.DeviceIOError, err)
	}
	return nil
}

func (s *shared) size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, ioerr.Wrap("LOF", ioerr.DeviceIOError, err)
	}
	return info.Size(), nil
}

// textFile is a sequential disk file.
type textFile struct {
	*device.TextFile
	shared
}

func newTextFile(req device.OpenRequest, s shared) (*textFile, error) {
	data := req.FileType == device.Data
	var r io.Reader
	var w io.Writer
	switch req.Mode {
	case device.Input:
		r = s.file
	case device.Append:
		if err := seekAppend(s.file); err != nil {
			return nil, err
		}
		w = s.file
	default:
		w = s.file
	}
	if data && s.dev.opts.UTF8 && s.dev.opts.Codepage != nil {
		if r != nil {
			r = s.dev.opts.Codepage.Reader(r)
		}
		if w != nil {
			w = s.dev.opts.Codepage.Writer(w)
		}
	}
	f := &textFile{shared: s}
	f.TextFile = device.NewTextFile(req.Number, req.Mode, r, w, device.TextOptions{
		CtrlZ: data,
		Size:  s.size,
	})
	return f, nil
}

// seekAppend positions f at its end, backing over a trailing ^Z.
func seekAppend(f ports.File) error {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return ioerr.Wrap("OPEN", ioerr.DeviceIOError, err)
	}
	if end == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, end-1); err != nil && err != io.EOF {
		return ioerr.Wrap("OPEN", ioerr.DeviceIOError, err)
	}
	if last[0] == device.CtrlZ {
		if _, err := f.Seek(end-1, io.SeekStart); err != nil {
			return ioerr.Wrap("OPEN", ioerr.DeviceIOError, err)
		}
	}
	return nil
}

func (f *textFile) Close() error {
	err := f.TextFile.Close()
	if rerr := f.release(); err == nil {
		err = rerr
	}
	return err
}

// Locker locks the whole file: sequential files ignore record ranges.
func (f *textFile) Locker() (device.Locker, bool) { return f, true }

func (f *textFile) Lock(start, stop int64) error {
	return f.dev.locks.Lock(f.res, f.owner, 1, record.MaxLock)
}

func (f *textFile) Unlock(start, stop int64) error {
	return f.dev.locks.Unlock(f.res, f.owner, 1, record.MaxLock)
}

// randomFile is a RANDOM disk file.
type randomFile struct {
	device.Base
	shared
	access device.Access
	reclen int
	field  *device.FieldBuffer
	next   int64 // record addressed by the next PUT or GET
	last   int64 // record of the last PUT or GET, for LOC
	eof    bool
	cursor int // PRINT# and INPUT$ position in the field buffer
}

func newRandomFile(req device.OpenRequest, access device.Access, s shared) *randomFile {
	return &randomFile{
		Base:   device.NewBase(req.Number, device.Random),
		shared: s,
		access: access,
		reclen: req.RecLen,
		field:  device.NewFieldBuffer(req.RecLen),
		next:   1,
	}
}

func (f *randomFile) Records() (device.RecordIO, bool) { return f, true }
func (f *randomFile) Locker() (device.Locker, bool)    { return f, true }
func (f *randomFile) Field() *device.FieldBuffer       { return f.field }
func (f *randomFile) RecordLength() int                { return f.reclen }

func (f *randomFile) SetRecord(rec int64) error {
	f.next = rec
	return nil
}

func (f *randomFile) offset(rec int64) int64 {
	return (rec - 1) * int64(f.reclen)
}

// Put writes the field buffer to the addressed record.
func (f *randomFile) Put() error {
	if !f.access.CanWrite() {
		return ioerr.Op("PUT", ioerr.PathFileAccessError)
	}
	if err := f.dev.locks.Check(f.res, f.owner, f.next); err != nil {
		return err
	}
	if _, err := f.file.WriteAt(f.field.Bytes(), f.offset(f.next)); err != nil {
		return hostError("PUT", err, ioerr.DeviceIOError)
	}
	f.advance()
	return nil
}

// Get reads the addressed record into the field buffer. Bytes past the end
// of the file read as zero and set EOF.
func (f *randomFile) Get() error {
	if !f.access.CanRead() {
		return ioerr.Op("GET", ioerr.PathFileAccessError)
	}
	if err := f.dev.locks.Check(f.res, f.owner, f.next); err != nil {
		return err
	}
	buf := f.field.Bytes()
	n, err := f.file.ReadAt(buf, f.offset(f.next))
	if err != nil && err != io.EOF {
		return hostError("GET", err, ioerr.DeviceIOError)
	}
	clear(buf[n:])
	f.eof = n < len(buf)
	f.advance()
	return nil
}

func (f *randomFile) advance() {
	f.last = f.next
	f.next++
	f.cursor = 0
}

func (f *randomFile) Loc() (int64, error) { return f.last, nil }
func (f *randomFile) EOF() (bool, error)  { return f.eof, nil }
func (f *randomFile) LOF() (int64, error) { return f.size() }

// Input reads from the field buffer.
func (f *randomFile) Input(n int) ([]byte, error) {
	if f.cursor+n > f.reclen {
		return nil, ioerr.Op("INPUT$", ioerr.FieldOverflow)
	}
	out := make([]byte, n)
	copy(out, f.field.Bytes()[f.cursor:])
	f.cursor += n
	return out, nil
}

// WriteText writes into the field buffer.
func (f *randomFile) WriteText(s string) error {
	if f.cursor+len(s) > f.reclen {
		return ioerr.Op("PRINT", ioerr.FieldOverflow)
	}
	copy(f.field.Bytes()[f.cursor:], s)
	f.cursor += len(s)
	return nil
}

func (f *randomFile) WriteLine(s string) error {
	return f.WriteText(s + "\r\n")
}

func (f *randomFile) Lock(start, stop int64) error {
	return f.dev.locks.Lock(f.res, f.owner, start, stop)
}

func (f *randomFile) Unlock(start, stop int64) error {
	return f.dev.locks.Unlock(f.res, f.owner, start, stop)
}

func (f *randomFile) Close() error {
	return f.release()
}

var (
	_ device.Handle   = (*textFile)(nil)
	_ device.Handle   = (*randomFile)(nil)
	_ device.RecordIO = (*randomFile)(nil)
	_ device.Locker   = (*randomFile)(nil)
)
