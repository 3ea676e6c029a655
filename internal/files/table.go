// Package files maps BASIC file numbers to open handles and implements the
// file statements and functions on top of the device registry.
package files

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/devices"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/logging"
	"github.com/acolita/basic-fileio/internal/ports"
	"github.com/acolita/basic-fileio/internal/record"
)

// DefaultRecLen is the record length of an OPEN without LEN.
const DefaultRecLen = 128

// Options configures a table.
type Options struct {
	// MaxFiles is the highest file number OPEN accepts.
	MaxFiles int
	// MaxRecLen is the longest record LEN accepts.
	MaxRecLen int
	// FS provides the home directory and environment for native paths.
	FS ports.FileSystem
	// Stdin and Stdout back the standard-stream handle; nil gives a null
	// handle instead.
	Stdin  io.Reader
	Stdout io.Writer
}

// Table is the number-to-handle map of a session.
type Table struct {
	devices *devices.Registry
	opts    Options
	files   map[int]device.Handle
}

// New returns an empty table over reg.
func New(reg *devices.Registry, opts Options) *Table {
	return &Table{
		devices: reg,
		opts:    opts,
		files:   make(map[int]device.Handle),
	}
}

// Devices returns the registry the table resolves names with.
func (t *Table) Devices() *devices.Registry { return t.devices }

// Numbers returns the open file numbers in ascending order.
func (t *Table) Numbers() []int {
	nums := make([]int, 0, len(t.files))
	for n := range t.files {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}

// SetLimits changes the file number and record length limits. Open files
// keep their numbers.
func (t *Table) SetLimits(maxFiles, maxRecLen int) {
	t.opts.MaxFiles, t.opts.MaxRecLen = maxFiles, maxRecLen
}

// Open opens description on its device and registers the handle under
// number; number 0 gives an unregistered handle owned by the caller.
// req supplies everything but the number and the device parameter.
func (t *Table) Open(number int, description string, req device.OpenRequest) (device.Handle, error) {
	if description == "" || number < 0 || number > t.opts.MaxFiles {
		return nil, ioerr.Op("OPEN", ioerr.BadFileNumber)
	}
	if _, ok := t.files[number]; ok {
		return nil, ioerr.Op("OPEN", ioerr.FileAlreadyOpen)
	}
	dev, param, err := t.devices.Resolve(description, req.Mode)
	if err != nil {
		return nil, err
	}
	req.Number, req.Param = number, param
	if req.RecLen == 0 {
		req.RecLen = DefaultRecLen
	}
	h, err := dev.Open(req)
	if err != nil {
		return nil, err
	}
	if number != 0 {
		t.files[number] = h
	}
	slog.Debug("file opened",
		slog.Int("number", number),
		slog.String("device", dev.Name()),
		slog.String("mode", req.Mode.String()),
	)
	return h, nil
}

// StatementOptions are the optional clauses of an OPEN statement. A nil
// Mode means RANDOM, a nil RecLen means 128.
type StatementOptions struct {
	Mode   *device.Mode
	RecLen *int
	Access device.Access
	Lock   device.LockMode
}

// OpenStatement implements OPEN for data files.
func (t *Table) OpenStatement(number int, name string, o StatementOptions) (device.Handle, error) {
	mode := device.Random
	if o.Mode != nil {
		mode = *o.Mode
	}
	reclen := DefaultRecLen
	if o.RecLen != nil {
		reclen = *o.RecLen
	}
	if err := CheckAccess(mode, o.Access); err != nil {
		return nil, err
	}
	access := o.Access
	if access == device.AccessDefault {
		access = device.DefaultAccess(mode)
	}
	if err := ioerr.RangeCheck(1, t.opts.MaxRecLen, reclen, ioerr.IllegalFunctionCall); err != nil {
		return nil, err
	}
	if err := ioerr.RangeCheck(1, t.opts.MaxFiles, number, ioerr.BadFileNumber); err != nil {
		return nil, err
	}
	return t.Open(number, name, device.OpenRequest{
		FileType: device.Data,
		Mode:     mode,
		Access:   access,
		Lock:     o.Lock,
		RecLen:   reclen,
	})
}

// Close closes and forgets number. Closing a number that is not open does
// nothing.
func (t *Table) Close(number int) error {
	h, ok := t.files[number]
	if !ok {
		return nil
	}
	delete(t.files, number)
	return h.Close()
}

// CloseAll closes every open file.
func (t *Table) CloseAll() error {
	var errs []error
	for _, n := range t.Numbers() {
		if err := t.Close(n); err != nil {
			errs = append(errs, fmt.Errorf("close #%d: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Get returns the handle open as number. A number below 1 is a bad file
// number; a number that is not open raises notOpen (BadFileNumber by
// default); a mode outside allowed is a bad file mode.
func (t *Table) Get(number int, allowed device.ModeSet, notOpen ...ioerr.Kind) (device.Handle, error) {
	if number < 1 {
		return nil, ioerr.New(ioerr.BadFileNumber)
	}
	h, ok := t.files[number]
	if !ok {
		k := ioerr.BadFileNumber
		if len(notOpen) > 0 {
			k = notOpen[0]
		}
		return nil, ioerr.New(k)
	}
	if !allowed.Has(h.Mode()) {
		return nil, ioerr.New(ioerr.BadFileMode)
	}
	return h, nil
}

// getNumeric validates a file number given as a function argument.
func (t *Table) getNumeric(number int, allowed device.ModeSet) (device.Handle, error) {
	if err := ioerr.RangeCheck(0, 255, number, ioerr.IllegalFunctionCall); err != nil {
		return nil, err
	}
	return t.Get(number, allowed)
}

// Field binds a variable to width bytes at offset of the handle's field
// buffer.
func (t *Table) Field(h device.Handle, name string, index []int, offset, width int) error {
	fb := h.Field()
	if fb == nil {
		return ioerr.Op("FIELD", ioerr.BadFileMode)
	}
	return fb.Attach(name, index, offset, width)
}

// Put writes a record. For a record file pos is the record number, for a
// stream file the byte count; nil means the next record, or a whole
// record's worth of bytes.
func (t *Table) Put(h device.Handle, pos *float64) error {
	return t.transfer("PUT", h, pos)
}

// GetRecord reads a record; pos is interpreted as for Put.
func (t *Table) GetRecord(h device.Handle, pos *float64) error {
	return t.transfer("GET", h, pos)
}

func (t *Table) transfer(op string, h device.Handle, pos *float64) error {
	var p int64
	if pos != nil {
		var err error
		if p, err = record.Position(*pos); err != nil {
			return err
		}
	}
	if rec, ok := h.Records(); ok {
		if pos != nil {
			if err := rec.SetRecord(p); err != nil {
				return err
			}
		}
		if op == "PUT" {
			return rec.Put()
		}
		return rec.Get()
	}
	if st, ok := h.Stream(); ok {
		n := st.RecordLength()
		if pos != nil {
			n = int(p)
		}
		if op == "PUT" {
			return st.Put(n)
		}
		return st.Get(n)
	}
	return ioerr.Op(op, ioerr.BadFileMode)
}

// Lock locks records start to stop of the handle's file. A nil start means
// record 1, a nil stop means start.
func (t *Table) Lock(h device.Handle, start, stop *float64) error {
	lo, hi, err := record.LockBounds(start, stop)
	if err != nil {
		return err
	}
	l, ok := h.Locker()
	if !ok {
		return ioerr.Op("LOCK", ioerr.PermissionDenied)
	}
	return l.Lock(lo, hi)
}

// Unlock releases a range taken by Lock with the same bounds.
func (t *Table) Unlock(h device.Handle, start, stop *float64) error {
	lo, hi, err := record.LockBounds(start, stop)
	if err != nil {
		return err
	}
	l, ok := h.Locker()
	if !ok {
		return ioerr.Op("UNLOCK", ioerr.PermissionDenied)
	}
	return l.Unlock(lo, hi)
}

// Input reads n characters from h, or from the keyboard if h is nil.
// n must be in 1..255.
func (t *Table) Input(h device.Handle, n int) ([]byte, error) {
	if err := ioerr.RangeCheck(1, 255, n, ioerr.IllegalFunctionCall); err != nil {
		return nil, err
	}
	if h == nil {
		h = t.devices.Keyboard().File()
	}
	return h.Input(n)
}

// WriteFields implements WRITE to the screen.
func (t *Table) WriteFields(values ...any) error {
	return writeFields(t.devices.Screen().File(), values)
}

// WriteFieldsTo implements WRITE #number.
func (t *Table) WriteFieldsTo(number int, values ...any) error {
	h, err := t.Get(number, device.Modes(device.Output, device.Append, device.Random))
	if err != nil {
		return err
	}
	return writeFields(h, values)
}

// writeFields writes values comma-separated as one line. If a value cannot
// be written, the values before it are still written, each followed by a
// comma, and the error is returned.
func writeFields(out device.Handle, values []any) error {
	strs := make([]string, 0, len(values))
	for _, v := range values {
		s, err := repr(v)
		if err != nil {
			if len(strs) > 0 {
				if werr := out.WriteText(strings.Join(strs, ",") + ","); werr != nil {
					return werr
				}
			}
			return err
		}
		strs = append(strs, s)
	}
	return out.WriteLine(strings.Join(strs, ","))
}

// OpenNativeOrBasic opens path as a host path, after expanding ~ and
// environment variables, and falls back to a BASIC file spec on the
// current device. The handle is not registered. An empty path opens the
// standard streams.
func (t *Table) OpenNativeOrBasic(path string, ft device.FileType, m device.Mode) (device.Handle, error) {
	if path == "" {
		return t.openStdio(ft, m), nil
	}
	req := device.OpenRequest{FileType: ft, Mode: m, RecLen: DefaultRecLen}
	if host := t.devices.Host(); host != nil {
		h, err := host.OpenNative(t.expand(path), req)
		if err == nil {
			return h, nil
		}
		slog.Debug("native open failed, trying BASIC name",
			slog.String("path", path),
			logging.Err(err),
		)
	}
	return t.Open(0, path, req)
}

// expand resolves a leading ~ and $VAR references.
func (t *Table) expand(path string) string {
	getenv := os.Getenv
	if t.opts.FS != nil {
		getenv = t.opts.FS.Getenv
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		var home string
		var err error
		if t.opts.FS != nil {
			home, err = t.opts.FS.UserHomeDir()
		} else {
			home, err = os.UserHomeDir()
		}
		if err == nil {
			path = home + path[1:]
		}
	}
	return os.Expand(path, getenv)
}

// openStdio returns a handle on standard input or output. Input is read
// in full so that the handle can report its length.
func (t *Table) openStdio(ft device.FileType, m device.Mode) device.Handle {
	if m == device.Input {
		if t.opts.Stdin == nil {
			return device.NewNullHandle(0, m)
		}
		data, err := io.ReadAll(t.opts.Stdin)
		if err != nil {
			slog.Warn("could not open standard input", slog.String("error", err.Error()))
			return device.NewNullHandle(0, m)
		}
		size := int64(len(data))
		return device.NewTextFile(0, m, bytes.NewReader(data), nil, device.TextOptions{
			CtrlZ: ft == device.Data,
			Size:  func() (int64, error) { return size, nil },
		})
	}
	if t.opts.Stdout == nil {
		return device.NewNullHandle(0, m)
	}
	return device.NewTextFile(0, m, nil, t.opts.Stdout, device.TextOptions{FlushOnWrite: true})
}

// Loc returns the position of file number in its device's unit.
func (t *Table) Loc(number int) (int64, error) {
	h, err := t.getNumeric(number, device.AnyMode)
	if err != nil {
		return 0, err
	}
	return h.Loc()
}

// EOF reports end of file. File number 0 stands for the keyboard and is
// never at its end.
func (t *Table) EOF(number int) (bool, error) {
	if number == 0 {
		return false, nil
	}
	h, err := t.getNumeric(number, device.Modes(device.Input, device.Random))
	if err != nil {
		return false, err
	}
	return h.EOF()
}

// LOF returns the length of file number.
func (t *Table) LOF(number int) (int64, error) {
	h, err := t.getNumeric(number, device.AnyMode)
	if err != nil {
		return 0, err
	}
	return h.LOF()
}

// LPOS returns the printer column of LPTn:.
func (t *Table) LPOS(n int) (int, error) {
	return t.devices.LPOS(n)
}

// IOCTL would send a control string to a device. It only logs.
func (t *Table) IOCTL(h device.Handle, control string) error {
	slog.Warn("IOCTL statement not implemented",
		slog.Int("number", handleNumber(h)),
		slog.String("control", control),
	)
	return nil
}

// IOCTLString would read a device's control response. It returns "".
func (t *Table) IOCTLString(h device.Handle) (string, error) {
	slog.Warn("IOCTL$ function not implemented", slog.Int("number", handleNumber(h)))
	return "", nil
}

func handleNumber(h device.Handle) int {
	if h == nil {
		return 0
	}
	return h.Number()
}
