// Package devices owns the fixed set of devices of a session and resolves
// BASIC file specs against it.
package devices

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/acolita/basic-fileio/internal/cassette"
	"github.com/acolita/basic-fileio/internal/codepage"
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/disk"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/locks"
	"github.com/acolita/basic-fileio/internal/ports"
	"github.com/acolita/basic-fileio/internal/printer"
	"github.com/acolita/basic-fileio/internal/serial"
)

// Mount attaches a drive letter to a host directory.
type Mount struct {
	Root string
	Cwd  string
	// FS overrides the registry's filesystem, e.g. for a remote mount.
	FS ports.FileSystem
	// Volume identifies FS in lock identities; see disk.Options.
	Volume string
}

// Options configures a registry.
type Options struct {
	// FS is the host filesystem for local mounts and native opens.
	FS     ports.FileSystem
	Mounts map[byte]Mount
	// CurrentDevice is the device used by specs without a prefix: a drive
	// letter or "CAS1". Empty means "@".
	CurrentDevice string
	// Ports maps "COMn:" and "LPTn:" to backend specs.
	Ports            map[string]string
	SerialBufferSize int
	Dialer           ports.NetworkDialer

	Screen device.Screen
	Keys   io.Reader
	// Deck is the cassette tape; nil leaves CAS1: unavailable.
	Deck cassette.Deck

	Codepage *codepage.Codepage
	// UTF8 stores host text files and printer output as UTF-8.
	UTF8    bool
	TempDir string
	Spool   printer.SpoolFunc
	Stdin   io.Reader
	Stdout  io.Writer
}

// Registry is the device map of a session. Devices are created once and
// owned by the registry until Close.
type Registry struct {
	devices map[string]device.Device
	current string
	screen  *device.ScreenDevice
	kybd    *device.KeyboardDevice
	null    *device.Null
	host    *disk.Device
	locks   *locks.Coordinator
}

// New builds the device map.
func New(opts Options) (*Registry, error) {
	if opts.Screen == nil {
		opts.Screen = device.NewWriterScreen(io.Discard, 80)
	}
	if opts.Keys == nil {
		opts.Keys = strings.NewReader("")
	}
	r := &Registry{
		devices: make(map[string]device.Device),
		current: "@",
		null:    device.NewNull(),
		locks:   locks.New(),
	}
	if opts.CurrentDevice != "" {
		r.current = strings.TrimSuffix(strings.ToUpper(opts.CurrentDevice), ":")
	}

	r.screen = device.NewScreenDevice(opts.Screen)
	r.kybd = device.NewKeyboardDevice(opts.Keys, opts.Screen)
	r.add(r.screen)
	r.add(r.kybd)

	var cp *codepage.Codepage
	if opts.UTF8 {
		cp = opts.Codepage
	}
	for i, name := range []string{"LPT1:", "LPT2:", "LPT3:"} {
		lpt, err := printer.New(name, printer.Options{
			Backend:     opts.Ports[name],
			NullDefault: i == 0,
			FS:          opts.FS,
			Stdout:      opts.Stdout,
			Codepage:    cp,
			TempDir:     opts.TempDir,
			Spool:       opts.Spool,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("attach %s: %w", name, err)
		}
		r.add(lpt)
	}
	for _, name := range []string{"COM1:", "COM2:"} {
		r.add(serial.New(name, serial.Options{
			Backend:    opts.Ports[name],
			BufferSize: opts.SerialBufferSize,
			Dialer:     opts.Dialer,
			Stdin:      opts.Stdin,
			Stdout:     opts.Stdout,
		}))
	}
	r.add(cassette.New(opts.Deck, opts.Screen))

	for i := 0; i < len(disk.Letters); i++ {
		letter := disk.Letters[i]
		m := opts.Mounts[letter]
		fsys := m.FS
		if fsys == nil {
			fsys = opts.FS
		}
		r.add(disk.New(letter, fsys, r.locks, disk.Options{
			Root:     m.Root,
			Cwd:      m.Cwd,
			Codepage: opts.Codepage,
			UTF8:     opts.UTF8,
			Volume:   m.Volume,
		}))
	}
	if opts.FS != nil {
		r.host = disk.NewHost(opts.FS, r.locks, disk.Options{Codepage: opts.Codepage, UTF8: opts.UTF8})
	}
	return r, nil
}

func (r *Registry) add(d device.Device) {
	r.devices[d.Name()] = d
}

// Device returns the device registered under name, e.g. "COM1:".
func (r *Registry) Device(name string) (device.Device, bool) {
	d, ok := r.devices[strings.ToUpper(name)]
	return d, ok
}

// CurrentDevice returns the name of the default device, e.g. "A:".
func (r *Registry) CurrentDevice() string { return r.current + ":" }

// Screen returns SCRN:.
func (r *Registry) Screen() *device.ScreenDevice { return r.screen }

// Keyboard returns KYBD:.
func (r *Registry) Keyboard() *device.KeyboardDevice { return r.kybd }

// Null returns the null device.
func (r *Registry) Null() *device.Null { return r.null }

// Host returns the device for native opens, or nil without a filesystem.
func (r *Registry) Host() *disk.Device { return r.host }

// Locks returns the session's lock coordinator.
func (r *Registry) Locks() *locks.Coordinator { return r.locks }

// Printer returns LPTn:.
func (r *Registry) Printer(n int) *printer.Device {
	d, _ := r.devices[fmt.Sprintf("LPT%d:", n)].(*printer.Device)
	return d
}

// aliases are the DOS device files. They stand for devices only when the
// spec has no device prefix.
var aliases = map[string]bool{"AUX": true, "CON": true, "NUL": true, "PRN": true}

// Resolve maps a file spec to its device and the parameter passed on to
// the device. The device name is matched ignoring case; the parameter keeps
// its casing.
func (r *Registry) Resolve(spec string, mode device.Mode) (device.Device, string, error) {
	name, param, found := strings.Cut(spec, ":")
	if found {
		d, ok := r.devices[strings.ToUpper(name)+":"]
		if !ok {
			return nil, "", ioerr.Op("OPEN", ioerr.DeviceUnavailable)
		}
		return d, param, nil
	}
	cur, ok := r.devices[r.CurrentDevice()]
	if !ok {
		return nil, "", ioerr.Op("OPEN", ioerr.DeviceUnavailable)
	}
	if word := strings.ToUpper(spec); aliases[word] && cur.Name() != "CAS1:" {
		switch word {
		case "AUX":
			return r.devices["COM1:"], "", nil
		case "CON":
			if mode == device.Input {
				return r.kybd, "", nil
			}
			return r.screen, "", nil
		case "PRN":
			return r.devices["LPT1:"], "", nil
		case "NUL":
			return r.null, "", nil
		}
	}
	return cur, spec, nil
}

// DiskPath resolves the spec of a filesystem statement, which must name a
// drive.
func (r *Registry) DiskPath(spec string) (*disk.Device, string, error) {
	name, path, found := strings.Cut(spec, ":")
	if !found {
		name, path = r.current, spec
	}
	name = strings.ToUpper(name)
	if len(name) != 1 || !strings.Contains(disk.Letters, name) {
		return nil, "", ioerr.New(ioerr.DeviceUnavailable)
	}
	d, ok := r.devices[name+":"].(*disk.Device)
	if !ok {
		return nil, "", ioerr.New(ioerr.DeviceUnavailable)
	}
	return d, path, nil
}

// Chdir changes a drive's current directory.
func (r *Registry) Chdir(spec string) error {
	d, path, err := r.DiskPath(spec)
	if err != nil {
		return err
	}
	return d.Chdir(path)
}

// Mkdir creates a directory.
func (r *Registry) Mkdir(spec string) error {
	d, path, err := r.DiskPath(spec)
	if err != nil {
		return err
	}
	return d.Mkdir(path)
}

// Rmdir removes a directory.
func (r *Registry) Rmdir(spec string) error {
	d, path, err := r.DiskPath(spec)
	if err != nil {
		return err
	}
	if err := d.CheckNotOpen(path); err != nil {
		return err
	}
	return d.Rmdir(path)
}

// Kill deletes a file that is not open.
func (r *Registry) Kill(spec string) error {
	d, path, err := r.DiskPath(spec)
	if err != nil {
		return err
	}
	if err := d.CheckNotOpen(path); err != nil {
		return err
	}
	return d.Kill(path)
}

// Rename renames a file that is not open. Both names must resolve to the
// same drive.
func (r *Registry) Rename(oldSpec, newSpec string) error {
	d, oldPath, err := r.DiskPath(oldSpec)
	if err != nil {
		return err
	}
	nd, newPath, err := r.DiskPath(newSpec)
	if err != nil {
		return err
	}
	if d != nd {
		return ioerr.Op("NAME", ioerr.RenameAcrossDisks)
	}
	if err := d.CheckNotOpen(oldPath); err != nil {
		return err
	}
	return d.Rename(oldPath, newPath)
}

// Files writes a directory listing to the screen. A nil mask lists the
// current directory; an empty one is a bad file name.
func (r *Registry) Files(mask *string) error {
	spec := ""
	if mask != nil {
		if *mask == "" {
			return ioerr.Op("FILES", ioerr.BadFileName)
		}
		spec = *mask
	}
	d, path, err := r.DiskPath(spec)
	if err != nil {
		return err
	}
	header, entries, err := d.Files(path)
	if err != nil {
		return err
	}
	out := r.screen.File()
	if err := out.WriteLine(header); err != nil {
		return err
	}
	cols := r.screen.Screen().Width() / 20
	if cols < 1 {
		cols = 1
	}
	var row strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&row, "%-20s", e.String())
		if (i+1)%cols == 0 || i == len(entries)-1 {
			if err := out.WriteLine(strings.TrimRight(row.String(), " ")); err != nil {
				return err
			}
			row.Reset()
		}
	}
	return nil
}

// LPOS returns the print head column of LPTn:; 0 means LPT1:.
func (r *Registry) LPOS(n int) (int, error) {
	if err := ioerr.RangeCheck(0, 3, n, ioerr.IllegalFunctionCall); err != nil {
		return 0, err
	}
	return r.Printer(max(1, n)).Col(), nil
}

// ERDEV reports the last device error. Device errors are not tracked.
func (r *Registry) ERDEV() int {
	slog.Warn("ERDEV function not implemented")
	return 0
}

// ERDEVString reports the name of the device of the last device error.
func (r *Registry) ERDEVString() string {
	slog.Warn("ERDEV$ function not implemented")
	return ""
}

// EXTERR reports extended DOS error information.
func (r *Registry) EXTERR(n int) (int, error) {
	slog.Warn("EXTERR function not implemented")
	if err := ioerr.RangeCheck(0, 3, n, ioerr.IllegalFunctionCall); err != nil {
		return 0, err
	}
	return 0, nil
}

// Motor would switch the cassette motor.
func (r *Registry) Motor(on int) {
	slog.Warn("MOTOR statement not implemented", slog.Int("value", on))
}

// LCopy would copy the screen to the printer.
func (r *Registry) LCopy(n int) {
	slog.Warn("LCOPY statement not implemented", slog.Int("value", n))
}

// Close closes every device.
func (r *Registry) Close() error {
	var errs []error
	for name, d := range r.devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
