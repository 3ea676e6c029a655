// Package disk implements drive devices (@:, A: to Z:) on top of a host
// filesystem port.
//
// DOS paths are resolved against the drive's mount root and current
// directory. Path elements keep the caller's casing; an element that does
// not exist with that exact name is matched case-insensitively against the
// directory, since host filesystems may be case-sensitive.
package disk

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/acolita/basic-fileio/internal/codepage"
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/locks"
	"github.com/acolita/basic-fileio/internal/ports"
)

// Letters are the valid drive letters, in registry order.
const Letters = "@ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Options configures a drive.
type Options struct {
	// Root is the native mount path; empty means the letter is unmounted.
	Root string
	// Cwd is the initial DOS current directory, relative to Root.
	Cwd string
	// Codepage converts text files when UTF8 is set.
	Codepage *codepage.Codepage
	// UTF8 stores text files on the host as UTF-8 instead of raw codepage
	// bytes.
	UTF8 bool
	// Volume names the filesystem in lock identities, e.g. the URL of a
	// remote mount. Drives on the host filesystem leave it empty, so every
	// open of one host file contends whatever letter it goes through.
	Volume string
}

// Device is a disk drive.
type Device struct {
	name   string
	letter byte
	fs     ports.FileSystem
	root   string
	cwd    []string
	locks  *locks.Coordinator
	opts   Options
}

// New returns drive letter on fsys. The coordinator is shared by every
// drive of a session.
func New(letter byte, fsys ports.FileSystem, coord *locks.Coordinator, opts Options) *Device {
	d := &Device{
		name:   string(letter) + ":",
		letter: letter,
		fs:     fsys,
		root:   opts.Root,
		locks:  coord,
		opts:   opts,
	}
	if opts.Root != "" && opts.Cwd != "" {
		d.cwd = splitDOS(opts.Cwd)
	}
	return d
}

// NewHost returns the device behind native file opens. It is not a drive
// and only serves OpenNative.
func NewHost(fsys ports.FileSystem, coord *locks.Coordinator, opts Options) *Device {
	return &Device{name: "HOST:", fs: fsys, locks: coord, opts: opts}
}

// Name returns the device name, e.g. "A:".
func (d *Device) Name() string { return d.name }

// Letter returns the drive letter.
func (d *Device) Letter() byte { return d.letter }

// Mounted reports whether the drive has a backing path.
func (d *Device) Mounted() bool { return d.root != "" }

// Close releases the filesystem if it holds a connection.
func (d *Device) Close() error {
	if c, ok := d.fs.(io.Closer); ok && d.Mounted() {
		return c.Close()
	}
	return nil
}

// CurrentDir returns the DOS current directory, e.g. `A:\SUB`.
func (d *Device) CurrentDir() string {
	return d.Name() + `\` + strings.ToUpper(strings.Join(d.cwd, `\`))
}

// resource returns the lock identity of a native path.
func (d *Device) resource(native string) string {
	return d.opts.Volume + native
}

func splitDOS(p string) []string {
	p = strings.ReplaceAll(p, "/", `\`)
	var out []string
	for _, e := range strings.Split(p, `\`) {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// resolved is a DOS path mapped onto the host.
type resolved struct {
	native string
	elems  []string
	exists bool
	info   fs.FileInfo
}

// resolve maps a DOS path to a native path. Every directory element must
// exist; the last element may be missing, in which case it keeps the
// caller's spelling.
func (d *Device) resolve(dosPath string) (resolved, error) {
	if !d.Mounted() {
		return resolved{}, ioerr.New(ioerr.PathNotFound)
	}
	norm := strings.ReplaceAll(dosPath, "/", `\`)
	var elems []string
	if !strings.HasPrefix(norm, `\`) {
		elems = append(elems, d.cwd...)
	}
	parts := splitDOS(norm)
	for i, e := range parts {
		switch e {
		case ".":
			continue
		case "..":
			if len(elems) == 0 {
				return resolved{}, ioerr.New(ioerr.PathNotFound)
			}
			elems = elems[:len(elems)-1]
			continue
		}
		match, err := d.match(elems, e)
		if err != nil {
			return resolved{}, err
		}
		last := i == len(parts)-1
		if match == "" {
			if !last {
				return resolved{}, ioerr.New(ioerr.PathNotFound)
			}
			match = e
		}
		elems = append(elems, match)
	}
	r := resolved{native: d.native(elems), elems: elems}
	if info, err := d.fs.Stat(r.native); err == nil {
		r.exists, r.info = true, info
	}
	return r, nil
}

func (d *Device) native(elems []string) string {
	return d.fs.Join(append([]string{d.root}, elems...)...)
}

// match finds name in the directory elems: exact first, then ignoring
// case. It returns "" if there is no such entry.
func (d *Device) match(elems []string, name string) (string, error) {
	dir := d.native(elems)
	if _, err := d.fs.Stat(d.fs.Join(dir, name)); err == nil {
		return name, nil
	}
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return "", hostError("", err, ioerr.PathNotFound)
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return e.Name(), nil
		}
	}
	return "", nil
}

// validName rejects names DOS cannot hold.
func validName(p string) bool {
	base := p
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		base = p[i+1:]
	}
	return base != "" && base != "." && base != ".." && !strings.ContainsAny(base, `*?"<>|`)
}

// hostError translates a host filesystem error into the BASIC taxonomy.
func hostError(op string, err error, notFound ioerr.Kind) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return ioerr.Wrap(op, notFound, err)
	case errors.Is(err, fs.ErrExist):
		return ioerr.Wrap(op, ioerr.FileAlreadyExists, err)
	case errors.Is(err, fs.ErrPermission):
		return ioerr.Wrap(op, ioerr.PathFileAccessError, err)
	}
	return ioerr.Wrap(op, ioerr.DeviceIOError, err)
}

// openFlags returns the host flags for a mode and effective access.
func openFlags(m device.Mode, a device.Access) int {
	switch m {
	case device.Input:
		return os.O_RDONLY
	case device.Output:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case device.Append:
		return os.O_RDWR | os.O_CREATE
	}
	switch a {
	case device.Read:
		return os.O_RDONLY
	case device.Write:
		return os.O_WRONLY | os.O_CREATE
	}
	return os.O_RDWR | os.O_CREATE
}

// Open opens the file named by req.Param.
func (d *Device) Open(req device.OpenRequest) (device.Handle, error) {
	if !validName(req.Param) {
		return nil, ioerr.Op("OPEN", ioerr.BadFileName)
	}
	r, err := d.resolve(req.Param)
	if err != nil {
		return nil, err
	}
	if r.exists && r.info.IsDir() {
		return nil, ioerr.Op("OPEN", ioerr.PathFileAccessError)
	}
	access := req.EffectiveAccess()
	flags := openFlags(req.Mode, access)
	if !r.exists && flags&os.O_CREATE == 0 {
		return nil, ioerr.Op("OPEN", ioerr.FileNotFound)
	}

	return d.openAt(r.native, flags, access, req)
}

// OpenNative opens a host path as is, without DOS path resolution.
func (d *Device) OpenNative(native string, req device.OpenRequest) (device.Handle, error) {
	info, err := d.fs.Stat(native)
	if err == nil && info.IsDir() {
		return nil, ioerr.Op("OPEN", ioerr.PathFileAccessError)
	}
	access := req.EffectiveAccess()
	return d.openAt(native, openFlags(req.Mode, access), access, req)
}

// openAt registers the open with the coordinator before touching the host,
// so that a refused share leaves the file as it was.
func (d *Device) openAt(native string, flags int, access device.Access, req device.OpenRequest) (device.Handle, error) {
	res := d.resource(native)
	owner, err := d.locks.Acquire(res, locks.Open{
		Number: req.Number,
		Mode:   req.Mode,
		Access: access,
		Lock:   req.Lock,
	})
	if err != nil {
		return nil, err
	}
	file, err := d.fs.OpenFile(native, flags, 0o666)
	if err != nil {
		d.locks.Release(res, owner)
		return nil, hostError("OPEN", err, ioerr.FileNotFound)
	}
	slog.Debug("disk file opened",
		slog.String("drive", d.Name()),
		slog.String("path", native),
		slog.String("mode", req.Mode.String()),
		slog.Int("number", req.Number),
	)

	base := shared{dev: d, file: file, res: res, owner: owner}
	if req.Mode == device.Random {
		return newRandomFile(req, access, base), nil
	}
	h, err := newTextFile(req, base)
	if err != nil {
		base.release()
		return nil, err
	}
	return h, nil
}

// CheckNotOpen fails with FileAlreadyOpen if any handle has the file open.
// Nothing is open on an unmounted drive.
func (d *Device) CheckNotOpen(dosPath string) error {
	if !d.Mounted() {
		return nil
	}
	r, err := d.resolve(dosPath)
	if err != nil {
		return err
	}
	if d.locks.IsOpen(d.resource(r.native)) {
		return ioerr.New(ioerr.FileAlreadyOpen)
	}
	return nil
}

// Chdir changes the drive's current directory.
func (d *Device) Chdir(dosPath string) error {
	r, err := d.resolve(dosPath)
	if err != nil {
		return err
	}
	if !r.exists || !r.info.IsDir() {
		return ioerr.Op("CHDIR", ioerr.PathNotFound)
	}
	d.cwd = r.elems
	return nil
}

// Mkdir creates a directory.
func (d *Device) Mkdir(dosPath string) error {
	if !validName(dosPath) {
		return ioerr.Op("MKDIR", ioerr.BadFileName)
	}
	r, err := d.resolve(dosPath)
	if err != nil {
		return err
	}
	if r.exists {
		return ioerr.Op("MKDIR", ioerr.PathFileAccessError)
	}
	return hostError("MKDIR", d.fs.Mkdir(r.native, 0o755), ioerr.PathNotFound)
}

// Rmdir removes an empty directory that is not the current directory.
func (d *Device) Rmdir(dosPath string) error {
	r, err := d.resolve(dosPath)
	if err != nil {
		return err
	}
	if !r.exists || !r.info.IsDir() {
		return ioerr.Op("RMDIR", ioerr.PathNotFound)
	}
	if isPrefix(r.elems, d.cwd) {
		return ioerr.Op("RMDIR", ioerr.PathFileAccessError)
	}
	if err := d.fs.Remove(r.native); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ioerr.Wrap("RMDIR", ioerr.PathNotFound, err)
		}
		return ioerr.Wrap("RMDIR", ioerr.PathFileAccessError, err)
	}
	return nil
}

func isPrefix(prefix, elems []string) bool {
	if len(prefix) > len(elems) {
		return false
	}
	for i := range prefix {
		if prefix[i] != elems[i] {
			return false
		}
	}
	return true
}

// Kill deletes a file. Callers check that it is not open first.
func (d *Device) Kill(dosPath string) error {
	r, err := d.resolve(dosPath)
	if err != nil {
		return err
	}
	if !r.exists || r.info.IsDir() {
		return ioerr.Op("KILL", ioerr.FileNotFound)
	}
	return hostError("KILL", d.fs.Remove(r.native), ioerr.FileNotFound)
}

// Rename renames a file within the drive.
func (d *Device) Rename(oldPath, newPath string) error {
	if !validName(newPath) {
		return ioerr.Op("NAME", ioerr.BadFileName)
	}
	src, err := d.resolve(oldPath)
	if err != nil {
		return err
	}
	if !src.exists {
		return ioerr.Op("NAME", ioerr.FileNotFound)
	}
	dst, err := d.resolve(newPath)
	if err != nil {
		return err
	}
	if dst.exists {
		return ioerr.Op("NAME", ioerr.FileAlreadyExists)
	}
	return hostError("NAME", d.fs.Rename(src.native, dst.native), ioerr.FileNotFound)
}

// NativePath returns the host path a DOS path resolves to.
func (d *Device) NativePath(dosPath string) (string, error) {
	r, err := d.resolve(dosPath)
	if err != nil {
		return "", err
	}
	return r.native, nil
}

var _ device.Device = (*Device)(nil)
