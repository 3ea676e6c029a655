package device

import "github.com/acolita/basic-fileio/internal/ioerr"

// OpenRequest carries the parameters of a device open.
type OpenRequest struct {
	// Number is the file number, 0 for an unregistered handle.
	Number int
	// Param is the part of the file spec after the device name.
	Param    string
	FileType FileType
	Mode     Mode
	Access   Access
	Lock     LockMode
	RecLen   int
	// Seg, Offset and Length describe a BSAVE memory image.
	Seg, Offset, Length int
}

// EffectiveAccess returns the requested access, or the mode's default
// access when none was given.
func (r OpenRequest) EffectiveAccess() Access {
	if r.Access == AccessDefault {
		return DefaultAccess(r.Mode)
	}
	return r.Access
}

// DefaultAccess returns the access an OPEN statement implies for m.
func DefaultAccess(m Mode) Access {
	switch m {
	case Input:
		return Read
	case Output:
		return Write
	}
	return ReadWrite
}

// Device is a named backend that produces handles.
type Device interface {
	// Name returns the canonical device name, e.g. "COM1:".
	Name() string
	// Open produces a handle for req.
	Open(req OpenRequest) (Handle, error)
	// Close releases the device at session end.
	Close() error
}

// Handle is an open stream on a device.
type Handle interface {
	Number() int
	Mode() Mode
	Close() error

	// Loc returns the current position in the device's own unit.
	Loc() (int64, error)
	EOF() (bool, error)
	LOF() (int64, error)

	// Input reads n characters.
	Input(n int) ([]byte, error)
	WriteText(s string) error
	WriteLine(s string) error

	// Records returns the record interface of a seekable handle.
	Records() (RecordIO, bool)
	// Stream returns the byte-count transfer interface of a stream handle.
	Stream() (StreamIO, bool)
	// Locker returns the lock interface of a lockable handle.
	Locker() (Locker, bool)
	// Field returns the handle's field buffer, or nil.
	Field() *FieldBuffer
}

// RecordIO transfers whole records between a field buffer and a seekable
// backing resource. Records are numbered from 1.
type RecordIO interface {
	// SetRecord sets the record the next transfer addresses.
	SetRecord(rec int64) error
	Put() error
	Get() error
	RecordLength() int
}

// StreamIO transfers a byte count between a field buffer and a stream.
type StreamIO interface {
	Put(n int) error
	Get(n int) error
	RecordLength() int
}

// Locker holds record-range locks on the handle's backing resource.
type Locker interface {
	Lock(start, stop int64) error
	Unlock(start, stop int64) error
}

// Base gives a handle the answers every capability accessor returns when
// the capability is absent. Concrete handles embed it and override what
// they support.
type Base struct {
	number int
	mode   Mode
}

// NewBase returns a Base for a handle opened as number in mode m.
func NewBase(number int, m Mode) Base {
	return Base{number: number, mode: m}
}

func (b *Base) Number() int               { return b.number }
func (b *Base) Mode() Mode                { return b.mode }
func (b *Base) Records() (RecordIO, bool) { return nil, false }
func (b *Base) Stream() (StreamIO, bool)  { return nil, false }
func (b *Base) Locker() (Locker, bool)    { return nil, false }
func (b *Base) Field() *FieldBuffer       { return nil }
func (b *Base) Loc() (int64, error)       { return 0, nil }
func (b *Base) EOF() (bool, error)        { return false, nil }
func (b *Base) LOF() (int64, error)       { return 0, nil }

func (b *Base) Input(n int) ([]byte, error) {
	return nil, ioerr.New(ioerr.BadFileMode)
}

func (b *Base) WriteText(s string) error {
	return ioerr.New(ioerr.BadFileMode)
}

func (b *Base) WriteLine(s string) error {
	return ioerr.New(ioerr.BadFileMode)
}
