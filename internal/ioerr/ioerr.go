// Package ioerr defines the fixed error taxonomy of the BASIC file layer.
//
// Every failure raised by the layer is an *Error carrying one Kind. Callers
// distinguish failures by Kind (errors.Is or KindOf), never by message text.
package ioerr

import (
	"errors"
	"fmt"
)

// Kind identifies a BASIC run-time error condition.
type Kind int

const (
	// KindUnknown is the zero Kind; it is never raised by this layer.
	KindUnknown Kind = iota

	// File number errors.

	// BadFileNumber: number out of range, not open when required, or empty
	// description on open.
	BadFileNumber
	// FileAlreadyOpen: number reused while open, or an open file targeted
	// by KILL, NAME or an incompatible second OPEN.
	FileAlreadyOpen
	// BadFileMode: operation not permitted by the handle's mode.
	BadFileMode

	// Mode and access errors.

	// PathFileAccessError: OPEN FOR APPEND ACCESS WRITE.
	PathFileAccessError
	// SyntaxError: any other illegal FOR/ACCESS combination.
	SyntaxError
	// IllegalFunctionCall: numeric argument out of its legal range.
	IllegalFunctionCall
	// TypeMismatch: value of a type that cannot be serialised.
	TypeMismatch

	// Record errors.

	// BadRecordNumber: position or lock bound outside its valid range.
	BadRecordNumber
	// FieldOverflow: FIELD or record transfer beyond the record length.
	FieldOverflow
	// InputPastEnd: read beyond the end of a sequential file.
	InputPastEnd

	// Device errors.

	// PermissionDenied: lock on a non-lockable device, or a lock conflict.
	PermissionDenied
	// DeviceUnavailable: device name does not resolve or backend is absent.
	DeviceUnavailable
	// DeviceIOError: backend I/O failure.
	DeviceIOError
	// DeviceTimeout: backend did not respond.
	DeviceTimeout

	// Filesystem errors.

	// RenameAcrossDisks: NAME target resolves to another device.
	RenameAcrossDisks
	// FileNotFound: named file does not exist.
	FileNotFound
	// FileAlreadyExists: target of NAME or MKDIR exists.
	FileAlreadyExists
	// BadFileName: malformed file name or device parameter.
	BadFileName
	// PathNotFound: directory does not exist or drive is not mounted.
	PathNotFound
)

type kindInfo struct {
	code    int
	message string
}

// kinds maps each Kind to its GW-BASIC error number and message.
var kinds = map[Kind]kindInfo{
	SyntaxError:         {2, "Syntax error"},
	IllegalFunctionCall: {5, "Illegal function call"},
	TypeMismatch:        {13, "Type mismatch"},
	DeviceTimeout:       {24, "Device Timeout"},
	FieldOverflow:       {50, "FIELD overflow"},
	BadFileNumber:       {52, "Bad file number"},
	FileNotFound:        {53, "File not found"},
	BadFileMode:         {54, "Bad file mode"},
	FileAlreadyOpen:     {55, "File already open"},
	DeviceIOError:       {57, "Device I/O error"},
	FileAlreadyExists:   {58, "File already exists"},
	InputPastEnd:        {62, "Input past end"},
	BadRecordNumber:     {63, "Bad record number"},
	BadFileName:         {64, "Bad file name"},
	DeviceUnavailable:   {68, "Device unavailable"},
	PermissionDenied:    {70, "Permission Denied"},
	RenameAcrossDisks:   {74, "Rename across disks"},
	PathFileAccessError: {75, "Path/File access error"},
	PathNotFound:        {76, "Path not found"},
}

// Code returns the GW-BASIC error number for k, or 0 for KindUnknown.
func (k Kind) Code() int {
	return kinds[k].code
}

// String returns the BASIC error message for k.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.message
	}
	return "Unprintable error"
}

// Error is a BASIC run-time error raised by the file layer.
type Error struct {
	Kind Kind
	// Op names the statement or function that failed, if known.
	Op string
	// Err is the underlying host error, if any.
	Err error
}

// New returns an *Error of kind k.
func New(k Kind) *Error {
	return &Error{Kind: k}
}

// Op returns an *Error of kind k raised by the named operation.
func Op(op string, k Kind) *Error {
	return &Error{Kind: k, Op: op}
}

// Wrap returns an *Error of kind k caused by the host error err.
func Wrap(op string, k Kind, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the host error that caused e.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of e, so that
// errors.Is(err, ioerr.BadFileNumber) works.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// Error makes Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RangeCheck returns an *Error of kind k unless lo <= v <= hi.
func RangeCheck(lo, hi, v int, k Kind) error {
	if v < lo || v > hi {
		return New(k)
	}
	return nil
}
