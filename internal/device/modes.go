// Package device defines the contract between the file layer and its device
// backends, and the small devices that need no backend of their own.
package device

import "strings"

// Mode is the FOR clause of an OPEN statement.
type Mode int

const (
	Input  Mode = iota // sequential input
	Output             // sequential output
	Append             // sequential output at end of file
	Random             // random access records
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "INPUT"
	case Output:
		return "OUTPUT"
	case Append:
		return "APPEND"
	case Random:
		return "RANDOM"
	}
	return "UNKNOWN"
}

// ModeSet is a set of modes, used to state which modes an operation allows.
type ModeSet uint8

// Modes returns the set containing ms.
func Modes(ms ...Mode) ModeSet {
	var s ModeSet
	for _, m := range ms {
		s |= 1 << m
	}
	return s
}

// AnyMode allows every mode.
var AnyMode = Modes(Input, Output, Append, Random)

// Has reports whether m is in s.
func (s ModeSet) Has(m Mode) bool {
	return s&(1<<m) != 0
}

func (s ModeSet) String() string {
	var names []string
	for m := Input; m <= Random; m++ {
		if s.Has(m) {
			names = append(names, m.String())
		}
	}
	return strings.Join(names, "|")
}

// Access is the ACCESS clause of an OPEN statement.
type Access int

const (
	AccessDefault Access = iota // ACCESS clause omitted
	Read
	Write
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessDefault:
		return "DEFAULT"
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case ReadWrite:
		return "READ WRITE"
	}
	return "UNKNOWN"
}

// CanRead reports whether a permits reading.
func (a Access) CanRead() bool { return a == Read || a == ReadWrite }

// CanWrite reports whether a permits writing.
func (a Access) CanWrite() bool { return a == Write || a == ReadWrite }

// LockMode is the lock clause of an OPEN statement.
type LockMode int

const (
	LockDefault   LockMode = iota // no lock clause: exclusive except for readers
	Shared                        // deny none
	LockRead                      // deny read to other opens
	LockWrite                     // deny write to other opens
	LockReadWrite                 // deny all other opens
)

func (l LockMode) String() string {
	switch l {
	case LockDefault:
		return "DEFAULT"
	case Shared:
		return "SHARED"
	case LockRead:
		return "LOCK READ"
	case LockWrite:
		return "LOCK WRITE"
	case LockReadWrite:
		return "LOCK READ WRITE"
	}
	return "UNKNOWN"
}

// Denies reports whether a holder with lock mode l refuses another open
// with access a.
func (l LockMode) Denies(a Access) bool {
	switch l {
	case LockRead:
		return a.CanRead()
	case LockWrite:
		return a.CanWrite()
	case LockReadWrite, LockDefault:
		return true
	}
	return false
}

// FileType distinguishes data files from program and memory images.
type FileType int

const (
	Data    FileType = iota // OPEN data file
	Program                 // LOAD/SAVE program text or tokens
	Memory                  // BLOAD/BSAVE memory image
)
