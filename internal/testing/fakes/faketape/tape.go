// Package faketape provides an in-memory cassette deck for testing.
package faketape

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/acolita/basic-fileio/internal/device"
)

// ErrEndOfTape is returned when Find runs off the end of the tape.
var ErrEndOfTape = errors.New("end of tape")

type entry struct {
	name string
	ft   device.FileType
	data []byte
}

// Deck is a tape holding files in recording order with a read position.
type Deck struct {
	mu    sync.Mutex
	files []*entry
	pos   int
}

// New returns an empty tape wound to the start.
func New() *Deck { return &Deck{} }

// AddFile records a file at the end of the tape.
func (d *Deck) AddFile(name string, ft device.FileType, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = append(d.files, &entry{name: name, ft: ft, data: append([]byte(nil), data...)})
}

// Rewind winds back to the start.
func (d *Deck) Rewind() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = 0
}

// Contents returns the data of the first file called name.
func (d *Deck) Contents(name string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.files {
		if e.name == name {
			return append([]byte(nil), e.data...), true
		}
	}
	return nil, false
}

func (d *Deck) Find(name string, skipped func(string, device.FileType)) (string, device.FileType, io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pos < len(d.files) {
		e := d.files[d.pos]
		d.pos++
		if name == "" || e.name == name {
			return e.name, e.ft, io.NopCloser(bytes.NewReader(e.data)), nil
		}
		if skipped != nil {
			skipped(e.name, e.ft)
		}
	}
	return "", 0, nil, ErrEndOfTape
}

func (d *Deck) Create(name string, ft device.FileType) (io.WriteCloser, error) {
	return &recorder{deck: d, e: &entry{name: name, ft: ft}}, nil
}

// recorder appends its file to the tape when closed.
type recorder struct {
	deck *Deck
	e    *entry
	buf  bytes.Buffer
}

func (r *recorder) Write(p []byte) (int, error) { return r.buf.Write(p) }

func (r *recorder) Close() error {
	r.e.data = r.buf.Bytes()
	r.deck.mu.Lock()
	defer r.deck.mu.Unlock()
	r.deck.files = append(r.deck.files, r.e)
	r.deck.pos = len(r.deck.files)
	return nil
}
